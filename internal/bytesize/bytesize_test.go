package bytesize

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"1024", 1024, false},
		{"0", 0, false},
		{"1Ki", KiB, false},
		{"1KiB", KiB, false},
		{"100Mi", 100 * MiB, false},
		{"1Gi", GiB, false},
		{"1.5Gi", ByteSize(1.5 * float64(GiB)), false},
		{"100MB", 100 * MB, false},
		{"10m", 10 * MB, false},
		{"512 Mi", 512 * MiB, false},
		{"", 0, true},
		{"abc", 0, true},
		{"10XB", 0, true},
		{"-5", 0, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %d", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		size ByteSize
		want string
	}{
		{0, "0B"},
		{11, "11B"},
		{KiB, "1.00KiB"},
		{100 * MiB, "100.00MiB"},
		{GiB, "1.00GiB"},
		{1536 * MiB, "1.50GiB"},
	}

	for _, tt := range tests {
		if got := tt.size.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", uint64(tt.size), got, tt.want)
		}
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("100Mi")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if b != 100*MiB {
		t.Errorf("UnmarshalText = %d, want %d", b, 100*MiB)
	}

	if err := b.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText: expected error for invalid input")
	}
}
