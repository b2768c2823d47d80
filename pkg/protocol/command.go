package protocol

import (
	"errors"
	"strconv"
	"strings"
)

// Command verbs. Pre-auth and post-auth grammars are disjoint; the
// session enforces which set is live.
const (
	VerbRegister = "REGISTER"
	VerbLogin    = "LOGIN"
	VerbUpload   = "UPLOAD"
	VerbDownload = "DOWNLOAD"
	VerbDelete   = "DELETE"
	VerbList     = "LIST"
	VerbQuit     = "QUIT"
	VerbSize     = "SIZE"
)

// ErrEmptyCommand is returned for lines with no tokens.
var ErrEmptyCommand = errors.New("protocol: empty command")

// Command is one parsed request line.
type Command struct {
	Verb string
	Args []string
}

// ParseCommand splits a request line into a verb and its arguments.
// Tokens are separated by runs of spaces or tabs. Verbs are matched
// case-sensitively by the session, as the clients send them uppercase.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrEmptyCommand
	}
	return Command{Verb: fields[0], Args: fields[1:]}, nil
}

// ParseSizeLine parses the client's "SIZE <n>" line sent during an
// upload. n must be a non-negative decimal integer.
func ParseSizeLine(line string) (uint64, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != VerbSize {
		return 0, errors.New("protocol: expected SIZE <n>")
	}
	n, err := strconv.ParseUint(fields[1], 10, 63)
	if err != nil {
		return 0, errors.New("protocol: invalid size value")
	}
	return n, nil
}
