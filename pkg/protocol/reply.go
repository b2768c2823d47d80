package protocol

import (
	"fmt"

	"github.com/marmos91/depot/internal/bytesize"
)

// Fixed reply lines. Every server reply starts with one of the keywords
// OK, READY, SIZE, ERROR, SUCCESS, or Goodbye followed by a colon (the
// QUIT reply being the one keyword-only exception).
const (
	Banner = "OK: Depot file server ready"

	ReplyRegisterOK    = "OK: Account created, please LOGIN"
	ReplyLoginOK       = "OK: Login successful"
	ReplySendData      = "OK: Send file data"
	ReplyGoodbye       = "Goodbye!"
	ReplyReady         = "READY: Send SIZE <n>"

	ErrUnknownCommand    = "ERROR: Unknown command"
	ErrAuthRequired      = "ERROR: Authentication required"
	ErrAlreadyAuthed     = "ERROR: Already authenticated"
	ErrInvalidCreds      = "ERROR: Invalid credentials"
	ErrUsernameTaken     = "ERROR: Username already exists"
	ErrServerFull        = "ERROR: Server is full"
	ErrInvalidUsername   = "ERROR: Invalid username"
	ErrInvalidPassword   = "ERROR: Invalid password"
	ErrInvalidFilename   = "ERROR: Invalid filename"
	ErrFileExists        = "ERROR: File already exists"
	ErrFileNotFound      = "ERROR: File not found"
	ErrQuotaExceeded     = "ERROR: Quota exceeded"
	ErrInvalidSize       = "ERROR: Invalid size"
	ErrIncompleteUpload  = "ERROR: Incomplete upload"
	ErrServerOverloaded  = "ERROR: Server overloaded"
	ErrInternal          = "ERROR: Internal error"
)

// SizeReply frames a download body: "SIZE: <n>" with n in decimal bytes.
func SizeReply(n int64) string {
	return fmt.Sprintf("SIZE: %d", n)
}

// UploadSuccess reports a completed upload with the account's new quota
// usage, e.g. "SUCCESS: File uploaded (11 bytes). Quota: 11B / 100.00MiB".
func UploadSuccess(n uint64, used, limit uint64) string {
	return fmt.Sprintf("SUCCESS: File uploaded (%d bytes). Quota: %s / %s",
		n, bytesize.ByteSize(used), bytesize.ByteSize(limit))
}

// DeleteOK reports a completed delete and the bytes returned to the
// account's budget.
func DeleteOK(freed uint64, used, limit uint64) string {
	return fmt.Sprintf("OK: File deleted (%d bytes freed). Quota: %s / %s",
		freed, bytesize.ByteSize(used), bytesize.ByteSize(limit))
}

// ListHeader opens the LIST report.
func ListHeader(username string) string {
	return fmt.Sprintf("OK: Listing for %s", username)
}

// ListEntry is one file line in the LIST report.
func ListEntry(name string, size int64) string {
	return fmt.Sprintf("%s %s", name, bytesize.ByteSize(size))
}

// ListFooter closes the LIST report with the file count and quota usage.
// The report is terminated by one empty line after this.
func ListFooter(count int, used, limit uint64) string {
	return fmt.Sprintf("TOTAL: %d file(s), %s / %s used",
		count, bytesize.ByteSize(used), bytesize.ByteSize(limit))
}
