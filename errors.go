package gnssflash

import (
	"errors"
	"fmt"
)

// DA拒绝当前数据包
var NACKError = errors.New("NACK")

var (
	ErrChecksumMismatch   = errors.New("ack checksum mismatch")
	ErrTransportTimeout   = errors.New("ack timeout")
	ErrRetryExhausted     = errors.New("retry budget exhausted")
	ErrImageUnreadable    = errors.New("image unreadable")
	ErrImageUnwritable    = errors.New("output unwritable")
	ErrDegenerateProgress = errors.New("progress total is zero")
	ErrCancelled          = errors.New("cancellation requested")
	ErrTransportBusy      = errors.New("transport owned by another session")
	ErrUnsupportedBaud    = errors.New("no download agent for baud rate")
	ErrFormatDisabled     = errors.New("format mode is not enabled")
	ErrInvalidConfig      = errors.New("invalid config")
)

// retryable reports whether err is local to one chunk and worth a resend.
func retryable(err error) bool {
	return errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrTransportTimeout) ||
		errors.Is(err, NACKError)
}

// TransferError is returned by a session that ended in failed or aborted.
// Offset is the end of the last acknowledged chunk.
type TransferError struct {
	Command Command
	State   State
	Offset  int64
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s at offset 0x%08X: %v", e.Command, e.State, e.Offset, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
