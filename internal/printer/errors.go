package printer

import (
	"errors"
	"strings"
	"syscall"
)

// ErrorClass is the retry classification of a print/transfer error.
type ErrorClass int

const (
	// ErrorRecoverable: a connection-level fault plausibly fixed by
	// reconnecting. Eligible for retry.
	ErrorRecoverable ErrorClass = iota
	// ErrorPermanent: configuration or driver problem, retrying won't help.
	ErrorPermanent
	// ErrorUnknown: unclassified. Callers treat it like permanent.
	ErrorUnknown
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorRecoverable:
		return "recoverable"
	case ErrorPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// USB I/O errnos that indicate disconnection or device sleep.
var recoverableErrnos = map[syscall.Errno]bool{
	syscall.EIO:       true, // input/output error, common on USB unplug
	syscall.ENXIO:     true, // no such device or address
	syscall.ENODEV:    true, // no such device
	syscall.ETIMEDOUT: true,
	syscall.EREMOTEIO: true,
}

// Message fragments that indicate a recoverable USB condition regardless of
// the concrete error type.
var recoverableMessages = []string{
	"no backend",
	"device not found",
	"i/o error",
	"input/output error",
	"resource busy",
	"pipe error",
	"could not open",
	"no such device",
	"usb error",
	"endpoint halted",
	"operation timed out",
}

// ClassifyError decides whether an error from a device transfer is worth a
// reconnect-and-retry. Pure: no side effects, safe on nil (returns unknown).
//
// The whole unwrap chain is inspected; a recoverable cause makes the wrapper
// recoverable even when the wrapper's own text gives nothing away.
func ClassifyError(err error) ErrorClass {
	for e := err; e != nil; e = errors.Unwrap(e) {
		var errno syscall.Errno
		if errors.As(e, &errno) && recoverableErrnos[errno] {
			return ErrorRecoverable
		}

		msg := strings.ToLower(e.Error())
		for _, phrase := range recoverableMessages {
			if strings.Contains(msg, phrase) {
				return ErrorRecoverable
			}
		}
	}
	return ErrorUnknown
}

// IsRecoverableError reports whether reconnecting might resolve err.
func IsRecoverableError(err error) bool {
	return ClassifyError(err) == ErrorRecoverable
}
