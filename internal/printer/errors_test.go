package printer

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
)

func TestClassifyErrno(t *testing.T) {
	cases := []struct {
		name  string
		errno syscall.Errno
	}{
		{"EIO", syscall.EIO},
		{"ENXIO", syscall.ENXIO},
		{"ENODEV", syscall.ENODEV},
		{"ETIMEDOUT", syscall.ETIMEDOUT},
		{"EREMOTEIO", syscall.EREMOTEIO},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyError(tc.errno); got != ErrorRecoverable {
				t.Fatalf("ClassifyError(%v) = %v, want recoverable", tc.errno, got)
			}
			if !IsRecoverableError(tc.errno) {
				t.Fatalf("IsRecoverableError(%v) = false", tc.errno)
			}
		})
	}
}

func TestClassifyPathError(t *testing.T) {
	err := &os.PathError{Op: "write", Path: "/dev/usb/lp0", Err: syscall.EIO}
	if got := ClassifyError(err); got != ErrorRecoverable {
		t.Fatalf("ClassifyError(path error wrapping EIO) = %v, want recoverable", got)
	}
}

func TestClassifyMessages(t *testing.T) {
	cases := []struct {
		msg  string
		want ErrorClass
	}{
		{"USB device not found", ErrorRecoverable},
		{"USB I/O error occurred", ErrorRecoverable},
		{"libusb: no backend available", ErrorRecoverable},
		{"Resource busy", ErrorRecoverable},
		{"endpoint halted mid transfer", ErrorRecoverable},
		{"operation timed out", ErrorRecoverable},
		{"bad input", ErrorUnknown},
		{"template variable missing", ErrorUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			if got := ClassifyError(errors.New(tc.msg)); got != tc.want {
				t.Fatalf("ClassifyError(%q) = %v, want %v", tc.msg, got, tc.want)
			}
		})
	}
}

func TestClassifyWrappedCause(t *testing.T) {
	inner := syscall.Errno(syscall.EIO)
	outer := fmt.Errorf("transfer aborted: %w", inner)
	if got := ClassifyError(outer); got != ErrorRecoverable {
		t.Fatalf("ClassifyError(wrapper) = %v, want recoverable", got)
	}

	deep := fmt.Errorf("retry gave up: %w", fmt.Errorf("send: %w", errors.New("usb error 71")))
	if got := ClassifyError(deep); got != ErrorRecoverable {
		t.Fatalf("ClassifyError(deep wrapper) = %v, want recoverable", got)
	}
}

func TestClassifyNil(t *testing.T) {
	if got := ClassifyError(nil); got != ErrorUnknown {
		t.Fatalf("ClassifyError(nil) = %v, want unknown", got)
	}
}
