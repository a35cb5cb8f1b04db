package governor

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// transientMarkers are lower-cased message fragments that mark an error as
// worth retrying.
var transientMarkers = []string{
	"failed to fetch",
	"network",
	"insufficient resources",
	"timeout",
}

// transientErrnos cover resource exhaustion and connection reset/timeout.
var transientErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.ECONNREFUSED,
	syscall.ETIMEDOUT,
	syscall.EPIPE,
	syscall.ENOBUFS,
	syscall.ENOMEM,
	syscall.EAGAIN,
}

// classifier is implemented by errors that know whether they are retryable.
type classifier interface {
	Transient() bool
}

type classifiedError struct {
	err       error
	transient bool
}

func (e *classifiedError) Error() string   { return e.err.Error() }
func (e *classifiedError) Unwrap() error   { return e.err }
func (e *classifiedError) Transient() bool { return e.transient }

// Transient marks err as retryable regardless of its message.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, transient: true}
}

// Fatal marks err as never retryable regardless of its message.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, transient: false}
}

// IsTransient reports whether err is likely to succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var c classifier
	if errors.As(err, &c) {
		return c.Transient()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
