package util

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// IsNetworkClosed checks if the given error tells closing of network connection, by either side
func IsNetworkClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}

// IsNetworkTimeout checks if the given error is network timeout or expiry of the context deadline of a send
func IsNetworkTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNetworkError checks if the given error comes from network operations, as opposed to errors returned by remote
func IsNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || IsNetworkClosed(err) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
