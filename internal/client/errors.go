package client

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means the session accessor had no token or user id.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTransportClosed is the recorded reason for every connection loss.
	ErrTransportClosed = errors.New("transport closed")

	// ErrSendRejected wraps every reason Send refuses to transmit.
	ErrSendRejected = errors.New("send rejected")

	ErrEmptyContent       = fmt.Errorf("%w: empty content", ErrSendRejected)
	ErrConnectionNotReady = fmt.Errorf("%w: connection not ready", ErrSendRejected)

	// ErrAlreadyActive is returned by Connect while an attempt is connecting or open.
	ErrAlreadyActive = errors.New("connection attempt already active")

	// ErrClosed is returned by Connect after Teardown.
	ErrClosed = errors.New("connection manager torn down")
)
