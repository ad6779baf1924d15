package service

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by a Transmitter used before Connect or after
// Disconnect.
var ErrNotConnected = errors.New("transmitter: not connected")

// Transmitter carries whole cell frames to and from the entry relay over a
// secure datagram session. One Send is one datagram.
type Transmitter interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Send(frame []byte) error
	// Receive blocks until a datagram arrives or ctx is done.
	Receive(ctx context.Context) ([]byte, error)
}
