package service

import (
	"context"
	"sync"

	"ikedadada/go-tor4iot/internal/usecase/service"
)

// MemTransmitter is an in-process Transmitter. Frames the device sends are
// kept for inspection; Deliver queues frames for Receive.
type MemTransmitter struct {
	mu        sync.Mutex
	connected bool
	connects  int
	sent      [][]byte
	in        chan []byte
}

func NewMemTransmitter(queue int) *MemTransmitter {
	return &MemTransmitter{in: make(chan []byte, queue)}
}

var _ service.Transmitter = (*MemTransmitter)(nil)

func (tx *MemTransmitter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.connected = true
	tx.connects++
	return nil
}

func (tx *MemTransmitter) Disconnect() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.connected = false
	return nil
}

func (tx *MemTransmitter) Send(frame []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.connected {
		return service.ErrNotConnected
	}
	tx.sent = append(tx.sent, append([]byte(nil), frame...))
	return nil
}

func (tx *MemTransmitter) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f := <-tx.in:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver queues frame as if it arrived from the entry.
func (tx *MemTransmitter) Deliver(frame []byte) {
	tx.in <- frame
}

// Sent returns every frame sent so far.
func (tx *MemTransmitter) Sent() [][]byte {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return append([][]byte(nil), tx.sent...)
}

// Drain returns and forgets the frames sent so far.
func (tx *MemTransmitter) Drain() [][]byte {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	out := tx.sent
	tx.sent = nil
	return out
}

func (tx *MemTransmitter) Connected() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.connected
}

// Connects counts successful Connect calls.
func (tx *MemTransmitter) Connects() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.connects
}
