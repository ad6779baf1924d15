package entity

import "github.com/google/uuid"

// ConnState holds the per-connection sequence counters. Both counters start
// at zero on every (re)connect.
type ConnState struct {
	id         uuid.UUID
	cellNumIn  uint16
	cellNumOut uint16
}

// NewConnState returns a fresh ConnState with a new session id.
func NewConnState() *ConnState { return &ConnState{id: uuid.New()} }

// ID identifies the connection session in logs and metrics.
func (s *ConnState) ID() uuid.UUID { return s.id }

// CellNumIn is the next inbound sequence number expected.
func (s *ConnState) CellNumIn() uint16 { return s.cellNumIn }

// CellNumOut is the sequence number the next outbound cell will carry.
func (s *ConnState) CellNumOut() uint16 { return s.cellNumOut }

// NextOutSeq returns the outbound sequence number and advances it.
func (s *ConnState) NextOutSeq() uint16 {
	seq := s.cellNumOut
	s.cellNumOut++
	return seq
}

// AcceptIn checks seq against the expected inbound number. In order it
// advances by one and returns true; otherwise the counter resynchronizes to
// seq+1 and false is returned.
func (s *ConnState) AcceptIn(seq uint16) bool {
	if seq == s.cellNumIn {
		s.cellNumIn++
		return true
	}
	s.cellNumIn = seq + 1
	return false
}

// Reset zeroes both counters and starts a new session id.
func (s *ConnState) Reset() {
	s.id = uuid.New()
	s.cellNumIn, s.cellNumOut = 0, 0
}
