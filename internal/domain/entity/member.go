package entity

import (
	"crypto/cipher"
	"errors"
)

// Digest is the running relay digest of one direction of a hop.
type Digest interface {
	Update(buf []byte) error
	IntermediateDigest(buf []byte, outLen int) ([]byte, error)
}

var ErrMemberNotEstablished = errors.New("member not established")

// Member is one hop of a circuit as seen from the device. A member takes part
// in the onion pipeline only once its key material is installed.
type Member struct {
	head        bool
	tail        bool
	established bool

	fwd       cipher.Stream
	bwd       cipher.Stream
	fwdDigest Digest
	bwdDigest Digest
}

// HopKeys is the installed state of both directions of a member.
type HopKeys struct {
	Forward        cipher.Stream
	Backward       cipher.Stream
	ForwardDigest  Digest
	BackwardDigest Digest
}

func NewMember() *Member { return &Member{} }

// Establish installs the keystreams and digests and marks the member usable.
func (m *Member) Establish(k HopKeys) error {
	if k.Forward == nil || k.Backward == nil {
		return errors.New("member: keystream missing")
	}
	m.fwd, m.bwd = k.Forward, k.Backward
	m.fwdDigest, m.bwdDigest = k.ForwardDigest, k.BackwardDigest
	m.established = true
	return nil
}

func (m *Member) IsHead() bool      { return m.head }
func (m *Member) IsTail() bool      { return m.tail }
func (m *Member) Established() bool { return m.established }

// EncryptForward applies this member's forward keystream to p in place.
func (m *Member) EncryptForward(p []byte) error {
	if !m.established {
		return ErrMemberNotEstablished
	}
	m.fwd.XORKeyStream(p, p)
	return nil
}

// DecryptBackward removes this member's backward layer from p in place.
func (m *Member) DecryptBackward(p []byte) error {
	if !m.established {
		return ErrMemberNotEstablished
	}
	m.bwd.XORKeyStream(p, p)
	return nil
}

func (m *Member) ForwardDigest() Digest  { return m.fwdDigest }
func (m *Member) BackwardDigest() Digest { return m.bwdDigest }

// SetForwardDigest replaces the forward digest, e.g. to seed it.
func (m *Member) SetForwardDigest(d Digest) { m.fwdDigest = d }

// Teardown drops the key material.
func (m *Member) Teardown() {
	m.established = false
	m.fwd, m.bwd = nil, nil
	m.fwdDigest, m.bwdDigest = nil, nil
}
