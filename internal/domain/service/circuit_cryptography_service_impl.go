package service

import (
	"crypto/subtle"
	"fmt"

	"ikedadada/go-tor4iot/internal/domain/entity"
	"ikedadada/go-tor4iot/internal/domain/value_object"
)

type circuitCryptographyServiceImpl struct{}

// NewCircuitCryptographyService creates a new CircuitCryptographyService
func NewCircuitCryptographyService() CircuitCryptographyService {
	return &circuitCryptographyServiceImpl{}
}

func (s *circuitCryptographyServiceImpl) EncryptOutbound(c *entity.Circuit, payload *[value_object.CellPayloadSize]byte) error {
	if !c.Established() {
		return nil
	}
	var digestErr error
	digested := false
	ms := c.Members()
	for i := len(ms) - 1; i >= 0; i-- {
		m := ms[i]
		if !m.Established() {
			continue
		}
		if !digested {
			digested = true
			digestErr = stampDigest(m, payload)
		}
		if err := m.EncryptForward(payload[:]); err != nil {
			return fmt.Errorf("encrypt member %d: %w", i, err)
		}
	}
	return digestErr
}

func stampDigest(m *entity.Member, payload *[value_object.CellPayloadSize]byte) error {
	value_object.ZeroRelayDigest(payload)
	d := m.ForwardDigest()
	if d == nil {
		return ErrDigestUnavailable
	}
	sum, err := d.IntermediateDigest(payload[:], value_object.RelayDigestSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDigestUnavailable, err)
	}
	value_object.SetRelayDigest(payload, sum)
	return nil
}

func (s *circuitCryptographyServiceImpl) DecryptInbound(c *entity.Circuit, payload *[value_object.CellPayloadSize]byte) (bool, error) {
	if !c.Established() {
		return true, nil
	}
	var last *entity.Member
	for i, m := range c.Members() {
		if !m.Established() {
			continue
		}
		if err := m.DecryptBackward(payload[:]); err != nil {
			return false, fmt.Errorf("decrypt member %d: %w", i, err)
		}
		last = m
	}

	received := value_object.RelayDigest(payload)
	value_object.ZeroRelayDigest(payload)
	defer value_object.SetRelayDigest(payload, received[:])

	d := last.BackwardDigest()
	if d == nil {
		return true, ErrDigestUnavailable
	}
	sum, err := d.IntermediateDigest(payload[:], value_object.RelayDigestSize)
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrDigestUnavailable, err)
	}
	return subtle.ConstantTimeCompare(sum, received[:]) == 1, nil
}
