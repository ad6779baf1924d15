package service

import (
	"errors"

	"ikedadada/go-tor4iot/internal/domain/entity"
	"ikedadada/go-tor4iot/internal/domain/value_object"
)

// ErrDigestUnavailable reports that a relay digest could not be computed
// because the responsible member has no defined digest. Layering itself has
// still been applied.
var ErrDigestUnavailable = errors.New("relay digest unavailable")

// CircuitCryptographyService applies and removes the onion layers of a
// circuit on a cell payload in place.
type CircuitCryptographyService interface {
	// EncryptOutbound stamps the relay digest with the innermost established
	// member and then adds every established member's forward layer, tail
	// first.
	EncryptOutbound(c *entity.Circuit, payload *[value_object.CellPayloadSize]byte) error

	// DecryptInbound removes every established member's backward layer, head
	// first, and verifies the relay digest with the innermost one. ok is
	// false on a digest mismatch.
	DecryptInbound(c *entity.Circuit, payload *[value_object.CellPayloadSize]byte) (ok bool, err error)
}
