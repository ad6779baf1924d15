package usecase

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"ikedadada/go-tor4iot/internal/domain/value_object"
	"ikedadada/go-tor4iot/internal/infrastructure/crypto"
)

const ticketKDFInfo = "tor4iot-ticket-material"

// TicketIssuer is the delegation server's side of the ticket protocol: it
// seals plaintext tickets for a device.
type TicketIssuer struct {
	keys DeviceKeys
	rand io.Reader
}

// NewTicketIssuer returns an issuer for the device holding keys. rand
// supplies nonces.
func NewTicketIssuer(keys DeviceKeys, rand io.Reader) *TicketIssuer {
	return &TicketIssuer{keys: keys, rand: rand}
}

// Issue encrypts and tags t. A zero nonce is replaced by a random one.
func (i *TicketIssuer) Issue(t *value_object.Ticket) ([]byte, error) {
	if err := i.fillNonce(t.Nonce[:]); err != nil {
		return nil, err
	}
	return i.seal(t.Encode(), t.Nonce[:])
}

// IssueFast encrypts and tags a fast ticket.
func (i *TicketIssuer) IssueFast(t *value_object.FastTicket) ([]byte, error) {
	if err := i.fillNonce(t.Nonce[:]); err != nil {
		return nil, err
	}
	return i.seal(t.Encode(), t.Nonce[:])
}

func (i *TicketIssuer) fillNonce(n []byte) error {
	for _, b := range n {
		if b != 0 {
			return nil
		}
	}
	if _, err := io.ReadFull(i.rand, n); err != nil {
		return fmt.Errorf("ticket nonce: %w", err)
	}
	return nil
}

func (i *TicketIssuer) seal(raw, nonce []byte) ([]byte, error) {
	macOff := len(raw) - value_object.TicketMACSize
	if err := crypto.CryptOnce(i.keys.Ticket[:], nonce, raw[value_object.TicketBodyOffset:macOff]); err != nil {
		return nil, err
	}
	copy(raw[macOff:], crypto.HMACSHA256(i.keys.MAC[:], raw[:macOff]))
	return raw, nil
}

// FastAckTag is the tag a device puts at the start of the fast ticket
// acknowledgement for keyExp.
func (i *TicketIssuer) FastAckTag(keyExp *value_object.KeyExpansion) []byte {
	return crypto.HMACSHA256(i.keys.FastAck[:], keyExp[:])
}

// DeriveTicketMaterial fills the key material of a ticket from secret using
// HKDF-SHA256. Both ends of a test setup derive the same hops from the same
// secret and salt.
func DeriveTicketMaterial(secret, salt []byte, typ value_object.TicketType, cookie uint32) (*value_object.Ticket, error) {
	r := hkdf.New(sha256.New, secret, salt, []byte(ticketKDFInfo))
	t := &value_object.Ticket{Type: typ, Cookie: cookie}
	for _, h := range []*value_object.HopMaterial{&t.Entry, &t.Relay1, &t.Relay2, &t.Rendezvous} {
		for _, d := range []*value_object.DirectionMaterial{&h.Forward, &h.Backward} {
			if _, err := io.ReadFull(r, d.AESKey[:]); err != nil {
				return nil, err
			}
		}
	}
	for _, b := range [][]byte{t.RendInitDigest[:], t.KeyExpansion[:], t.RendInfo[:]} {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
	}
	return t, nil
}
