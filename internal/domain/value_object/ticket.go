package value_object

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TicketType selects which side of the rendezvous the device plays.
type TicketType uint8

const (
	TicketTypeHiddenService TicketType = 1
	TicketTypeClient        TicketType = 2
)

func (t TicketType) String() string {
	switch t {
	case TicketTypeHiddenService:
		return "hidden-service"
	case TicketTypeClient:
		return "client"
	default:
		return fmt.Sprintf("ticket-type(%d)", uint8(t))
	}
}

const (
	TicketNonceSize       = 16
	CookieSize            = 4
	AESKeySize            = 16
	DirectionMaterialSize = AESKeySize + 2
	HopMaterialSize       = 2 * DirectionMaterialSize
	RendInitDigestSize    = 20
	KeyExpansionSize      = 136
	RendInfoSize          = 84
	TicketMACSize         = 32

	// TicketBodyOffset is where the encrypted part of both ticket kinds starts.
	TicketBodyOffset = TicketNonceSize

	TicketSize = TicketNonceSize + CookieSize + 1 + 4*HopMaterialSize +
		RendInitDigestSize + KeyExpansionSize + RendInfoSize + TicketMACSize
	FastTicketSize = TicketNonceSize + CookieSize + KeyExpansionSize + TicketMACSize

	HSKeySize = 32
)

var ErrTicketSize = errors.New("ticket: wrong size")

// DirectionMaterial is the AES key for one direction of a hop together with
// the number of bytes the delegation server already encrypted under it.
type DirectionMaterial struct {
	AESKey       [AESKeySize]byte
	CryptedBytes uint16
}

// HopMaterial holds both directions of a regular hop.
type HopMaterial struct {
	Forward  DirectionMaterial
	Backward DirectionMaterial
}

// KeyExpansion is the hidden-service key derivation output for the last hop:
// two 32-byte digest seeds followed by two 32-byte AES-256 keys. The order is
// the client's view (forward first); the service side swaps it.
type KeyExpansion [KeyExpansionSize]byte

func (k *KeyExpansion) DigestSeed(i int) []byte { return k[i*HSKeySize : (i+1)*HSKeySize] }
func (k *KeyExpansion) Key(i int) []byte        { return k[(2+i)*HSKeySize : (3+i)*HSKeySize] }

// Ticket is the plaintext form of a delegation ticket.
type Ticket struct {
	Nonce          [TicketNonceSize]byte
	Cookie         uint32
	Type           TicketType
	Entry          HopMaterial
	Relay1         HopMaterial
	Relay2         HopMaterial
	Rendezvous     HopMaterial
	RendInitDigest [RendInitDigestSize]byte
	KeyExpansion   KeyExpansion
	RendInfo       [RendInfoSize]byte
	MAC            [TicketMACSize]byte
}

// Hops returns the regular hop material in circuit order.
func (t *Ticket) Hops() [4]HopMaterial {
	return [4]HopMaterial{t.Entry, t.Relay1, t.Relay2, t.Rendezvous}
}

// Encode serializes the ticket into TicketSize bytes.
func (t *Ticket) Encode() []byte {
	w := newWriter(TicketSize)
	w.put(t.Nonce[:])
	w.u32(t.Cookie)
	w.u8(uint8(t.Type))
	for _, h := range t.Hops() {
		w.hop(h)
	}
	w.put(t.RendInitDigest[:])
	w.put(t.KeyExpansion[:])
	w.put(t.RendInfo[:])
	w.put(t.MAC[:])
	return w.buf
}

// DecodeTicket parses a plaintext ticket.
func DecodeTicket(b []byte) (*Ticket, error) {
	if len(b) != TicketSize {
		return nil, fmt.Errorf("%w: %d != %d", ErrTicketSize, len(b), TicketSize)
	}
	r := reader{buf: b}
	t := &Ticket{}
	r.get(t.Nonce[:])
	t.Cookie = r.u32()
	t.Type = TicketType(r.u8())
	t.Entry = r.hop()
	t.Relay1 = r.hop()
	t.Relay2 = r.hop()
	t.Rendezvous = r.hop()
	r.get(t.RendInitDigest[:])
	r.get(t.KeyExpansion[:])
	r.get(t.RendInfo[:])
	r.get(t.MAC[:])
	return t, nil
}

// FastTicket is the reduced ticket used when no delegation server mediates.
type FastTicket struct {
	Nonce        [TicketNonceSize]byte
	Cookie       uint32
	KeyExpansion KeyExpansion
	MAC          [TicketMACSize]byte
}

// Encode serializes the fast ticket into FastTicketSize bytes.
func (t *FastTicket) Encode() []byte {
	w := newWriter(FastTicketSize)
	w.put(t.Nonce[:])
	w.u32(t.Cookie)
	w.put(t.KeyExpansion[:])
	w.put(t.MAC[:])
	return w.buf
}

// DecodeFastTicket parses a plaintext fast ticket.
func DecodeFastTicket(b []byte) (*FastTicket, error) {
	if len(b) != FastTicketSize {
		return nil, fmt.Errorf("%w: %d != %d", ErrTicketSize, len(b), FastTicketSize)
	}
	r := reader{buf: b}
	t := &FastTicket{}
	r.get(t.Nonce[:])
	t.Cookie = r.u32()
	r.get(t.KeyExpansion[:])
	r.get(t.MAC[:])
	return t, nil
}

type writer struct {
	buf []byte
	off int
}

func newWriter(n int) *writer { return &writer{buf: make([]byte, n)} }

func (w *writer) put(b []byte) { w.off += copy(w.buf[w.off:], b) }
func (w *writer) u8(v uint8)   { w.buf[w.off] = v; w.off++ }
func (w *writer) u16(v uint16) { binary.BigEndian.PutUint16(w.buf[w.off:], v); w.off += 2 }
func (w *writer) u32(v uint32) { binary.BigEndian.PutUint32(w.buf[w.off:], v); w.off += 4 }

func (w *writer) hop(h HopMaterial) {
	for _, d := range []DirectionMaterial{h.Forward, h.Backward} {
		w.put(d.AESKey[:])
		w.u16(d.CryptedBytes)
	}
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) get(b []byte) { r.off += copy(b, r.buf[r.off:]) }
func (r *reader) u8() uint8    { v := r.buf[r.off]; r.off++; return v }
func (r *reader) u16() uint16  { v := binary.BigEndian.Uint16(r.buf[r.off:]); r.off += 2; return v }
func (r *reader) u32() uint32  { v := binary.BigEndian.Uint32(r.buf[r.off:]); r.off += 4; return v }

func (r *reader) hop() HopMaterial {
	var h HopMaterial
	for _, d := range []*DirectionMaterial{&h.Forward, &h.Backward} {
		r.get(d.AESKey[:])
		d.CryptedBytes = r.u16()
	}
	return h
}
