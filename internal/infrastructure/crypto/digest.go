package crypto

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"
)

// DigestKind selects the running hash behind a Digest.
type DigestKind uint8

const (
	DigestUndefined DigestKind = iota
	DigestSHA1
	DigestSHA3
)

func (k DigestKind) String() string {
	switch k {
	case DigestSHA1:
		return "sha1"
	case DigestSHA3:
		return "sha3-256"
	default:
		return "undefined"
	}
}

var ErrUndefinedDigest = errors.New("digest: undefined kind")

// Digest is a running relay digest. The zero value is undefined and refuses
// every operation.
type Digest struct {
	kind DigestKind
	h    hash.Hash
}

// NewDigest returns a fresh running digest of the given kind.
func NewDigest(kind DigestKind) (*Digest, error) {
	d := &Digest{}
	if err := d.Init(kind); err != nil {
		return nil, err
	}
	return d, nil
}

// Init resets the digest to an empty state of kind.
func (d *Digest) Init(kind DigestKind) error {
	switch kind {
	case DigestSHA1:
		d.h = sha1.New()
	case DigestSHA3:
		d.h = sha3.New256()
	default:
		d.kind, d.h = DigestUndefined, nil
		return fmt.Errorf("%w: %d", ErrUndefinedDigest, kind)
	}
	d.kind = kind
	return nil
}

func (d *Digest) Kind() DigestKind { return d.kind }

// Update feeds buf into the running state.
func (d *Digest) Update(buf []byte) error {
	if d.h == nil {
		return ErrUndefinedDigest
	}
	d.h.Write(buf)
	return nil
}

// IntermediateDigest feeds buf and returns the first outLen bytes of the
// digest at this point. The running state keeps accumulating afterwards.
func (d *Digest) IntermediateDigest(buf []byte, outLen int) ([]byte, error) {
	if d.h == nil {
		return nil, ErrUndefinedDigest
	}
	if outLen > d.h.Size() {
		return nil, fmt.Errorf("digest: %d bytes requested from %s", outLen, d.kind)
	}
	d.h.Write(buf)
	// Sum finalizes a copy of the state.
	return d.h.Sum(nil)[:outLen], nil
}
