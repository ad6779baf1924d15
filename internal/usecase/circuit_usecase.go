package usecase

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-tor4iot/internal/domain/entity"
	repoif "ikedadada/go-tor4iot/internal/domain/repository"
	"ikedadada/go-tor4iot/internal/domain/service"
	"ikedadada/go-tor4iot/internal/domain/value_object"
	"ikedadada/go-tor4iot/internal/infrastructure/crypto"
	"ikedadada/go-tor4iot/internal/instrument"
	useSvc "ikedadada/go-tor4iot/internal/usecase/service"
)

// HiddenServiceSide selects how the key expansion maps onto the directions
// of the hidden-service hop.
type HiddenServiceSide uint8

const (
	ClientSide HiddenServiceSide = iota
	ServiceSide
)

func (s HiddenServiceSide) String() string {
	if s == ServiceSide {
		return "service"
	}
	return "client"
}

var ErrNoCircuit = errors.New("no active circuit")

const (
	connectedTTL = 255

	// Address type of the CONNECTED body.
	connectedAddrIPv6 = 6
)

var (
	httpRequest  = []byte("GET / HTTP/1.0\r\nHost: handover.iot\r\n\r\n\x00")
	httpResponse = []byte("HTTP/1.1 200 OK\nServer:Tor4IoT\nAccept-Ranges: bytes\nContent-Length: 36\nContent-Type: text/html\n\n<html><body>THANK YOU!</body></html>\x00")

	zeroIV [crypto.BlockSize]byte
)

// connectedBody is the CONNECTED relay body: a zero IPv4 address, address
// type 6, ::1 and a TTL.
func connectedBody() []byte {
	b := make([]byte, 4+1+16+4)
	b[4] = connectedAddrIPv6
	b[4+1+15] = 1
	b[len(b)-1] = connectedTTL
	return b
}

// CircuitUseCase drives the device's single circuit: hop installation, the
// onion pipeline and the relay stream state machine.
type CircuitUseCase interface {
	CellHandler

	// Init starts a fresh circuit with id and makes it the active one.
	Init(id value_object.CircuitID) *entity.Circuit
	// Active returns the active circuit.
	Active() (*entity.Circuit, error)
	// AddMemberByMaterial appends a regular hop keyed from ticket material.
	AddMemberByMaterial(m value_object.HopMaterial) error
	// AddMemberByMaterialForHiddenService appends the end-to-end
	// hidden-service hop.
	AddMemberByMaterialForHiddenService(k *value_object.KeyExpansion, side HiddenServiceSide) error
	// SeedRendezvousDigest replaces the tail's forward digest with SHA-1
	// seeded by seed.
	SeedRendezvousDigest(seed []byte) error
	// SendRelay builds a relay cell, applies the onion layers and sends it.
	SendRelay(cmd value_object.RelayCommand, stream value_object.StreamID, body []byte) error
	// Close tears the active circuit down.
	Close()
}

type circuitUseCaseImpl struct {
	repo   repoif.CircuitRepository
	crypto service.CircuitCryptographyService
	conn   CellSender
	events useSvc.CircuitEvents
	log    *logging.Logger
}

// NewCircuitUseCase returns the circuit layer on top of conn.
func NewCircuitUseCase(
	repo repoif.CircuitRepository,
	cryptoSvc service.CircuitCryptographyService,
	conn CellSender,
	events useSvc.CircuitEvents,
	log *logging.Logger,
) CircuitUseCase {
	return &circuitUseCaseImpl{
		repo:   repo,
		crypto: cryptoSvc,
		conn:   conn,
		events: events,
		log:    log,
	}
}

func (uc *circuitUseCaseImpl) Init(id value_object.CircuitID) *entity.Circuit {
	c, err := uc.repo.Active()
	if err == nil {
		c.Reset(id)
	} else {
		c = entity.NewCircuit(id)
	}
	_ = uc.repo.Save(c)
	instrument.Record(instrument.CircuitInit)
	uc.log.Debugf("circuit %s initialised", id)
	return c
}

func (uc *circuitUseCaseImpl) Active() (*entity.Circuit, error) {
	c, err := uc.repo.Active()
	if repoif.IsNotFound(err) {
		return nil, ErrNoCircuit
	}
	return c, err
}

func (uc *circuitUseCaseImpl) Close() {
	c, err := uc.repo.Active()
	if err != nil {
		return
	}
	c.Teardown()
	_ = uc.repo.Delete(c.ID())
	uc.log.Debugf("circuit %s closed", c.ID())
}

// ----------------------------------------------------------------------------
// ホップ追加

// directionStream keys AES-128 with a zero IV and skips the whole cells the
// delegation server already encrypted.
func directionStream(d value_object.DirectionMaterial) (*crypto.Keystream, error) {
	ks, err := crypto.NewKeystream(d.AESKey[:], zeroIV[:])
	if err != nil {
		return nil, err
	}
	cells := int(d.CryptedBytes) / value_object.CellPayloadSize
	ks.Skip(cells * value_object.CellPayloadSize)
	return ks, nil
}

func (uc *circuitUseCaseImpl) AddMemberByMaterial(m value_object.HopMaterial) error {
	c, err := uc.Active()
	if err != nil {
		return err
	}
	fwd, err := directionStream(m.Forward)
	if err != nil {
		return fmt.Errorf("forward keystream: %w", err)
	}
	bwd, err := directionStream(m.Backward)
	if err != nil {
		return fmt.Errorf("backward keystream: %w", err)
	}
	member := entity.NewMember()
	if err := c.AddMember(member); err != nil {
		return err
	}
	uc.log.Debugf("circuit %s: hop %d keyed, server already used %d/%d bytes", c.ID(), c.Len(),
		m.Forward.CryptedBytes, m.Backward.CryptedBytes)
	// Relays in front of the hidden-service hop do not digest on the device.
	return member.Establish(entity.HopKeys{
		Forward:        fwd,
		Backward:       bwd,
		ForwardDigest:  &crypto.Digest{},
		BackwardDigest: &crypto.Digest{},
	})
}

func (uc *circuitUseCaseImpl) AddMemberByMaterialForHiddenService(k *value_object.KeyExpansion, side HiddenServiceSide) error {
	c, err := uc.Active()
	if err != nil {
		return err
	}
	// Index 0 is the client's forward direction.
	fi, bi := 0, 1
	if side == ServiceSide {
		fi, bi = 1, 0
	}
	fwdDigest, err := seededDigest(crypto.DigestSHA3, k.DigestSeed(fi))
	if err != nil {
		return err
	}
	bwdDigest, err := seededDigest(crypto.DigestSHA3, k.DigestSeed(bi))
	if err != nil {
		return err
	}
	fwd, err := crypto.NewKeystream(k.Key(fi), zeroIV[:])
	if err != nil {
		return err
	}
	bwd, err := crypto.NewKeystream(k.Key(bi), zeroIV[:])
	if err != nil {
		return err
	}
	member := entity.NewMember()
	if err := c.AddMember(member); err != nil {
		return err
	}
	uc.log.Debugf("circuit %s: hidden-service hop keyed (%s side)", c.ID(), side)
	return member.Establish(entity.HopKeys{
		Forward:        fwd,
		Backward:       bwd,
		ForwardDigest:  fwdDigest,
		BackwardDigest: bwdDigest,
	})
}

func (uc *circuitUseCaseImpl) SeedRendezvousDigest(seed []byte) error {
	c, err := uc.Active()
	if err != nil {
		return err
	}
	tail := c.Tail()
	if tail == nil {
		return fmt.Errorf("circuit %s: no rendezvous hop", c.ID())
	}
	d, err := seededDigest(crypto.DigestSHA1, seed)
	if err != nil {
		return err
	}
	tail.SetForwardDigest(d)
	return nil
}

func seededDigest(kind crypto.DigestKind, seed []byte) (*crypto.Digest, error) {
	d, err := crypto.NewDigest(kind)
	if err != nil {
		return nil, err
	}
	if err := d.Update(seed); err != nil {
		return nil, err
	}
	return d, nil
}

// ----------------------------------------------------------------------------
// 送信

func (uc *circuitUseCaseImpl) SendRelay(cmd value_object.RelayCommand, stream value_object.StreamID, body []byte) error {
	c, err := uc.Active()
	if err != nil {
		return err
	}
	return uc.sendRelay(c, cmd, stream, body)
}

func (uc *circuitUseCaseImpl) sendRelay(c *entity.Circuit, cmd value_object.RelayCommand, stream value_object.StreamID, body []byte) error {
	cell := &value_object.Cell{CircID: c.ID(), Cmd: value_object.CmdRelay}
	rc := value_object.RelayCell{Cmd: cmd, StreamID: stream}
	if err := rc.SetBody(body); err != nil {
		return err
	}
	rc.EncodeInto(&cell.Payload)

	if err := uc.crypto.EncryptOutbound(c, &cell.Payload); err != nil {
		if !errors.Is(err, service.ErrDigestUnavailable) {
			return fmt.Errorf("relay %s: %w", cmd, err)
		}
		uc.log.Warningf("relay %s on circuit %s: %v", cmd, c.ID(), err)
	}
	instrument.Record(instrument.CellCrypted)
	return uc.conn.SendCell(cell)
}

// ----------------------------------------------------------------------------
// 受信

func (uc *circuitUseCaseImpl) HandleCell(cell *value_object.Cell) {
	c, err := uc.repo.Active()
	if err != nil {
		uc.log.Warningf("%s for circuit %s with no active circuit, dropped", cell.Cmd, cell.CircID)
		return
	}
	if !c.ID().Equal(cell.CircID) {
		uc.log.Warningf("%s for circuit %s, active is %s, dropped", cell.Cmd, cell.CircID, c.ID())
		return
	}

	switch cell.Cmd {
	case value_object.CmdRelay, value_object.CmdRelayEarly:
		uc.handleRelay(c, cell)
	case value_object.CmdCreated:
		uc.log.Infof("circuit %s: CREATED", c.ID())
	case value_object.CmdDestroy:
		uc.log.Noticef("circuit %s: DESTROY received", c.ID())
		uc.events.OnResponseSent(c)
	default:
		uc.log.Infof("circuit %s: unhandled %s", c.ID(), cell.Cmd)
	}
}

func (uc *circuitUseCaseImpl) handleRelay(c *entity.Circuit, cell *value_object.Cell) {
	ok, err := uc.crypto.DecryptInbound(c, &cell.Payload)
	if err != nil {
		uc.log.Warningf("circuit %s: %v", c.ID(), err)
	} else if !ok {
		c.RecordDigestFailure()
		instrument.DigestMismatch()
		uc.log.Warningf("circuit %s: relay digest mismatch (%d so far)", c.ID(), c.DigestFailures())
	}

	rc := value_object.DecodeRelayCell(&cell.Payload)
	uc.log.Debugf("circuit %s: relay %s stream=%d len=%d", c.ID(), rc.Cmd, rc.StreamID, rc.Length)

	switch rc.Cmd {
	case value_object.RelayBegin:
		uc.transition(c, rc.StreamID, entity.StreamOpen, entity.StreamInit)
		if err := uc.sendRelay(c, value_object.RelayConnected, rc.StreamID, connectedBody()); err != nil {
			uc.log.Errorf("circuit %s: CONNECTED: %v", c.ID(), err)
			return
		}
		uc.events.OnResponseSent(c)

	case value_object.RelayConnected:
		instrument.Record(instrument.ConnectedReceived)
		uc.transition(c, rc.StreamID, entity.StreamAwaitingResponse, entity.StreamAwaitingConnected)
		if err := uc.sendRelay(c, value_object.RelayData, rc.StreamID, httpRequest); err != nil {
			uc.log.Errorf("circuit %s: request: %v", c.ID(), err)
			return
		}
		instrument.Record(instrument.RequestSent)

	case value_object.RelayData:
		body := rc.Body()
		if bytes.HasPrefix(body, []byte("GET")) {
			uc.log.Infof("circuit %s: request %q", c.ID(), trimNUL(body))
			if err := uc.sendRelay(c, value_object.RelayData, rc.StreamID, httpResponse); err != nil {
				uc.log.Errorf("circuit %s: response: %v", c.ID(), err)
				return
			}
		} else {
			uc.log.Noticef("circuit %s: response %q", c.ID(), trimNUL(body))
			uc.transition(c, rc.StreamID, entity.StreamClosed, entity.StreamAwaitingResponse)
			destroy := &value_object.Cell{CircID: c.ID(), Cmd: value_object.CmdDestroy}
			if err := uc.conn.SendCell(destroy); err != nil {
				uc.log.Errorf("circuit %s: DESTROY: %v", c.ID(), err)
				return
			}
		}
		instrument.Record(instrument.ResponseSent)
		uc.events.OnResponseSent(c)

	case value_object.RelayEnd:
		uc.log.Noticef("circuit %s: stream %d ended", c.ID(), rc.StreamID)
		c.SetState(entity.StreamClosed)
		c.Teardown()

	default:
		uc.log.Infof("circuit %s: unhandled relay %s", c.ID(), rc.Cmd)
	}
}

// transition moves the stream to next, logging when the current state is not
// one of from.
func (uc *circuitUseCaseImpl) transition(c *entity.Circuit, stream value_object.StreamID, next entity.StreamState, from ...entity.StreamState) {
	prev := c.SetStream(stream, next)
	for _, f := range from {
		if prev == f {
			uc.log.Debugf("circuit %s: stream %d %s -> %s", c.ID(), stream, prev, next)
			return
		}
	}
	uc.log.Warningf("circuit %s: stream %d unexpected %s -> %s", c.ID(), stream, prev, next)
}

func trimNUL(b []byte) []byte { return bytes.TrimRight(b, "\x00") }
