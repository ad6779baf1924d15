package usecase

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-tor4iot/internal/domain/entity"
	"ikedadada/go-tor4iot/internal/domain/value_object"
	"ikedadada/go-tor4iot/internal/infrastructure/crypto"
	"ikedadada/go-tor4iot/internal/instrument"
	useSvc "ikedadada/go-tor4iot/internal/usecase/service"
)

// rendezvous1BodySize is rend_info followed by random padding.
const rendezvous1BodySize = 168

var (
	ErrBadTicketMAC      = errors.New("ticket MAC mismatch")
	ErrUnknownTicketType = errors.New("unknown ticket type")
)

// DeviceKeys are the symmetric keys the device shares with the delegation
// server.
type DeviceKeys struct {
	// Ticket decrypts ticket bodies.
	Ticket [16]byte
	// MAC authenticates tickets.
	MAC [16]byte
	// FastAck tags the fast ticket acknowledgement.
	FastAck [16]byte
}

// DefaultDeviceKeys returns keys set to the bytes 0x00..0x0f.
func DefaultDeviceKeys() DeviceKeys {
	var k [16]byte
	for i := range k {
		k[i] = byte(i)
	}
	return DeviceKeys{Ticket: k, MAC: k, FastAck: k}
}

// DelegationUseCase turns delegation tickets into a ready circuit.
type DelegationUseCase interface {
	TicketHandler
}

type delegationUseCaseImpl struct {
	keys     DeviceKeys
	idBase   uint32
	counter  atomic.Uint32
	circuits CircuitUseCase
	conn     CellSender
	events   useSvc.CircuitEvents
	rand     io.Reader
	log      *logging.Logger
}

// NewDelegationUseCase returns the ticket processor. rand supplies the
// RENDEZVOUS1 padding.
func NewDelegationUseCase(
	keys DeviceKeys,
	idBase uint32,
	circuits CircuitUseCase,
	conn CellSender,
	events useSvc.CircuitEvents,
	rand io.Reader,
	log *logging.Logger,
) DelegationUseCase {
	return &delegationUseCaseImpl{
		keys:     keys,
		idBase:   idBase,
		circuits: circuits,
		conn:     conn,
		events:   events,
		rand:     rand,
		log:      log,
	}
}

// openTicket verifies the trailing tag of raw and decrypts the body in a
// copy.
func (uc *delegationUseCaseImpl) openTicket(raw []byte, size int) ([]byte, error) {
	if len(raw) != size {
		instrument.TicketRejected("size")
		return nil, fmt.Errorf("%w: %d != %d", value_object.ErrTicketSize, len(raw), size)
	}
	macOff := size - value_object.TicketMACSize
	if !crypto.VerifyHMACSHA256(uc.keys.MAC[:], raw[:macOff], raw[macOff:]) {
		instrument.TicketRejected("mac")
		return nil, ErrBadTicketMAC
	}
	instrument.Record(instrument.TicketChecked)

	plain := append([]byte(nil), raw...)
	nonce := plain[:value_object.TicketNonceSize]
	if err := crypto.CryptOnce(uc.keys.Ticket[:], nonce, plain[value_object.TicketBodyOffset:macOff]); err != nil {
		return nil, err
	}
	instrument.Record(instrument.TicketDecrypted)
	return plain, nil
}

func (uc *delegationUseCaseImpl) ProcessTicket(raw []byte) error {
	start := time.Now()
	instrument.Record(instrument.TicketReceived)

	plain, err := uc.openTicket(raw, value_object.TicketSize)
	if err != nil {
		return err
	}
	t, err := value_object.DecodeTicket(plain)
	if err != nil {
		return err
	}
	if t.Type != value_object.TicketTypeClient && t.Type != value_object.TicketTypeHiddenService {
		instrument.TicketRejected("type")
		return fmt.Errorf("%w: %d", ErrUnknownTicketType, uint8(t.Type))
	}

	id := value_object.CircuitID(uc.idBase + uc.counter.Add(1) - 1)
	c := uc.circuits.Init(id)
	uc.log.Noticef("%s ticket accepted, circuit %s", t.Type, id)

	for i, hop := range t.Hops() {
		if err := uc.circuits.AddMemberByMaterial(hop); err != nil {
			return fmt.Errorf("hop %d: %w", i+1, err)
		}
	}

	switch t.Type {
	case value_object.TicketTypeClient:
		if err := uc.circuits.AddMemberByMaterialForHiddenService(&t.KeyExpansion, ClientSide); err != nil {
			return fmt.Errorf("hidden-service hop: %w", err)
		}
		if err := uc.sendJoin(id, t.Cookie); err != nil {
			return err
		}
		c.SetStream(value_object.BeginStreamID, entity.StreamAwaitingConnected)
		if err := uc.circuits.SendRelay(value_object.RelayBegin, value_object.BeginStreamID, nil); err != nil {
			return fmt.Errorf("BEGIN: %w", err)
		}
		instrument.Record(instrument.BeginSent)

	case value_object.TicketTypeHiddenService:
		if err := uc.circuits.SeedRendezvousDigest(t.RendInitDigest[:]); err != nil {
			return fmt.Errorf("rendezvous digest: %w", err)
		}
		if err := uc.sendJoin(id, t.Cookie); err != nil {
			return err
		}
		body := make([]byte, rendezvous1BodySize)
		copy(body, t.RendInfo[:])
		if _, err := io.ReadFull(uc.rand, body[value_object.RendInfoSize:]); err != nil {
			return fmt.Errorf("RENDEZVOUS1 padding: %w", err)
		}
		if err := uc.circuits.SendRelay(value_object.RelayRendezvous1, 0, body); err != nil {
			return fmt.Errorf("RENDEZVOUS1: %w", err)
		}
		instrument.Record(instrument.Rendezvous1Sent)
		if err := uc.circuits.AddMemberByMaterialForHiddenService(&t.KeyExpansion, ServiceSide); err != nil {
			return fmt.Errorf("hidden-service hop: %w", err)
		}
	}

	instrument.ObserveTicket(time.Since(start))
	uc.events.OnEstablished(c)
	return nil
}

func (uc *delegationUseCaseImpl) sendJoin(id value_object.CircuitID, cookie uint32) error {
	payload := make([]byte, value_object.CookieSize)
	binary.BigEndian.PutUint32(payload, cookie)
	if err := uc.conn.SendVarCell(&value_object.VarCell{CircID: id, Cmd: value_object.CmdJoin, Payload: payload}); err != nil {
		return fmt.Errorf("JOIN: %w", err)
	}
	instrument.Record(instrument.JoinSent)
	return nil
}

func (uc *delegationUseCaseImpl) ProcessFastTicket(raw []byte, id value_object.CircuitID) error {
	start := time.Now()
	instrument.Record(instrument.TicketReceived)

	plain, err := uc.openTicket(raw, value_object.FastTicketSize)
	if err != nil {
		return err
	}
	t, err := value_object.DecodeFastTicket(plain)
	if err != nil {
		return err
	}

	c := uc.circuits.Init(id)
	uc.log.Noticef("fast ticket accepted, circuit %s", id)

	ack := &value_object.Cell{CircID: id, Cmd: value_object.CmdFastTicketRelayed}
	copy(ack.Payload[:], crypto.HMACSHA256(uc.keys.FastAck[:], t.KeyExpansion[:]))
	if err := uc.conn.SendCell(ack); err != nil {
		return fmt.Errorf("fast ticket ack: %w", err)
	}

	if err := uc.circuits.AddMemberByMaterialForHiddenService(&t.KeyExpansion, ServiceSide); err != nil {
		return fmt.Errorf("hidden-service hop: %w", err)
	}
	instrument.ObserveTicket(time.Since(start))
	uc.events.OnEstablished(c)
	return nil
}
