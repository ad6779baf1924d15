package usecase

import (
	"encoding/binary"
	"errors"
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-tor4iot/internal/domain/entity"
	"ikedadada/go-tor4iot/internal/domain/value_object"
	"ikedadada/go-tor4iot/internal/instrument"
	useSvc "ikedadada/go-tor4iot/internal/usecase/service"
)

// IdentitySize is the length of the device identity announced in INFO.
const IdentitySize = 32

// CellSender is the outbound half of a connection.
type CellSender interface {
	SendCell(c *value_object.Cell) error
	SendVarCell(c *value_object.VarCell) error
}

// CellHandler receives every fixed-size cell that passed sequencing.
type CellHandler interface {
	HandleCell(c *value_object.Cell)
}

// TicketHandler receives delegation tickets.
type TicketHandler interface {
	ProcessTicket(raw []byte) error
	ProcessFastTicket(raw []byte, id value_object.CircuitID) error
}

// ConnectionUseCase sequences and dispatches the cells exchanged with the
// entry relay.
type ConnectionUseCase interface {
	CellSender
	// HandleInput processes a datagram that may hold several coalesced
	// cells.
	HandleInput(buf []byte)
	// SendInfo announces the device identity and its counters.
	SendInfo() error
	// Route sets where inbound cells and tickets go.
	Route(cells CellHandler, tickets TicketHandler)
	// Reset starts a new session with zeroed counters.
	Reset()
	State() *entity.ConnState
}

type connectionUseCaseImpl struct {
	tx       useSvc.Transmitter
	state    *entity.ConnState
	identity [IdentitySize]byte
	cells    CellHandler
	tickets  TicketHandler
	log      *logging.Logger
}

// NewConnectionUseCase returns a connection that writes frames to tx.
func NewConnectionUseCase(tx useSvc.Transmitter, identity [IdentitySize]byte, log *logging.Logger) ConnectionUseCase {
	return &connectionUseCaseImpl{
		tx:       tx,
		state:    entity.NewConnState(),
		identity: identity,
		log:      log,
	}
}

func (uc *connectionUseCaseImpl) Route(cells CellHandler, tickets TicketHandler) {
	uc.cells, uc.tickets = cells, tickets
}

func (uc *connectionUseCaseImpl) State() *entity.ConnState { return uc.state }

func (uc *connectionUseCaseImpl) Reset() {
	uc.state.Reset()
	uc.log.Debugf("session %s: counters reset", uc.state.ID())
}

func (uc *connectionUseCaseImpl) SendCell(c *value_object.Cell) error {
	c.Seq = uc.state.NextOutSeq()
	if err := uc.tx.Send(c.Encode()); err != nil {
		return fmt.Errorf("send %s: %w", c.Cmd, err)
	}
	instrument.CellOut(c.Cmd.String())
	uc.log.Debugf("sent %s circ=%s seq=%d", c.Cmd, c.CircID, c.Seq)
	return nil
}

func (uc *connectionUseCaseImpl) SendVarCell(c *value_object.VarCell) error {
	c.Seq = uc.state.NextOutSeq()
	return uc.writeVarCell(c)
}

func (uc *connectionUseCaseImpl) writeVarCell(c *value_object.VarCell) error {
	b, err := c.Encode()
	if err != nil {
		return err
	}
	if err := uc.tx.Send(b); err != nil {
		return fmt.Errorf("send %s: %w", c.Cmd, err)
	}
	instrument.CellOut(c.Cmd.String())
	uc.log.Debugf("sent %s circ=%s seq=%d len=%d", c.Cmd, c.CircID, c.Seq, len(c.Payload))
	return nil
}

// sendAck acknowledges the cell that moved the inbound counter. ACKs carry
// the new expected counter and do not consume an outbound sequence number.
func (uc *connectionUseCaseImpl) sendAck() {
	ack := &value_object.VarCell{Cmd: value_object.CmdAck, Seq: uc.state.CellNumIn()}
	if err := uc.writeVarCell(ack); err != nil {
		uc.log.Warningf("ack %d: %v", ack.Seq, err)
	}
}

func (uc *connectionUseCaseImpl) SendInfo() error {
	payload := make([]byte, IdentitySize+4)
	copy(payload, uc.identity[:])
	binary.BigEndian.PutUint16(payload[IdentitySize:], uc.state.CellNumIn())
	binary.BigEndian.PutUint16(payload[IdentitySize+2:], uc.state.CellNumOut())
	return uc.SendVarCell(&value_object.VarCell{Cmd: value_object.CmdInfo, Payload: payload})
}

func (uc *connectionUseCaseImpl) HandleInput(buf []byte) {
	for len(buf) > 0 {
		buf = buf[uc.handleOne(buf):]
	}
}

// handleOne processes the first cell in buf and returns how many bytes it
// took. Unparseable input consumes the rest of the buffer.
func (uc *connectionUseCaseImpl) handleOne(buf []byte) int {
	if len(buf) < value_object.CellHeaderSize {
		uc.log.Warningf("dropping %d trailing bytes: short header", len(buf))
		return len(buf)
	}
	cmd := value_object.Command(buf[4])
	if cmd.IsVarLength() {
		vc, n, err := value_object.DecodeVarCell(buf)
		switch {
		case errors.Is(err, value_object.ErrVarCellTruncated):
			uc.log.Warningf("%s: %v, processing %d available bytes", cmd, err, len(vc.Payload))
		case err != nil:
			uc.log.Warningf("dropping %d bytes: %v", len(buf), err)
			return n
		}
		uc.handleVarCell(vc)
		return n
	}

	if len(buf) < value_object.CellSize {
		uc.log.Warningf("dropping %d bytes: fixed %s cell needs %d", len(buf), cmd, value_object.CellSize)
		return len(buf)
	}
	c, err := value_object.DecodeCell(buf[:value_object.CellSize])
	if err != nil {
		uc.log.Warningf("dropping cell: %v", err)
		return value_object.CellSize
	}
	uc.handleCell(c)
	return value_object.CellSize
}

func (uc *connectionUseCaseImpl) checkSeq(cmd value_object.Command, seq uint16) {
	expected := uc.state.CellNumIn()
	if uc.state.AcceptIn(seq) {
		uc.sendAck()
		return
	}
	instrument.SequenceResync()
	if seq < expected {
		uc.log.Warningf("%s: duplicate or reordered seq %d, expected %d", cmd, seq, expected)
	} else {
		uc.log.Warningf("%s: lost %d cell(s), seq %d expected %d", cmd, seq-expected, seq, expected)
	}
}

func (uc *connectionUseCaseImpl) handleVarCell(c *value_object.VarCell) {
	instrument.CellIn(c.Cmd.String())
	if c.Cmd == value_object.CmdAck {
		uc.log.Debugf("ack %d", c.Seq)
		return
	}
	uc.checkSeq(c.Cmd, c.Seq)

	switch c.Cmd {
	case value_object.CmdTicket:
		if uc.tickets == nil {
			uc.log.Warning("ticket received but no delegation is routed")
			return
		}
		if err := uc.tickets.ProcessTicket(c.Payload); err != nil {
			uc.log.Warningf("ticket: %v", err)
		}
	case value_object.CmdFastTicket:
		if uc.tickets == nil {
			uc.log.Warning("fast ticket received but no delegation is routed")
			return
		}
		if err := uc.tickets.ProcessFastTicket(c.Payload, c.CircID); err != nil {
			uc.log.Warningf("fast ticket: %v", err)
		}
	default:
		uc.log.Infof("unhandled var cell %s circ=%s len=%d", c.Cmd, c.CircID, len(c.Payload))
	}
}

func (uc *connectionUseCaseImpl) handleCell(c *value_object.Cell) {
	instrument.CellIn(c.Cmd.String())
	uc.checkSeq(c.Cmd, c.Seq)
	if uc.cells == nil {
		uc.log.Warningf("%s cell received but no circuit is routed", c.Cmd)
		return
	}
	uc.cells.HandleCell(c)
}
