package value_object

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Command is the link-level cell command.
type Command uint8

const (
	CmdPadding          Command = 0
	CmdCreate           Command = 1
	CmdCreated          Command = 2
	CmdRelay            Command = 3
	CmdDestroy          Command = 4
	CmdCreateFast       Command = 5
	CmdCreatedFast      Command = 6
	CmdVersions         Command = 7
	CmdNetInfo          Command = 8
	CmdRelayEarly       Command = 9
	CmdCreate2          Command = 10
	CmdCreated2         Command = 11
	CmdPaddingNegotiate Command = 12

	CmdTicketRelayed     Command = 21
	CmdFastTicketRelayed Command = 23

	CmdVPadding      Command = 128
	CmdCerts         Command = 129
	CmdAuthChallenge Command = 130
	CmdAuthenticate  Command = 131
	CmdAuthorize     Command = 132

	CmdJoin       Command = 133
	CmdInfo       Command = 134
	CmdPreTicket  Command = 135
	CmdTicket     Command = 136
	CmdFastTicket Command = 137

	CmdAck Command = 140
)

const (
	CellHeaderSize    = 7 // CIRC(4)+CMD(1)+SEQ(2)
	VarCellHeaderSize = 9 // CIRC(4)+CMD(1)+SEQ(2)+LEN(2)
	CellPayloadSize   = 509
	CellSize          = CellHeaderSize + CellPayloadSize

	MaxVarPayloadSize = CellPayloadSize
)

var (
	ErrShortBuffer       = errors.New("cell: buffer too short")
	ErrVarCellTruncated  = errors.New("cell: var cell longer than buffer")
	ErrVarPayloadTooLong = errors.New("cell: var cell payload too long")
)

// IsVarLength reports whether cells carrying cmd are variable-length.
// Commands 128 and above are, and VERSIONS is grandfathered in.
func (c Command) IsVarLength() bool {
	return c == CmdVersions || c >= 128
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CMD(%d)", uint8(c))
}

var commandNames = map[Command]string{
	CmdPadding:           "PADDING",
	CmdCreate:            "CREATE",
	CmdCreated:           "CREATED",
	CmdRelay:             "RELAY",
	CmdDestroy:           "DESTROY",
	CmdCreateFast:        "CREATE_FAST",
	CmdCreatedFast:       "CREATED_FAST",
	CmdVersions:          "VERSIONS",
	CmdNetInfo:           "NETINFO",
	CmdRelayEarly:        "RELAY_EARLY",
	CmdCreate2:           "CREATE2",
	CmdCreated2:          "CREATED2",
	CmdPaddingNegotiate:  "PADDING_NEGOTIATE",
	CmdTicketRelayed:     "IOT_TICKET_RELAYED",
	CmdFastTicketRelayed: "IOT_FAST_TICKET_RELAYED",
	CmdVPadding:          "VPADDING",
	CmdCerts:             "CERTS",
	CmdAuthChallenge:     "AUTH_CHALLENGE",
	CmdAuthenticate:      "AUTHENTICATE",
	CmdAuthorize:         "AUTHORIZE",
	CmdJoin:              "JOIN",
	CmdInfo:              "IOT_INFO",
	CmdPreTicket:         "IOT_PRE_TICKET",
	CmdTicket:            "IOT_TICKET",
	CmdFastTicket:        "IOT_FAST_TICKET",
	CmdAck:               "ACK",
}

// Cell represents a fixed 516-byte protocol cell.
type Cell struct {
	CircID  CircuitID
	Cmd     Command
	Seq     uint16
	Payload [CellPayloadSize]byte
}

// Encode serializes the cell into a fixed CellSize slice.
func (c *Cell) Encode() []byte {
	buf := make([]byte, CellSize)
	binary.BigEndian.PutUint32(buf[0:4], c.CircID.UInt32())
	buf[4] = byte(c.Cmd)
	binary.BigEndian.PutUint16(buf[5:7], c.Seq)
	copy(buf[CellHeaderSize:], c.Payload[:])
	return buf
}

// DecodeCell parses the first CellSize bytes of buf.
func DecodeCell(buf []byte) (*Cell, error) {
	if len(buf) < CellSize {
		return nil, fmt.Errorf("%w: fixed cell needs %d bytes, have %d", ErrShortBuffer, CellSize, len(buf))
	}
	c := &Cell{
		CircID: CircuitID(binary.BigEndian.Uint32(buf[0:4])),
		Cmd:    Command(buf[4]),
		Seq:    binary.BigEndian.Uint16(buf[5:7]),
	}
	copy(c.Payload[:], buf[CellHeaderSize:CellSize])
	return c, nil
}

// VarCell represents a variable-length protocol cell.
type VarCell struct {
	CircID  CircuitID
	Cmd     Command
	Seq     uint16
	Payload []byte
}

// Encode serializes the var cell; the length field is taken from Payload.
func (c *VarCell) Encode() ([]byte, error) {
	if len(c.Payload) > MaxVarPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrVarPayloadTooLong, len(c.Payload), MaxVarPayloadSize)
	}
	buf := make([]byte, VarCellHeaderSize+len(c.Payload))
	binary.BigEndian.PutUint32(buf[0:4], c.CircID.UInt32())
	buf[4] = byte(c.Cmd)
	binary.BigEndian.PutUint16(buf[5:7], c.Seq)
	binary.BigEndian.PutUint16(buf[7:9], uint16(len(c.Payload)))
	copy(buf[VarCellHeaderSize:], c.Payload)
	return buf, nil
}

// DecodeVarCell parses a var cell at the start of buf and returns the number
// of bytes it occupies. When the declared length runs past the end of buf the
// cell holding the available prefix is returned together with
// ErrVarCellTruncated, and consumed is len(buf).
func DecodeVarCell(buf []byte) (cell *VarCell, consumed int, err error) {
	if len(buf) < VarCellHeaderSize {
		return nil, len(buf), fmt.Errorf("%w: var cell header needs %d bytes, have %d", ErrShortBuffer, VarCellHeaderSize, len(buf))
	}
	declared := int(binary.BigEndian.Uint16(buf[7:9]))
	if declared > MaxVarPayloadSize {
		return nil, len(buf), fmt.Errorf("%w: %d > %d", ErrVarPayloadTooLong, declared, MaxVarPayloadSize)
	}
	cell = &VarCell{
		CircID: CircuitID(binary.BigEndian.Uint32(buf[0:4])),
		Cmd:    Command(buf[4]),
		Seq:    binary.BigEndian.Uint16(buf[5:7]),
	}
	avail := len(buf) - VarCellHeaderSize
	if declared > avail {
		cell.Payload = append([]byte(nil), buf[VarCellHeaderSize:]...)
		return cell, len(buf), fmt.Errorf("%w: declared %d, have %d", ErrVarCellTruncated, declared, avail)
	}
	cell.Payload = append([]byte(nil), buf[VarCellHeaderSize:VarCellHeaderSize+declared]...)
	return cell, VarCellHeaderSize + declared, nil
}
