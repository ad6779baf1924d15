package value_object

import (
	"encoding/binary"
	"fmt"
)

// RelayCommand is the command carried inside a relay cell.
type RelayCommand uint8

const (
	RelayBegin     RelayCommand = 1
	RelayData      RelayCommand = 2
	RelayEnd       RelayCommand = 3
	RelayConnected RelayCommand = 4
	RelaySendMe    RelayCommand = 5
	RelayExtend    RelayCommand = 6
	RelayExtended  RelayCommand = 7
	RelayTruncate  RelayCommand = 8
	RelayTruncated RelayCommand = 9
	RelayDrop      RelayCommand = 10
	RelayResolve   RelayCommand = 11
	RelayResolved  RelayCommand = 12
	RelayBeginDir  RelayCommand = 13
	RelayExtend2   RelayCommand = 14
	RelayExtended2 RelayCommand = 15

	RelayEstablishIntro        RelayCommand = 32
	RelayEstablishRendezvous   RelayCommand = 33
	RelayIntroduce1            RelayCommand = 34
	RelayIntroduce2            RelayCommand = 35
	RelayRendezvous1           RelayCommand = 36
	RelayRendezvous2           RelayCommand = 37
	RelayIntroEstablished      RelayCommand = 38
	RelayRendezvousEstablished RelayCommand = 39
	RelayIntroduceAck          RelayCommand = 40

	RelayPreTicket1 RelayCommand = 50
	RelayPreTicket2 RelayCommand = 51

	RelayTicket1 RelayCommand = 53
	RelayTicket2 RelayCommand = 54

	RelayFastTicket1 RelayCommand = 55
	RelayFastTicket2 RelayCommand = 56

	RelayTicketRelayed1 RelayCommand = 57
	RelayTicketRelayed2 RelayCommand = 58

	RelayFastTicketRelayed1 RelayCommand = 59
	RelayFastTicketRelayed2 RelayCommand = 60
)

// Relay header offsets within a cell payload.
const (
	relayCommandOff    = 0
	relayRecognizedOff = 1
	relayStreamIDOff   = 3
	RelayDigestOffset  = 5
	relayLengthOff     = 9

	RelayDigestSize      = 4
	RelayHeaderSize      = 11
	RelayCellPayloadSize = CellPayloadSize - RelayHeaderSize
)

func (c RelayCommand) String() string {
	switch c {
	case RelayBegin:
		return "BEGIN"
	case RelayData:
		return "DATA"
	case RelayEnd:
		return "END"
	case RelayConnected:
		return "CONNECTED"
	case RelayRendezvous1:
		return "RENDEZVOUS1"
	case RelayRendezvous2:
		return "RENDEZVOUS2"
	default:
		return fmt.Sprintf("RELAY(%d)", uint8(c))
	}
}

// RelayCell is the interpretation of a cell payload at the relay layer.
type RelayCell struct {
	Cmd        RelayCommand
	Recognized uint16
	StreamID   StreamID
	Digest     [RelayDigestSize]byte
	Length     uint16
	Data       [RelayCellPayloadSize]byte
}

// DecodeRelayCell reads the relay view of a cell payload.
func DecodeRelayCell(p *[CellPayloadSize]byte) *RelayCell {
	r := &RelayCell{
		Cmd:        RelayCommand(p[relayCommandOff]),
		Recognized: binary.BigEndian.Uint16(p[relayRecognizedOff:]),
		StreamID:   StreamID(binary.BigEndian.Uint16(p[relayStreamIDOff:])),
		Length:     binary.BigEndian.Uint16(p[relayLengthOff:]),
	}
	copy(r.Digest[:], p[RelayDigestOffset:RelayDigestOffset+RelayDigestSize])
	copy(r.Data[:], p[RelayHeaderSize:])
	return r
}

// EncodeInto writes the relay cell into a cell payload.
func (r *RelayCell) EncodeInto(p *[CellPayloadSize]byte) {
	p[relayCommandOff] = byte(r.Cmd)
	binary.BigEndian.PutUint16(p[relayRecognizedOff:], r.Recognized)
	binary.BigEndian.PutUint16(p[relayStreamIDOff:], r.StreamID.UInt16())
	copy(p[RelayDigestOffset:], r.Digest[:])
	binary.BigEndian.PutUint16(p[relayLengthOff:], r.Length)
	copy(p[RelayHeaderSize:], r.Data[:])
}

// Body returns the used part of Data, clamped to the relay payload size.
func (r *RelayCell) Body() []byte {
	n := int(r.Length)
	if n > RelayCellPayloadSize {
		n = RelayCellPayloadSize
	}
	return r.Data[:n]
}

// SetBody zeroes Data, copies b into it and sets Length to len(b).
func (r *RelayCell) SetBody(b []byte) error {
	if len(b) > RelayCellPayloadSize {
		return fmt.Errorf("relay body too big: %d > %d", len(b), RelayCellPayloadSize)
	}
	r.Data = [RelayCellPayloadSize]byte{}
	copy(r.Data[:], b)
	r.Length = uint16(len(b))
	return nil
}

// RelayDigest returns the digest field of a cell payload.
func RelayDigest(p *[CellPayloadSize]byte) [RelayDigestSize]byte {
	var d [RelayDigestSize]byte
	copy(d[:], p[RelayDigestOffset:])
	return d
}

// SetRelayDigest overwrites the digest field of a cell payload.
func SetRelayDigest(p *[CellPayloadSize]byte, d []byte) {
	copy(p[RelayDigestOffset:RelayDigestOffset+RelayDigestSize], d)
}

// ZeroRelayDigest clears the digest field of a cell payload.
func ZeroRelayDigest(p *[CellPayloadSize]byte) {
	for i := RelayDigestOffset; i < RelayDigestOffset+RelayDigestSize; i++ {
		p[i] = 0
	}
}
