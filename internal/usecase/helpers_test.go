package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-tor4iot/internal/domain/entity"
	"ikedadada/go-tor4iot/internal/domain/service"
	vo "ikedadada/go-tor4iot/internal/domain/value_object"
	"ikedadada/go-tor4iot/internal/infrastructure/crypto"
	"ikedadada/go-tor4iot/internal/infrastructure/repository"
	infraSvc "ikedadada/go-tor4iot/internal/infrastructure/service"
	"ikedadada/go-tor4iot/internal/log"
	"ikedadada/go-tor4iot/internal/usecase"
)

func testLogger(module string) *logging.Logger {
	return log.Discard().GetLogger(module)
}

type recordingEvents struct {
	established []*entity.Circuit
	responses   []*entity.Circuit
}

func (e *recordingEvents) OnEstablished(c *entity.Circuit)  { e.established = append(e.established, c) }
func (e *recordingEvents) OnResponseSent(c *entity.Circuit) { e.responses = append(e.responses, c) }

// device wires the three protocol layers on an in-memory transmitter.
type device struct {
	tx         *infraSvc.MemTransmitter
	conn       usecase.ConnectionUseCase
	circuits   usecase.CircuitUseCase
	delegation usecase.DelegationUseCase
	events     *recordingEvents
	issuer     *usecase.TicketIssuer
}

func newDevice(t *testing.T, padding []byte) *device {
	t.Helper()
	d := &device{tx: infraSvc.NewMemTransmitter(8), events: &recordingEvents{}}
	require.NoError(t, d.tx.Connect(t.Context()))

	keys := usecase.DefaultDeviceKeys()
	d.conn = usecase.NewConnectionUseCase(d.tx, [usecase.IdentitySize]byte{0xD0}, testLogger("conn"))
	d.circuits = usecase.NewCircuitUseCase(repository.NewCircuitRepo(), service.NewCircuitCryptographyService(),
		d.conn, d.events, testLogger("circuit"))
	d.delegation = usecase.NewDelegationUseCase(keys, 17, d.circuits, d.conn, d.events,
		&repeatReader{b: padding}, testLogger("delegation"))
	d.conn.Route(d.circuits, d.delegation)
	d.issuer = usecase.NewTicketIssuer(keys, &repeatReader{b: []byte{0x5A}})
	return d
}

// repeatReader yields b over and over.
type repeatReader struct {
	b   []byte
	off int
}

func (r *repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b[r.off%len(r.b)]
		r.off++
	}
	return len(p), nil
}

// frame is a decoded outbound frame.
type frame struct {
	fixed *vo.Cell
	vari  *vo.VarCell
}

func (f frame) cmd() vo.Command {
	if f.fixed != nil {
		return f.fixed.Cmd
	}
	return f.vari.Cmd
}

func (f frame) seq() uint16 {
	if f.fixed != nil {
		return f.fixed.Seq
	}
	return f.vari.Seq
}

func decodeFrames(t *testing.T, raw [][]byte) []frame {
	t.Helper()
	out := make([]frame, 0, len(raw))
	for _, b := range raw {
		require.GreaterOrEqual(t, len(b), vo.CellHeaderSize)
		if vo.Command(b[4]).IsVarLength() {
			vc, n, err := vo.DecodeVarCell(b)
			require.NoError(t, err)
			require.Equal(t, len(b), n)
			out = append(out, frame{vari: vc})
			continue
		}
		c, err := vo.DecodeCell(b)
		require.NoError(t, err)
		require.Len(t, b, vo.CellSize)
		out = append(out, frame{fixed: c})
	}
	return out
}

func commands(fs []frame) []vo.Command {
	out := make([]vo.Command, len(fs))
	for i, f := range fs {
		out[i] = f.cmd()
	}
	return out
}

func encodeCell(c *vo.Cell) []byte { return c.Encode() }

func encodeVarCell(t *testing.T, c *vo.VarCell) []byte {
	t.Helper()
	b, err := c.Encode()
	require.NoError(t, err)
	return b
}

// relayCell builds a plaintext RELAY cell for circuit id.
func relayCell(t *testing.T, id vo.CircuitID, seq uint16, cmd vo.RelayCommand, stream vo.StreamID, body []byte) *vo.Cell {
	t.Helper()
	c := &vo.Cell{CircID: id, Cmd: vo.CmdRelay, Seq: seq}
	rc := vo.RelayCell{Cmd: cmd, StreamID: stream}
	require.NoError(t, rc.SetBody(body))
	rc.EncodeInto(&c.Payload)
	return c
}

func keystream(t *testing.T, key []byte, skip int) *crypto.Keystream {
	t.Helper()
	ks, err := crypto.NewKeystream(key, make([]byte, crypto.BlockSize))
	require.NoError(t, err)
	ks.Skip(skip)
	return ks
}

func seededDigest(t *testing.T, kind crypto.DigestKind, seed []byte) *crypto.Digest {
	t.Helper()
	d, err := crypto.NewDigest(kind)
	require.NoError(t, err)
	require.NoError(t, d.Update(seed))
	return d
}
