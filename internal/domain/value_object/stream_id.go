package value_object

// StreamID identifies a relay stream inside a circuit. Zero addresses the
// circuit itself (RENDEZVOUS1 and other control cells).
type StreamID uint16

// BeginStreamID is the stream the client role opens with RELAY_BEGIN.
const BeginStreamID StreamID = 1234

func (s StreamID) UInt16() uint16        { return uint16(s) }
func (s StreamID) Equal(o StreamID) bool { return s == o }
