package value_object

import "strconv"

// CircuitID identifies a circuit on a link.
type CircuitID uint32

func (c CircuitID) UInt32() uint32         { return uint32(c) }
func (c CircuitID) Equal(o CircuitID) bool { return c == o }
func (c CircuitID) String() string         { return strconv.FormatUint(uint64(c), 10) }
