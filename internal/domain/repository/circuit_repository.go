package repository

import (
	"ikedadada/go-tor4iot/internal/domain/entity"
	vo "ikedadada/go-tor4iot/internal/domain/value_object"
)

// CircuitRepository holds the circuits a device currently drives. A device
// has at most one live circuit.
type CircuitRepository interface {
	Save(*entity.Circuit) error
	Find(vo.CircuitID) (*entity.Circuit, error)
	Active() (*entity.Circuit, error)
	Delete(vo.CircuitID) error
}
