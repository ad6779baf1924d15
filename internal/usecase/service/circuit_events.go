package service

import "ikedadada/go-tor4iot/internal/domain/entity"

// CircuitEvents is notified by the circuit layer about life cycle changes.
type CircuitEvents interface {
	// OnEstablished fires once a ticket's key material is installed.
	OnEstablished(c *entity.Circuit)
	// OnResponseSent fires when the device has completed its side of an
	// exchange.
	OnResponseSent(c *entity.Circuit)
}
