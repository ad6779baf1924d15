package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-tor4iot/internal/domain/entity"
	"ikedadada/go-tor4iot/internal/domain/service"
	"ikedadada/go-tor4iot/internal/infrastructure/repository"
	"ikedadada/go-tor4iot/internal/log"
	"ikedadada/go-tor4iot/internal/usecase"
	useSvc "ikedadada/go-tor4iot/internal/usecase/service"
)

// DeviceOptions are the per-device parameters of the runtime.
type DeviceOptions struct {
	Identity       [usecase.IdentitySize]byte
	Keys           usecase.DeviceKeys
	CircuitIDBase  uint32
	ReconnectDelay time.Duration
	// Rand supplies RENDEZVOUS1 padding.
	Rand io.Reader
}

// Device owns the session with the entry relay. Every entry point into the
// protocol layers runs under one mutex.
type Device struct {
	mu  sync.Mutex
	tx  useSvc.Transmitter
	opt DeviceOptions
	log *logging.Logger

	conn       usecase.ConnectionUseCase
	circuits   usecase.CircuitUseCase
	delegation usecase.DelegationUseCase

	// endSession stops the current receive loop; set while a session runs.
	endSession context.CancelFunc
}

var _ useSvc.CircuitEvents = (*Device)(nil)

// NewDevice wires the connection, circuit and delegation layers on tx.
func NewDevice(tx useSvc.Transmitter, opt DeviceOptions, logs *log.Backend) *Device {
	d := &Device{tx: tx, opt: opt, log: logs.GetLogger("device")}
	d.conn = usecase.NewConnectionUseCase(tx, opt.Identity, logs.GetLogger("conn"))
	d.circuits = usecase.NewCircuitUseCase(repository.NewCircuitRepo(), service.NewCircuitCryptographyService(),
		d.conn, d, logs.GetLogger("circuit"))
	d.delegation = usecase.NewDelegationUseCase(opt.Keys, opt.CircuitIDBase, d.circuits, d.conn, d,
		opt.Rand, logs.GetLogger("delegation"))
	d.conn.Route(d.circuits, d.delegation)
	return d
}

// Run connects, serves sessions and reconnects after ReconnectDelay until
// ctx is done.
func (d *Device) Run(ctx context.Context) error {
	for {
		if err := d.session(ctx); err != nil && ctx.Err() == nil {
			d.log.Warningf("session: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.opt.ReconnectDelay):
			d.log.Debug("reconnecting")
		}
	}
}

func (d *Device) session(ctx context.Context) error {
	if err := d.tx.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := d.tx.Disconnect(); err != nil {
			d.log.Warningf("disconnect: %v", err)
		}
	}()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	d.endSession = cancel
	d.conn.Reset()
	err := d.conn.SendInfo()
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}
	d.log.Noticef("session %s connected", d.conn.State().ID())

	for {
		frame, err := d.tx.Receive(sctx)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				d.log.Noticef("session %s finished", d.conn.State().ID())
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}
		d.Input(frame)
	}
}

// Input feeds one received datagram into the connection.
func (d *Device) Input(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conn.HandleInput(frame)
}

// OnEstablished is called with the device lock held.
func (d *Device) OnEstablished(c *entity.Circuit) {
	d.log.Noticef("circuit %s established with %d hops", c.ID(), c.Len())
}

// OnResponseSent closes the circuit and ends the session; Run reconnects
// after ReconnectDelay. Called with the device lock held.
func (d *Device) OnResponseSent(c *entity.Circuit) {
	d.log.Noticef("circuit %s done", c.ID())
	d.circuits.Close()
	if d.endSession != nil {
		d.endSession()
		d.endSession = nil
	}
}
