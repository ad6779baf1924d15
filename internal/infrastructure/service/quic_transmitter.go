package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-tor4iot/internal/usecase/service"
)

// QUICTransmitter carries cell frames as QUIC datagrams (RFC 9221) to the
// entry relay. Datagrams are unreliable and unordered, which the cell
// sequence numbers account for.
type QUICTransmitter struct {
	addr    string
	tlsConf *tls.Config
	qconf   *quic.Config
	log     *logging.Logger

	mu   sync.Mutex
	conn *quic.Conn
}

var _ service.Transmitter = (*QUICTransmitter)(nil)

// TLSConfig builds the client TLS configuration for the entry.
func TLSConfig(serverName, alpn string, insecureSkipVerify bool) *tls.Config {
	return &tls.Config{
		ServerName:         serverName,
		NextProtos:         []string{alpn},
		InsecureSkipVerify: insecureSkipVerify,
		MinVersion:         tls.VersionTLS13,
	}
}

// QUICConfig is the QUIC configuration both ends of the link use.
func QUICConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		KeepAlivePeriod: 15 * time.Second,
		MaxIdleTimeout:  60 * time.Second,
	}
}

func NewQUICTransmitter(addr string, tlsConf *tls.Config, log *logging.Logger) *QUICTransmitter {
	return &QUICTransmitter{addr: addr, tlsConf: tlsConf, qconf: QUICConfig(), log: log}
}

func (t *QUICTransmitter) Connect(ctx context.Context) error {
	conn, err := quic.DialAddr(ctx, t.addr, t.tlsConf, t.qconf)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.addr, err)
	}
	if !conn.ConnectionState().SupportsDatagrams {
		_ = conn.CloseWithError(0, "datagrams required")
		return fmt.Errorf("dial %s: peer does not support datagrams", t.addr)
	}
	t.mu.Lock()
	old := t.conn
	t.conn = conn
	t.mu.Unlock()
	if old != nil {
		_ = old.CloseWithError(0, "replaced")
	}
	t.log.Noticef("connected to %s", t.addr)
	return nil
}

func (t *QUICTransmitter) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	t.log.Noticef("disconnecting from %s", t.addr)
	return conn.CloseWithError(0, "")
}

func (t *QUICTransmitter) current() (*quic.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, service.ErrNotConnected
	}
	return t.conn, nil
}

func (t *QUICTransmitter) Send(frame []byte) error {
	conn, err := t.current()
	if err != nil {
		return err
	}
	return conn.SendDatagram(frame)
}

func (t *QUICTransmitter) Receive(ctx context.Context) ([]byte, error) {
	conn, err := t.current()
	if err != nil {
		return nil, err
	}
	b, err := conn.ReceiveDatagram(ctx)
	if err != nil {
		var appErr *quic.ApplicationError
		if errors.As(err, &appErr) {
			return nil, fmt.Errorf("%w: %v", service.ErrNotConnected, err)
		}
		return nil, err
	}
	return b, nil
}
