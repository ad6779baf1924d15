package service_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/require"

	"ikedadada/go-tor4iot/internal/infrastructure/service"
	"ikedadada/go-tor4iot/internal/log"
	useSvc "ikedadada/go-tor4iot/internal/usecase/service"
)

func serverTLSConfig(t *testing.T) *tls.Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	template := x509.Certificate{SerialNumber: big.NewInt(1), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	require.NoError(t, err)
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: priv}},
		NextProtos:   []string{"tor4iot"},
	}
}

// echoEntry accepts one connection and returns every datagram to its
// sender.
func echoEntry(t *testing.T) string {
	t.Helper()
	ln, err := quic.ListenAddr("127.0.0.1:0", serverTLSConfig(t), service.QUICConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept(context.Background())
		if err != nil {
			return
		}
		for {
			b, err := conn.ReceiveDatagram(context.Background())
			if err != nil {
				return
			}
			if err := conn.SendDatagram(b); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestQUICTransmitter_NotConnected(t *testing.T) {
	tx := service.NewQUICTransmitter("127.0.0.1:1", service.TLSConfig("localhost", "tor4iot", true), log.Discard().GetLogger("transport"))
	require.ErrorIs(t, tx.Send([]byte{1}), useSvc.ErrNotConnected)
	_, err := tx.Receive(context.Background())
	require.ErrorIs(t, err, useSvc.ErrNotConnected)
	require.NoError(t, tx.Disconnect())
}

func TestQUICTransmitter_DatagramEcho(t *testing.T) {
	addr := echoEntry(t)
	tx := service.NewQUICTransmitter(addr, service.TLSConfig("localhost", "tor4iot", true), log.Discard().GetLogger("transport"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tx.Connect(ctx))
	defer tx.Disconnect()

	frame := make([]byte, 516)
	frame[4] = 3
	frame[515] = 0xAA

	// Datagrams may be dropped; retry until one comes back.
	for {
		require.NoError(t, tx.Send(frame))
		rctx, rcancel := context.WithTimeout(ctx, 200*time.Millisecond)
		got, err := tx.Receive(rctx)
		rcancel()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			continue
		}
		require.NoError(t, err)
		require.Equal(t, frame, got)
		return
	}
}
