package value_object_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	valueobject "ikedadada/go-tor4iot/internal/domain/value_object"
)

func TestTicket_Sizes(t *testing.T) {
	require.Equal(t, 437, valueobject.TicketSize)
	require.Equal(t, 188, valueobject.FastTicketSize)
}

func TestTicket_EncodeDecode(t *testing.T) {
	tk := valueobject.Ticket{Cookie: 0xCAFEBABE, Type: valueobject.TicketTypeClient}
	tk.Nonce[0] = 0x11
	tk.Entry.Forward.AESKey[0] = 0xE0
	tk.Entry.Forward.CryptedBytes = 1018
	tk.Rendezvous.Backward.AESKey[15] = 0xAB
	tk.Rendezvous.Backward.CryptedBytes = 509
	tk.RendInitDigest[19] = 0x20
	tk.KeyExpansion[135] = 0x30
	tk.RendInfo[0] = 0x40
	tk.MAC[31] = 0x50

	buf := tk.Encode()
	require.Len(t, buf, valueobject.TicketSize)
	require.Equal(t, byte(0x11), buf[0])
	require.Equal(t, []byte{0xCA, 0xFE, 0xBA, 0xBE}, buf[16:20])
	require.Equal(t, byte(valueobject.TicketTypeClient), buf[20])
	require.Equal(t, byte(0xE0), buf[21])
	require.Equal(t, []byte{0x03, 0xFA}, buf[37:39])
	require.Equal(t, byte(0xAB), buf[129+18+15])
	require.Equal(t, byte(0x20), buf[184])
	require.Equal(t, byte(0x30), buf[320])
	require.Equal(t, byte(0x40), buf[321])
	require.Equal(t, byte(0x50), buf[436])

	d, err := valueobject.DecodeTicket(buf)
	require.NoError(t, err)
	require.Equal(t, tk, *d)
}

func TestDecodeTicket_WrongSize(t *testing.T) {
	_, err := valueobject.DecodeTicket(make([]byte, valueobject.TicketSize-1))
	require.ErrorIs(t, err, valueobject.ErrTicketSize)
	_, err = valueobject.DecodeFastTicket(make([]byte, valueobject.FastTicketSize+1))
	require.ErrorIs(t, err, valueobject.ErrTicketSize)
}

func TestFastTicket_EncodeDecode(t *testing.T) {
	ft := valueobject.FastTicket{Cookie: 7}
	ft.KeyExpansion[0] = 1
	ft.MAC[0] = 2

	buf := ft.Encode()
	require.Len(t, buf, valueobject.FastTicketSize)
	require.Equal(t, byte(1), buf[20])
	require.Equal(t, byte(2), buf[156])

	d, err := valueobject.DecodeFastTicket(buf)
	require.NoError(t, err)
	require.Equal(t, ft, *d)
}

func TestKeyExpansion_Slices(t *testing.T) {
	var k valueobject.KeyExpansion
	for i := range k {
		k[i] = byte(i)
	}
	require.Equal(t, byte(0), k.DigestSeed(0)[0])
	require.Equal(t, byte(32), k.DigestSeed(1)[0])
	require.Equal(t, byte(64), k.Key(0)[0])
	require.Equal(t, byte(96), k.Key(1)[0])
	require.Len(t, k.Key(1), valueobject.HSKeySize)
}
