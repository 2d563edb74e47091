package options

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/d21d3q/wmbusd/internal/address"
)

type fixedStore []byte

func (f fixedStore) Key(address.SecondaryAddress) ([]byte, bool) { return f, true }

func TestParseKeyHex(t *testing.T) {
	key, err := ParseKeyHex("00 01 02 03 04 05 06 07 08 09 0a 0b 0c 0d 0e 0f")
	require.NoError(t, err)
	require.Len(t, key, 16)
	require.Equal(t, byte(0x0F), key[15])

	key, err = ParseKeyHex("   ")
	require.NoError(t, err)
	require.Nil(t, key)

	_, err = ParseKeyHex("0011")
	require.Error(t, err)
	_, err = ParseKeyHex("zz0102030405060708090a0b0c0d0e0f")
	require.Error(t, err)
}

func TestKeyStoreContext(t *testing.T) {
	ctx := context.Background()
	require.Nil(t, KeyStore(ctx))
	require.Equal(t, ctx, WithKeyStore(ctx, nil))

	ctx = WithKeyStore(ctx, fixedStore{1})
	ks := KeyStore(ctx)
	require.NotNil(t, ks)
	k, ok := ks.Key(address.SecondaryAddress{})
	require.True(t, ok)
	require.Equal(t, []byte{1}, k)
}
