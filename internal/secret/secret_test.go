package secret

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	box, err := New(key)
	require.NoError(t, err)

	sealed, err := box.Seal("4111111111111111")
	require.NoError(t, err)
	require.True(t, IsSealed(sealed))

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "4111111111111111", plain)

	other, err := GenerateKey()
	require.NoError(t, err)
	otherBox, err := New(other)
	require.NoError(t, err)
	_, err = otherBox.Open(sealed)
	require.Error(t, err)
}

func TestReveal(t *testing.T) {
	v, err := Reveal(nil, "plain")
	require.NoError(t, err)
	require.Equal(t, "plain", v)

	_, err = Reveal(nil, "enc:AAAA")
	require.ErrorIs(t, err, ErrNoKey)
}

func TestNewRejectsShortKey(t *testing.T) {
	_, err := New([]byte("short"))
	require.Error(t, err)
}
