package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitDeterministic(t *testing.T) {
	handles := [][32]byte{{1}, {2}}
	require.Equal(t, Commit(handles, "chain-1"), Commit(handles, "chain-1"))
}

func TestCommitBindsInputs(t *testing.T) {
	base := Commit([][32]byte{{1}, {2}}, "chain-1")

	require.NotEqual(t, base, Commit([][32]byte{{2}, {1}}, "chain-1"), "order must matter")
	require.NotEqual(t, base, Commit([][32]byte{{1}}, "chain-1"), "length must matter")
	require.NotEqual(t, base, Commit([][32]byte{{1}, {2}}, "chain-2"), "deployment must matter")
	require.NotEqual(t, base, Commit([][32]byte{{1}, {3}}, "chain-1"))
}

func TestCommitEmptyList(t *testing.T) {
	require.NotEqual(t, StateHash{}, Commit(nil, ""))
}

func TestSignVerify(t *testing.T) {
	pk, sk, err := GenerateKeyPair()
	require.NoError(t, err)

	derived, err := sk.PublicKey()
	require.NoError(t, err)
	require.True(t, pk.Equal(derived))

	sig, err := Sign(sk, []byte("payload"))
	require.NoError(t, err)
	require.True(t, sig.Verify(pk, []byte("payload")))
	require.False(t, sig.Verify(pk, []byte("other")))

	otherPk, _, err := GenerateKeyPair()
	require.NoError(t, err)
	require.False(t, pk.Equal(otherPk))
	require.False(t, sig.Verify(otherPk, []byte("payload")))
}

func TestPublicKeyStringRoundTrip(t *testing.T) {
	pk, _, err := GenerateKeyPair()
	require.NoError(t, err)

	parsed, err := NewPublicKeyFromString(pk.String())
	require.NoError(t, err)
	require.True(t, pk.Equal(parsed))

	_, err = NewPublicKeyFromString("abcd")
	require.Error(t, err)
}
