package envelope

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "lifekey/pkg/domain-errors"
)

func TestPayloadRoundTrip(t *testing.T) {
	key, err := NewContentKey()
	require.NoError(t, err)

	payload := map[string]string{
		"username": "alice@example.com",
		"password": "correct horse battery staple",
	}

	blob, err := SealPayload(key, payload)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "battery")

	got, err := OpenPayload(key, blob)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPayloadTamperDetected(t *testing.T) {
	key, err := NewContentKey()
	require.NoError(t, err)

	blob, err := SealPayload(key, map[string]string{"note": "the safe code is 4417"})
	require.NoError(t, err)

	// Flip one ciphertext bit.
	tampered := bytes.Clone(blob)
	tampered[len(tampered)-1] ^= 0x01

	_, err = OpenPayload(key, tampered)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDecryptionFailed))
}

func TestPayloadWrongKeyFailsClosed(t *testing.T) {
	key1, err := NewContentKey()
	require.NoError(t, err)
	key2, err := NewContentKey()
	require.NoError(t, err)

	blob, err := SealPayload(key1, map[string]string{"seed": "abandon ability able"})
	require.NoError(t, err)

	_, err = OpenPayload(key2, blob)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDecryptionFailed))
}

func TestSealProducesDistinctBlobs(t *testing.T) {
	key, err := NewContentKey()
	require.NoError(t, err)

	payload := map[string]string{"k": "v"}
	blob1, err := SealPayload(key, payload)
	require.NoError(t, err)
	blob2, err := SealPayload(key, payload)
	require.NoError(t, err)

	// Fresh nonce per seal: identical plaintext must not produce identical
	// ciphertext.
	assert.NotEqual(t, blob1, blob2)
}

func TestOwnerWrapRoundTrip(t *testing.T) {
	mgr := NewManager([]byte("owner-master-passphrase"), []byte("fixed-salt"))

	contentKey, err := NewContentKey()
	require.NoError(t, err)

	wrapped, err := mgr.WrapForOwner(contentKey)
	require.NoError(t, err)
	assert.NotEqual(t, contentKey, wrapped)

	unwrapped, err := mgr.UnwrapForOwner(wrapped)
	require.NoError(t, err)
	assert.Equal(t, contentKey, unwrapped)
}

func TestOwnerWrapDifferentManagerFails(t *testing.T) {
	mgr1 := NewManager([]byte("passphrase-one"), []byte("salt"))
	mgr2 := NewManager([]byte("passphrase-two"), []byte("salt"))

	contentKey, err := NewContentKey()
	require.NoError(t, err)

	wrapped, err := mgr1.WrapForOwner(contentKey)
	require.NoError(t, err)

	_, err = mgr2.UnwrapForOwner(wrapped)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDecryptionFailed))
}

func TestRecipientWrapRoundTrip(t *testing.T) {
	pair, err := GenerateKeyPair()
	require.NoError(t, err)

	contentKey, err := NewContentKey()
	require.NoError(t, err)

	wrapped, err := WrapForRecipient(contentKey, pair.Public)
	require.NoError(t, err)

	unwrapped, err := UnwrapForRecipient(wrapped, pair.Public, pair.Private)
	require.NoError(t, err)
	assert.Equal(t, contentKey, unwrapped)
}

func TestRecipientWrapTamperAlwaysFails(t *testing.T) {
	pair, err := GenerateKeyPair()
	require.NoError(t, err)

	contentKey, err := NewContentKey()
	require.NoError(t, err)

	wrapped, err := WrapForRecipient(contentKey, pair.Public)
	require.NoError(t, err)

	// Flip each byte in turn; every mutation must fail closed, never yield a
	// different valid key.
	for i := range wrapped {
		tampered := bytes.Clone(wrapped)
		tampered[i] ^= 0xFF
		_, err := UnwrapForRecipient(tampered, pair.Public, pair.Private)
		require.Error(t, err, "byte %d", i)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDecryptionFailed))
	}
}

func TestRecipientWrapWrongRecipientFails(t *testing.T) {
	pairA, err := GenerateKeyPair()
	require.NoError(t, err)
	pairB, err := GenerateKeyPair()
	require.NoError(t, err)

	contentKey, err := NewContentKey()
	require.NoError(t, err)

	wrapped, err := WrapForRecipient(contentKey, pairA.Public)
	require.NoError(t, err)

	_, err = UnwrapForRecipient(wrapped, pairB.Public, pairB.Private)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDecryptionFailed))
}

func TestWrapFanOutCopiesAreIndependent(t *testing.T) {
	pair, err := GenerateKeyPair()
	require.NoError(t, err)

	contentKey, err := NewContentKey()
	require.NoError(t, err)

	wrapped1, err := WrapForRecipient(contentKey, pair.Public)
	require.NoError(t, err)
	wrapped2, err := WrapForRecipient(contentKey, pair.Public)
	require.NoError(t, err)

	assert.NotEqual(t, wrapped1, wrapped2)
}

func TestNewManagerWithKeyRejectsBadLength(t *testing.T) {
	_, err := NewManagerWithKey([]byte("short"))
	require.Error(t, err)
}
