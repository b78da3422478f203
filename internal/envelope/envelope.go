// Package envelope implements the key-wrapping scheme for vault items.
//
// Every vault item gets its own 32-byte content key. The payload is sealed
// with that key under AES-256-GCM. The content key itself is stored twice
// over: wrapped under the owner's master key (so the owner side can re-wrap
// at assignment time) and, per assignment, wrapped under the recipient's
// public key (so only that recipient can open their copy). The manager holds
// no plaintext beyond the scope of a single call.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/box"

	dErrors "lifekey/pkg/domain-errors"
)

const (
	// ContentKeySize is the AES-256 key length used for item payloads.
	ContentKeySize = 32

	gcmNonceSize = 12
)

// Manager wraps and unwraps content keys under the owner master key.
type Manager struct {
	masterKey []byte
}

// NewManager derives the master key from a passphrase and salt with argon2id
// and returns a manager bound to it.
func NewManager(passphrase, salt []byte) *Manager {
	return &Manager{masterKey: argon2.IDKey(passphrase, salt, 1, 64*1024, 4, ContentKeySize)}
}

// NewManagerWithKey binds the manager to an already-derived 32-byte key.
func NewManagerWithKey(key []byte) (*Manager, error) {
	if len(key) != ContentKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", ContentKeySize, len(key))
	}
	m := &Manager{masterKey: make([]byte, ContentKeySize)}
	copy(m.masterKey, key)
	return m, nil
}

// NewContentKey returns a fresh random AES-256 content key.
func NewContentKey() ([]byte, error) {
	key := make([]byte, ContentKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate content key: %w", err)
	}
	return key, nil
}

// gcmSeal encrypts plaintext with AES-GCM and returns nonce||ciphertext as a
// single blob.
func gcmSeal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// gcmOpen splits a nonce||ciphertext blob and decrypts it. Any tamper or key
// mismatch fails the AEAD tag check and surfaces as decryption_failed, never
// as garbled plaintext.
func gcmOpen(key, blob []byte) ([]byte, error) {
	if len(blob) < gcmNonceSize+1 {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "ciphertext too short")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, blob[:gcmNonceSize], blob[gcmNonceSize:], nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryptionFailed, "payload integrity check failed")
	}
	return plaintext, nil
}

// SealPayload serializes a free-form payload and encrypts it under the item's
// content key. The engine never validates the payload shape, only its
// ciphertext integrity on the way back out.
func SealPayload(contentKey []byte, payload map[string]string) ([]byte, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return gcmSeal(contentKey, plaintext)
}

// OpenPayload decrypts a payload blob with the item's content key.
func OpenPayload(contentKey, blob []byte) (map[string]string, error) {
	plaintext, err := gcmOpen(contentKey, blob)
	if err != nil {
		return nil, err
	}
	var payload map[string]string
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryptionFailed, "payload is not valid JSON")
	}
	return payload, nil
}

// WrapForOwner encrypts a content key under the owner master key.
func (m *Manager) WrapForOwner(contentKey []byte) ([]byte, error) {
	return gcmSeal(m.masterKey, contentKey)
}

// UnwrapForOwner recovers a content key from its master-wrapped form. The
// returned key is scoped to the caller; it must not be persisted.
func (m *Manager) UnwrapForOwner(wrapped []byte) ([]byte, error) {
	key, err := gcmOpen(m.masterKey, wrapped)
	if err != nil {
		return nil, err
	}
	if len(key) != ContentKeySize {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "unwrapped key has wrong length")
	}
	return key, nil
}

// KeyPair is a recipient's curve25519 delivery keypair. The private half is
// handed to the recipient once at registration and never stored in plaintext
// server-side.
type KeyPair struct {
	Public  []byte
	Private []byte
}

// GenerateKeyPair creates a recipient delivery keypair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate recipient keypair: %w", err)
	}
	return KeyPair{Public: pub[:], Private: priv[:]}, nil
}

// WrapForRecipient seals a content key to a recipient public key using an
// anonymous NaCl box. Each call produces a distinct wrapped copy; the fan-out
// copies on different assignments never share bytes.
func WrapForRecipient(contentKey, recipientPub []byte) ([]byte, error) {
	pub, err := toKeyArray(recipientPub)
	if err != nil {
		return nil, err
	}
	return box.SealAnonymous(nil, contentKey, pub, rand.Reader)
}

// UnwrapForRecipient opens a wrapped content key with the recipient's
// keypair. A tampered box or mismatched key fails closed with
// decryption_failed; it can never yield a different valid key.
func UnwrapForRecipient(wrapped, recipientPub, recipientPriv []byte) ([]byte, error) {
	pub, err := toKeyArray(recipientPub)
	if err != nil {
		return nil, err
	}
	priv, err := toKeyArray(recipientPriv)
	if err != nil {
		return nil, err
	}
	contentKey, ok := box.OpenAnonymous(nil, wrapped, pub, priv)
	if !ok {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "wrapped key integrity check failed")
	}
	if len(contentKey) != ContentKeySize {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "unwrapped key has wrong length")
	}
	return contentKey, nil
}

func toKeyArray(b []byte) (*[32]byte, error) {
	if len(b) != 32 {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "key material must be 32 bytes")
	}
	var arr [32]byte
	copy(arr[:], b)
	return &arr, nil
}
