package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2 parameters for passphrase stretching
	KeyIterations = 100_000
	KeyLength     = 32 // 256 bits for AES-256

	// SaltLength is generated fresh per attribute, never reused.
	SaltLength = 16

	// NonceSize for AES-GCM (96 bits, standard for GCM)
	NonceSize = 12
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrUnauthorized means the passphrase is missing or wrong. Callers
	// must treat this as "re-authenticate", distinct from corruption.
	ErrUnauthorized = errors.New("unauthorized: passphrase missing or incorrect")
)

// SecureAttributes is the self-describing metadata stored alongside an
// encrypted value. Knowing the passphrase is the only external
// requirement to decrypt.
type SecureAttributes struct {
	IV   []byte `json:"iv"`
	Salt []byte `json:"salt"`
}

// EncryptedAttribute is the wire shape of one encrypted attribute value,
// shared with the remote API layer. It must stay stable.
type EncryptedAttribute struct {
	SecureAttributes SecureAttributes `json:"secureAttributes"`
	Data             []byte           `json:"data"`
}

// Codebook tells the encryption layer which attribute ids hold
// sensitive values. Everything else passes through untransformed.
type Codebook interface {
	IsEncrypted(attributeID string) bool
}

// GenerateSalt returns cryptographically secure random bytes.
func GenerateSalt(length int) ([]byte, error) {
	salt := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches a passphrase and salt into an AES-256 key with
// PBKDF2-SHA256.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, KeyIterations, KeyLength, sha256.New)
}

// EncryptValue encrypts one attribute value under a key derived from the
// passphrase and a fresh per-attribute salt.
func EncryptValue(plaintext []byte, passphrase string) (*EncryptedAttribute, error) {
	salt, err := GenerateSalt(SaltLength)
	if err != nil {
		return nil, err
	}
	iv, err := GenerateSalt(NonceSize)
	if err != nil {
		return nil, err
	}

	key := DeriveKey(passphrase, salt)

	ciphertext, err := sealAESGCM(plaintext, key, iv)
	if err != nil {
		return nil, err
	}

	return &EncryptedAttribute{
		SecureAttributes: SecureAttributes{IV: iv, Salt: salt},
		Data:             ciphertext,
	}, nil
}

// DecryptValue reverses EncryptValue. A wrong passphrase fails GCM
// authentication and surfaces as ErrUnauthorized, never as garbage
// plaintext.
func DecryptValue(attr *EncryptedAttribute, passphrase string) ([]byte, error) {
	if attr == nil {
		return nil, ErrInvalidCiphertext
	}
	if len(attr.SecureAttributes.IV) != NonceSize || len(attr.SecureAttributes.Salt) < SaltLength {
		return nil, ErrInvalidCiphertext
	}

	key := DeriveKey(passphrase, attr.SecureAttributes.Salt)

	return openAESGCM(attr.Data, key, attr.SecureAttributes.IV)
}

// EncryptAttributes transforms the attribute map of one entity: values
// whose ids the codebook marks as encrypted are replaced by their
// EncryptedAttribute encoding, the rest pass through unchanged.
func EncryptAttributes(attrs map[string]json.RawMessage, codebook Codebook, passphrase string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(attrs))
	for id, value := range attrs {
		if codebook == nil || !codebook.IsEncrypted(id) {
			out[id] = value
			continue
		}

		encrypted, err := EncryptValue(value, passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt attribute %s: %w", id, err)
		}
		encoded, err := json.Marshal(encrypted)
		if err != nil {
			return nil, fmt.Errorf("failed to encode attribute %s: %w", id, err)
		}
		out[id] = encoded
	}
	return out, nil
}

// DecryptAttributes reverses EncryptAttributes for the ids the codebook
// marks as encrypted.
func DecryptAttributes(attrs map[string]json.RawMessage, codebook Codebook, passphrase string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(attrs))
	for id, value := range attrs {
		if codebook == nil || !codebook.IsEncrypted(id) {
			out[id] = value
			continue
		}

		var encrypted EncryptedAttribute
		if err := json.Unmarshal(value, &encrypted); err != nil {
			return nil, fmt.Errorf("attribute %s: %w", id, ErrInvalidCiphertext)
		}
		plaintext, err := DecryptValue(&encrypted, passphrase)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", id, err)
		}
		out[id] = plaintext
	}
	return out, nil
}

func sealAESGCM(plaintext, key, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

func openAESGCM(ciphertext, key, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Authentication failure: wrong key, so wrong passphrase.
		return nil, ErrUnauthorized
	}

	return plaintext, nil
}
