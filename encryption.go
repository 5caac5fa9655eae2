package xpk

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// EncryptionNonceSize is the nonce size for AES-GCM
	EncryptionNonceSize = 12
	// EncryptionSaltSize is the salt size for key derivation
	EncryptionSaltSize = 32
	// EncryptionKeySize is the AES-256 key size
	EncryptionKeySize = 32
	// PBKDF2Iterations is the number of iterations for key derivation
	PBKDF2Iterations = 100000
)

// ErrSealedAsset is returned when a sealed asset cannot be opened, either
// because no key is configured or because authentication fails.
var ErrSealedAsset = errors.New("cannot open sealed asset")

// EncryptionConfig configures sealing of stored assets.
type EncryptionConfig struct {
	// Enabled turns on sealing for assets written to the store
	Enabled bool `yaml:"enabled"`
	// Key is the raw encryption key (must be 32 bytes for AES-256).
	// If empty, KeyPassword is used to derive a key
	Key []byte `yaml:"-"`
	// KeyPassword is used to derive the encryption key via PBKDF2
	KeyPassword string `yaml:"password"`
}

// Encryptor seals and opens asset blobs with AES-256-GCM.
//
// A password-based Encryptor seals with one random salt but can open blobs
// sealed under any salt, deriving and caching the key for each.
type Encryptor struct {
	gcm      cipher.AEAD
	salt     []byte
	password string
	derived  *lru.Cache[string, cipher.AEAD]
}

// NewEncryptor creates a new encryptor from a key or password.
// It returns nil when sealing is disabled.
func NewEncryptor(cfg EncryptionConfig) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch {
	case len(cfg.Key) > 0:
		return NewEncryptorWithKey(cfg.Key)
	case cfg.KeyPassword != "":
		salt := make([]byte, EncryptionSaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		return NewEncryptorWithSalt(cfg.KeyPassword, salt)
	default:
		return nil, errors.New("encryption enabled but no key or password provided")
	}
}

// NewEncryptorWithSalt creates an encryptor deriving its key from password
// and salt.
func NewEncryptorWithSalt(password string, salt []byte) (*Encryptor, error) {
	if len(salt) != EncryptionSaltSize {
		return nil, errors.New("invalid salt size")
	}

	gcm, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, err
	}

	derived, err := lru.New[string, cipher.AEAD](16)
	if err != nil {
		return nil, err
	}
	derived.Add(string(salt), gcm)

	return &Encryptor{
		gcm:      gcm,
		salt:     bytes.Clone(salt),
		password: password,
		derived:  derived,
	}, nil
}

// NewEncryptorWithKey creates an encryptor with a raw key.
func NewEncryptorWithKey(key []byte) (*Encryptor, error) {
	if len(key) != EncryptionKeySize {
		return nil, errors.New("encryption key must be 32 bytes for AES-256")
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &Encryptor{gcm: gcm}, nil
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Salt returns the salt used for key derivation, or nil for a raw key.
func (e *Encryptor) Salt() []byte {
	return e.salt
}

// Encrypt encrypts plaintext and returns ciphertext with prepended nonce.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	return encryptWith(e.gcm, plaintext)
}

// Decrypt decrypts ciphertext (with prepended nonce) and returns plaintext.
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	return decryptWith(e.gcm, ciphertext)
}

func encryptWith(gcm cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, EncryptionNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWith(gcm cipher.AEAD, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < EncryptionNonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:EncryptionNonceSize]
	return gcm.Open(nil, nonce, ciphertext[EncryptionNonceSize:], nil)
}

// Sealed asset layout:
//
//	[4]byte "XENC" | version | [32]byte salt | nonce | ciphertext
//
// The salt is all zero for raw-key encryptors.
var MagicSealed = [4]byte{'X', 'E', 'N', 'C'}

// SealedHeaderSize is the size of the sealed asset header.
const SealedHeaderSize = 4 + 1 + EncryptionSaltSize

const sealedVersion = 1

// IsSealed reports whether buf starts with the sealed asset header.
func IsSealed(buf []byte) bool {
	return len(buf) >= SealedHeaderSize && bytes.Equal(buf[:4], MagicSealed[:])
}

// Seal encrypts an asset blob and prefixes the sealed header.
func (e *Encryptor) Seal(blob []byte) ([]byte, error) {
	ciphertext, err := e.Encrypt(blob)
	if err != nil {
		return nil, err
	}

	out := make([]byte, SealedHeaderSize, SealedHeaderSize+len(ciphertext))
	copy(out, MagicSealed[:])
	out[4] = sealedVersion
	copy(out[5:], e.salt)
	return append(out, ciphertext...), nil
}

// Open reverses Seal.
func (e *Encryptor) Open(sealed []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, fmt.Errorf("%w: missing sealed header", ErrSealedAsset)
	}
	if sealed[4] != sealedVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSealedAsset, sealed[4])
	}

	gcm, err := e.aeadFor(sealed[5:SealedHeaderSize])
	if err != nil {
		return nil, err
	}
	plaintext, err := decryptWith(gcm, sealed[SealedHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedAsset, err)
	}
	return plaintext, nil
}

func (e *Encryptor) aeadFor(salt []byte) (cipher.AEAD, error) {
	if e.password == "" {
		return e.gcm, nil
	}
	if gcm, ok := e.derived.Get(string(salt)); ok {
		return gcm, nil
	}
	gcm, err := newGCM(deriveKey(e.password, salt))
	if err != nil {
		return nil, err
	}
	e.derived.Add(string(salt), gcm)
	return gcm, nil
}
