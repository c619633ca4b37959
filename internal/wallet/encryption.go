package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	crand "crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// encryptor wraps a passphrase-derived AES-256-GCM cipher used to encrypt
// AddressStore secret keys at rest, per the upgrade engine's
// UpgradeCfg.passphrase and the HTTP API's wallet-unlock flow.
type encryptor struct {
	passphrase string
}

func newEncryptor(passphrase string) (*encryptor, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryptor: empty passphrase")
	}
	return &encryptor{passphrase: passphrase}, nil
}

// EncapsulationData is the non-secret description of how this wallet's
// secret keys are encrypted at rest, served by the HTTP API's
// GET /wallet_encapsulation_data so an external recovery tool knows which
// KDF/cipher parameters to reproduce (spec §6) without ever exposing the
// passphrase or derived key.
type EncapsulationData struct {
	Algorithm string `json:"algorithm"`
	ScryptN   int    `json:"scrypt_n"`
	ScryptR   int    `json:"scrypt_r"`
	ScryptP   int    `json:"scrypt_p"`
	KeyLen    int    `json:"key_len"`
	SaltLen   int    `json:"salt_len"`
	Encrypted bool   `json:"encrypted"`
}

func (e *encryptor) deriveKey(salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(e.passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

// encrypt returns salt || nonce || ciphertext, each sized for its algorithm.
func (e *encryptor) encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(crand.Reader, salt); err != nil {
		return nil, err
	}
	key, err := e.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(crand.Reader, nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltLen+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func (e *encryptor) decrypt(data []byte) ([]byte, error) {
	if len(data) < saltLen {
		return nil, fmt.Errorf("encryptor: ciphertext too short")
	}
	salt, rest := data[:saltLen], data[saltLen:]
	key, err := e.deriveKey(salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("encryptor: ciphertext too short")
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
