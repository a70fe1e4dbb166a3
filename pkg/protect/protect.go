// Package protect implements field-level encryption for note titles and text.
//
// Each field is sealed with AES-SIV-CMAC (RFC 5297) under the caller's data key
// and a nonce derived deterministically from the owning entity id and the field
// name. The nonce is fixed per field, so the mode has to stay safe under nonce
// reuse: SIV derives the keystream from the plaintext itself and two different
// values of one field never share it.
package protect

import (
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/secure-io/siv-go"
	"golang.org/x/crypto/blake2b"
)

// KeySize is the required data key length in bytes (two AES-128 keys).
const KeySize = 32

const derivedNonceSize = 24

var (
	ErrInvalidKey        = errors.New("protect: data key must be 32 bytes")
	ErrInvalidCiphertext = errors.New("protect: ciphertext is malformed or was sealed with another key")
)

type Codec interface {
	Encrypt(key, nonce, plaintext []byte) ([]byte, error)
	Decrypt(key, nonce, ciphertext []byte) ([]byte, error)
}

type sivCodec struct{}

func NewCodec() Codec {
	return sivCodec{}
}

func (sivCodec) Encrypt(key, nonce, plaintext []byte) ([]byte, error) {
	aead, n, err := newAEAD(key, nonce)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, n, plaintext, nil), nil
}

func (sivCodec) Decrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, n, err := newAEAD(key, nonce)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, n, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// newAEAD returns the cipher for key and the prefix of nonce it consumes.
func newAEAD(key, nonce []byte) (cipher.AEAD, []byte, error) {
	if len(key) != KeySize {
		return nil, nil, ErrInvalidKey
	}
	aead, err := siv.NewCMAC(key)
	if err != nil {
		return nil, nil, err
	}
	if len(nonce) != derivedNonceSize || len(nonce) < aead.NonceSize() {
		return nil, nil, fmt.Errorf("protect: nonce must be %d bytes", derivedNonceSize)
	}
	return aead, nonce[:aead.NonceSize()], nil
}

// TitleNonce returns the nonce used for the title field of entityID.
func TitleNonce(entityID string) []byte {
	return deriveNonce(entityID, "title")
}

// TextNonce returns the nonce used for the text field of entityID.
func TextNonce(entityID string) []byte {
	return deriveNonce(entityID, "text")
}

// KeyNonce returns the nonce used to wrap a key stored under name.
func KeyNonce(name string) []byte {
	return deriveNonce(name, "key")
}

func deriveNonce(entityID, field string) []byte {
	sum := blake2b.Sum256([]byte(entityID + "/" + field))
	return sum[:derivedNonceSize]
}

// EncryptString seals s and returns it base64 encoded, suitable for text columns.
func EncryptString(c Codec, key, nonce []byte, s string) (string, error) {
	ct, err := c.Encrypt(key, nonce, []byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptString reverses EncryptString.
func DecryptString(c Codec, key, nonce []byte, s string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	pt, err := c.Decrypt(key, nonce, ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
