// Package pagecrypt opens the aggregator's encrypted page envelopes.
//
// Pages are served as JSON envelopes of base64 fields; the key is derived
// from an operator-supplied passphrase. Decryption failures are terminal:
// the bytes arrived intact, so retrying a fetch cannot fix a bad passphrase
// or a corrupt envelope.
package pagecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters, fixed by the publisher.
const (
	pbkdf2Iterations = 100000
	keyLen           = 32
)

// ErrBadEnvelope is returned for structurally invalid envelopes.
var ErrBadEnvelope = errors.New("pagecrypt: malformed envelope")

// ErrDecrypt is returned when authenticated decryption fails, most often a
// wrong passphrase.
var ErrDecrypt = errors.New("pagecrypt: decryption failed")

// Envelope is the published ciphertext container. All fields are base64.
type Envelope struct {
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// Decrypt derives an AES-256 key from passphrase via PBKDF2-HMAC-SHA256 and
// opens the envelope with AES-GCM (no additional data).
func Decrypt(env Envelope, passphrase string) ([]byte, error) {
	if env.Salt == "" || env.IV == "" || env.Ciphertext == "" {
		return nil, fmt.Errorf("%w: missing field", ErrBadEnvelope)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrBadEnvelope, err)
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", ErrBadEnvelope, err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrBadEnvelope, err)
	}

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("pagecrypt: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("pagecrypt: %w", err)
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: iv length %d", ErrBadEnvelope, len(iv))
	}

	plaintext, err := gcm.Open(nil, iv, ct, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// DecryptJSON parses a raw envelope body and opens it.
func DecryptJSON(body []byte, passphrase string) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	return Decrypt(env, passphrase)
}
