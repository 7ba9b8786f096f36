package pagecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

// seal builds an envelope the way the publisher does.
func seal(t *testing.T, plaintext, passphrase string) Envelope {
	t.Helper()
	salt := make([]byte, 16)
	iv := make([]byte, 12)
	if _, err := rand.Read(salt); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(iv); err != nil {
		t.Fatal(err)
	}
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatal(err)
	}
	ct := gcm.Seal(nil, iv, []byte(plaintext), nil)
	return Envelope{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
	}
}

// WHAT: Tests that a correctly sealed envelope opens to its plaintext.
// WHY: The derivation parameters are fixed by the publisher; any drift in
// iteration count, key length, or hash silently breaks every page.
func TestDecryptRoundTrip(t *testing.T) {
	const plaintext = `{"records":[{"fields":{"Plate":"TEST123"}}]}`
	env := seal(t, plaintext, "test-password-123")

	got, err := Decrypt(env, "test-password-123")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(got) != plaintext {
		t.Errorf("plaintext = %q", got)
	}
}

// WHAT: Tests that a wrong passphrase fails with ErrDecrypt.
// WHY: Callers treat ErrDecrypt as terminal configuration error, never a
// retryable fetch failure.
func TestDecryptWrongPassphrase(t *testing.T) {
	env := seal(t, "secret", "right-password")
	if _, err := Decrypt(env, "wrong-password"); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
}

// WHAT: Tests structural rejection of bad envelopes.
// WHY: Upstream bodies are untrusted; missing fields and garbage base64
// must map to ErrBadEnvelope before any crypto runs.
func TestDecryptBadEnvelope(t *testing.T) {
	good := seal(t, "secret", "pw")
	cases := map[string]Envelope{
		"missing salt": {IV: good.IV, Ciphertext: good.Ciphertext},
		"missing iv":   {Salt: good.Salt, Ciphertext: good.Ciphertext},
		"missing ct":   {Salt: good.Salt, IV: good.IV},
		"bad base64":   {Salt: "!!!", IV: good.IV, Ciphertext: good.Ciphertext},
		"short iv":     {Salt: good.Salt, IV: base64.StdEncoding.EncodeToString([]byte("abc")), Ciphertext: good.Ciphertext},
	}
	for name, env := range cases {
		if _, err := Decrypt(env, "pw"); !errors.Is(err, ErrBadEnvelope) {
			t.Errorf("%s: err = %v, want ErrBadEnvelope", name, err)
		}
	}
}

// WHAT: Tests envelope JSON parsing ahead of decryption.
// WHY: Pages arrive as raw HTTP bodies; a non-JSON body is a bad envelope,
// not a decryption failure.
func TestDecryptJSON(t *testing.T) {
	if _, err := DecryptJSON([]byte("not json"), "pw"); !errors.Is(err, ErrBadEnvelope) {
		t.Fatalf("err = %v, want ErrBadEnvelope", err)
	}
}
