// Package secrets seals API credentials with an age identity so they can live in
// the config file as ENC[age:...] blobs, and maintains the .env file.
package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

const (
	sealPrefix = "ENC[age:"
	sealSuffix = "]"
)

// ErrNotSealed is returned when opening a value that is not an ENC[age:...] blob.
var ErrNotSealed = errors.New("secrets: value is not sealed")

// Keyring holds the X25519 identity used to seal and open credentials.
type Keyring struct {
	path string
	id   *age.X25519Identity
}

// InitKeyring loads the identity at path, generating it with 0600 permissions if
// the file does not exist. created reports whether a new identity was written.
func InitKeyring(path string) (k *Keyring, created bool, err error) {
	if _, err := os.Stat(path); err == nil {
		k, err := OpenKeyring(path)
		return k, false, err
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, false, fmt.Errorf("generate age identity: %w", err)
	}

	content := fmt.Sprintf("# groqlink credential key\n# public key: %s\n%s\n",
		id.Recipient().String(), id.String())

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return nil, false, fmt.Errorf("write age key: %w", err)
	}
	return &Keyring{path: path, id: id}, true, nil
}

// OpenKeyring reads an existing identity file.
func OpenKeyring(path string) (*Keyring, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open age key: %w", err)
	}
	defer f.Close()

	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age key %s: %w", path, err)
	}
	for _, candidate := range ids {
		if id, ok := candidate.(*age.X25519Identity); ok {
			return &Keyring{path: path, id: id}, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity in %s", path)
}

// Path returns the identity file path.
func (k *Keyring) Path() string { return k.path }

// Recipient returns the public key that Seal encrypts to.
func (k *Keyring) Recipient() string { return k.id.Recipient().String() }

// Seal encrypts plaintext into an ENC[age:...] blob.
func (k *Keyring) Seal(plaintext string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, k.id.Recipient())
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	return sealPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()) + sealSuffix, nil
}

// Open decrypts an ENC[age:...] blob.
func (k *Keyring) Open(blob string) (string, error) {
	if !IsSealed(blob) {
		return "", ErrNotSealed
	}

	ciphertext, err := base64.StdEncoding.DecodeString(blob[len(sealPrefix) : len(blob)-len(sealSuffix)])
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), k.id)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}

// IsSealed reports whether s is an ENC[age:...] blob.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, sealPrefix) && strings.HasSuffix(s, sealSuffix)
}

// Reveal returns value unchanged unless it is sealed, in which case the identity
// at keyPath is loaded to open it.
func Reveal(value, keyPath string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	k, err := OpenKeyring(keyPath)
	if err != nil {
		return "", err
	}
	return k.Open(value)
}
