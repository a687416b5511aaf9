// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const basicPBKDF2Iterations = 100_000

// fileStructure is the on-disk shape of a BasicProvider's backing file.
// Secret values are stored as base64 AES-GCM ciphertext, never plaintext.
type fileStructure struct {
	Salt    string            `json:"salt"`
	Secrets map[string]string `json:"secrets"`
}

// BasicProvider stores secrets in a password-encrypted JSON file on disk.
// It is the bootstrap option for operators who don't want a cloud secrets
// manager or an OS keyring daemon: a single file, encrypted with the
// passphrase given to NewBasicProvider.
type BasicProvider struct {
	mu       sync.Mutex
	path     string
	password string
	salt     []byte
}

// NewBasicProvider opens (or creates) the encrypted secrets file at path,
// protected by password.
func NewBasicProvider(path, password string) (*BasicProvider, error) {
	p := &BasicProvider{path: path, password: password}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		p.salt = make([]byte, 16)
		if _, rerr := rand.Read(p.salt); rerr != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", rerr)
		}
		if werr := p.writeLocked(map[string]string{}); werr != nil {
			return nil, fmt.Errorf("failed to open secrets file: %w", werr)
		}
		return p, nil
	case err != nil:
		return nil, fmt.Errorf("failed to open secrets file: %w", err)
	}

	var fs fileStructure
	if uerr := json.Unmarshal(data, &fs); uerr != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", uerr)
	}
	salt, derr := base64.StdEncoding.DecodeString(fs.Salt)
	if derr != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", derr)
	}
	p.salt = salt
	return p, nil
}

func (p *BasicProvider) key() []byte {
	return pbkdf2.Key([]byte(p.password), p.salt, basicPBKDF2Iterations, 32, sha256.New)
}

func (p *BasicProvider) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.key())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (p *BasicProvider) encrypt(plaintext string) (string, error) {
	gcm, err := p.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (p *BasicProvider) decrypt(encoded string) (string, error) {
	gcm, err := p.gcm()
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ct := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed, wrong password?: %w", err)
	}
	return string(plaintext), nil
}

func (p *BasicProvider) readLocked() (map[string]string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	var fs fileStructure
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", err)
	}
	decrypted := make(map[string]string, len(fs.Secrets))
	for k, v := range fs.Secrets {
		pt, err := p.decrypt(v)
		if err != nil {
			return nil, err
		}
		decrypted[k] = pt
	}
	return decrypted, nil
}

func (p *BasicProvider) writeLocked(secrets map[string]string) error {
	encrypted := make(map[string]string, len(secrets))
	for k, v := range secrets {
		ct, err := p.encrypt(v)
		if err != nil {
			return err
		}
		encrypted[k] = ct
	}
	fs := fileStructure{
		Salt:    base64.StdEncoding.EncodeToString(p.salt),
		Secrets: encrypted,
	}
	data, err := json.MarshalIndent(fs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0o600)
}

// GetSecret decrypts and returns the named secret.
func (p *BasicProvider) GetSecret(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	secrets, err := p.readLocked()
	if err != nil {
		return "", err
	}
	v, ok := secrets[name]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", name)
	}
	return v, nil
}

// SetSecret encrypts and stores value under name.
func (p *BasicProvider) SetSecret(_ context.Context, name, value string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	secrets, err := p.readLocked()
	if err != nil {
		return err
	}
	secrets[name] = value
	return p.writeLocked(secrets)
}

// DeleteSecret removes the named secret.
func (p *BasicProvider) DeleteSecret(_ context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	secrets, err := p.readLocked()
	if err != nil {
		return err
	}
	if _, ok := secrets[name]; !ok {
		return fmt.Errorf("cannot delete non-existent secret: %s", name)
	}
	delete(secrets, name)
	return p.writeLocked(secrets)
}

// ListSecrets returns the names of stored secrets, without values.
func (p *BasicProvider) ListSecrets(_ context.Context) ([]SecretDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	secrets, err := p.readLocked()
	if err != nil {
		return nil, err
	}
	out := make([]SecretDescription, 0, len(secrets))
	for name := range secrets {
		out = append(out, SecretDescription{Name: name})
	}
	return out, nil
}

// Cleanup removes every stored secret.
func (p *BasicProvider) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLocked(map[string]string{})
}

// Capabilities reports full read/write/delete/list/cleanup support.
func (*BasicProvider) Capabilities() Capabilities {
	return Capabilities{CanRead: true, CanWrite: true, CanDelete: true, CanList: true, CanCleanup: true}
}
