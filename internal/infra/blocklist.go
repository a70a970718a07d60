// Package infra implements infrastructure concerns (storage, crypto,
// process sampling, parsing).
package infra

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/pactd/internal/domain"
)

const (
	blocklistFileName = ".blocklist.bin"
	blocklistKeyAlias = "blocklist"
	ivLenHeaderSize   = 4
)

// EncryptedBlocklist persists the sensitive category's member list as an
// AES-256-GCM blob: [IV length:4 bytes big-endian][IV][ciphertext+tag].
// The plaintext payload is newline-joined, lower-cased, trimmed app ids.
//
// Decryption failures fail closed: the corrupt file is deleted and the
// built-in defaults are reseeded. No error detail that could reveal list
// membership is ever logged.
type EncryptedBlocklist struct {
	path     string
	keys     domain.KeyProvider
	defaults func() []string
	logger   *zap.Logger

	mu     sync.Mutex
	cache  map[string]struct{}
	loaded bool
}

// NewEncryptedBlocklist creates a blocklist store under dataDir. defaults
// supplies the built-in member list used for first-access seeding and
// corruption recovery.
func NewEncryptedBlocklist(dataDir string, keys domain.KeyProvider, defaults func() []string, logger *zap.Logger) *EncryptedBlocklist {
	return &EncryptedBlocklist{
		path:     filepath.Join(dataDir, blocklistFileName),
		keys:     keys,
		defaults: defaults,
		logger:   logger,
	}
}

// IsMember normalizes appID and checks set membership.
func (b *EncryptedBlocklist) IsMember(ctx context.Context, appID string) (bool, error) {
	set, err := b.Load(ctx)
	if err != nil {
		return false, err
	}
	_, ok := set[normalizeAppID(appID)]
	return ok, nil
}

// Load returns the member set, decrypting from disk on first call and
// serving from cache afterwards. A missing file seeds the defaults; a
// corrupt file is deleted and the defaults are reseeded.
func (b *EncryptedBlocklist) Load(ctx context.Context) (map[string]struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.loaded {
		return b.cache, nil
	}

	blob, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return b.reseedLocked()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blocklist file: %w", err)
	}

	set, err := b.decrypt(blob)
	if err != nil {
		// Fail closed: never log the error detail, wipe and reseed.
		b.logger.Warn("blocklist unreadable, reseeding defaults")
		os.Remove(b.path)
		return b.reseedLocked()
	}

	b.cache = set
	b.loaded = true
	return set, nil
}

// Save normalizes entries, encrypts, overwrites the file and replaces the
// cache. Last writer wins.
func (b *EncryptedBlocklist) Save(ctx context.Context, entries []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saveLocked(entries)
}

func (b *EncryptedBlocklist) saveLocked(entries []string) error {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		n := normalizeAppID(e)
		if n != "" {
			set[n] = struct{}{}
		}
	}

	blob, err := b.encrypt(set)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(b.path, blob, 0600); err != nil {
		return fmt.Errorf("failed to write blocklist file: %w", err)
	}

	b.cache = set
	b.loaded = true
	return nil
}

// reseedLocked persists the built-in defaults and returns them.
func (b *EncryptedBlocklist) reseedLocked() (map[string]struct{}, error) {
	if err := b.saveLocked(b.defaults()); err != nil {
		return nil, err
	}
	return b.cache, nil
}

func (b *EncryptedBlocklist) encrypt(set map[string]struct{}) ([]byte, error) {
	gcm, err := b.aead()
	if err != nil {
		return nil, err
	}

	entries := make([]string, 0, len(set))
	for e := range set {
		entries = append(entries, e)
	}
	sort.Strings(entries)
	plaintext := []byte(strings.Join(entries, "\n"))

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.New("encryption failed")
	}

	blob := make([]byte, ivLenHeaderSize, ivLenHeaderSize+len(iv)+len(plaintext)+gcm.Overhead())
	binary.BigEndian.PutUint32(blob[:ivLenHeaderSize], uint32(len(iv)))
	blob = append(blob, iv...)
	blob = gcm.Seal(blob, iv, plaintext, nil)
	return blob, nil
}

// decrypt verifies the GCM tag; any tamper, truncation or key mismatch
// returns an error and never any partial plaintext.
func (b *EncryptedBlocklist) decrypt(blob []byte) (map[string]struct{}, error) {
	gcm, err := b.aead()
	if err != nil {
		return nil, err
	}

	if len(blob) < ivLenHeaderSize {
		return nil, errors.New("decryption failed")
	}
	ivLen := int(binary.BigEndian.Uint32(blob[:ivLenHeaderSize]))
	if ivLen != gcm.NonceSize() || len(blob) < ivLenHeaderSize+ivLen {
		return nil, errors.New("decryption failed")
	}
	iv := blob[ivLenHeaderSize : ivLenHeaderSize+ivLen]
	ciphertext := blob[ivLenHeaderSize+ivLen:]

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, errors.New("decryption failed")
	}

	set := make(map[string]struct{})
	for _, line := range strings.Split(string(plaintext), "\n") {
		n := normalizeAppID(line)
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set, nil
}

func (b *EncryptedBlocklist) aead() (cipher.AEAD, error) {
	key, err := b.keys.GetOrCreateKey(blocklistKeyAlias)
	if err != nil {
		return nil, errors.New("key unavailable")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.New("cipher init failed")
	}
	return cipher.NewGCM(block)
}

func normalizeAppID(appID string) string {
	return strings.ToLower(strings.TrimSpace(appID))
}

// Ensure EncryptedBlocklist implements domain.Blocklist.
var _ domain.Blocklist = (*EncryptedBlocklist)(nil)
