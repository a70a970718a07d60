package infra

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/pactd/internal/domain"
)

const keySize = 32 // 256-bit AES key

// FileKeyProvider implements domain.KeyProvider using per-alias hidden
// files with 0600 permissions. This stands in for a hardware-backed
// keystore on platforms that have one; the alias is the opaque handle and
// key bytes never appear in any persisted blob or log.
type FileKeyProvider struct {
	dataDir string
}

// NewFileKeyProvider creates a FileKeyProvider rooted at dataDir.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{dataDir: dataDir}
}

// GetOrCreateKey returns the key for alias, generating and storing a new
// 256-bit key on first use.
func (p *FileKeyProvider) GetOrCreateKey(alias string) ([]byte, error) {
	path, err := p.keyPath(alias)
	if err != nil {
		return nil, err
	}

	encoded, err := os.ReadFile(path)
	if err == nil {
		key, decodeErr := base64.StdEncoding.DecodeString(string(encoded))
		if decodeErr != nil {
			return nil, fmt.Errorf("failed to decode key: %w", decodeErr)
		}
		if len(key) != keySize {
			return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	if err := p.store(path, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (p *FileKeyProvider) store(path string, key []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// keyPath maps an alias to a hidden file. Aliases are restricted to a
// safe charset so they cannot escape the data directory.
func (p *FileKeyProvider) keyPath(alias string) (string, error) {
	if alias == "" || strings.ContainsAny(alias, "/\\.") {
		return "", fmt.Errorf("invalid key alias")
	}
	return filepath.Join(p.dataDir, "."+alias+".key"), nil
}

// Ensure FileKeyProvider implements domain.KeyProvider.
var _ domain.KeyProvider = (*FileKeyProvider)(nil)
