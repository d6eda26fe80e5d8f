// Package cvid derives content-addressed identities for CV files.
package cvid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/jonathan/jobmatch/internal/db"
)

// KeyLength is the number of hex characters kept from the SHA-256 digest.
const KeyLength = 16

// Store is the persistence the provider needs.
type Store interface {
	GetCVVersion(ctx context.Context, cvKey string) (*db.CVVersion, error)
	InsertCVVersion(ctx context.Context, v *db.CVVersion) (*db.CVVersion, error)
}

// Provider resolves CV files to persisted CVVersion records.
type Provider struct {
	store  Store
	logger *log.Logger
}

// NewProvider creates a provider backed by store.
func NewProvider(store Store, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Default()
	}
	return &Provider{store: store, logger: logger}
}

// GenerateKey returns the CV key of the file at path: the first 16 hex
// characters of the SHA-256 of its bytes.
func GenerateKey(path string) (string, error) {
	sum, err := hashFile(path)
	if err != nil {
		return "", err
	}
	return sum[:KeyLength], nil
}

// KeyFromBytes returns the CV key for in-memory content.
func KeyFromBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:KeyLength]
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open cv file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read cv file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GetOrCreate returns the CVVersion for the file at path, inserting it on first
// sight. When a concurrent caller inserts the same key first, the stored row is
// returned instead of an error.
func (p *Provider) GetOrCreate(ctx context.Context, path string, summary *string, metadata map[string]any) (*db.CVVersion, error) {
	fullHash, err := hashFile(path)
	if err != nil {
		return nil, err
	}
	key := fullHash[:KeyLength]

	existing, err := p.store.GetCVVersion(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cv version: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	created, err := p.store.InsertCVVersion(ctx, &db.CVVersion{
		CVKey:    key,
		FileName: filepath.Base(path),
		FilePath: absPath,
		FileHash: fullHash,
		Summary:  summary,
		Metadata: metadata,
	})
	if err == nil {
		p.logger.Printf("[CVID] Registered CV %s (%s)", key, filepath.Base(path))
		return created, nil
	}
	if !errors.Is(err, db.ErrDuplicate) {
		return nil, fmt.Errorf("failed to insert cv version: %w", err)
	}

	winner, err := p.store.GetCVVersion(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read cv version after conflict: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("cv version %s reported as duplicate but not found", key)
	}
	return winner, nil
}

// Summary returns the stored summary for a CV key, or "" when none is stored.
func (p *Provider) Summary(ctx context.Context, key string) (string, error) {
	v, err := p.store.GetCVVersion(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to look up cv version: %w", err)
	}
	if v == nil || v.Summary == nil {
		return "", nil
	}
	return *v.Summary, nil
}
