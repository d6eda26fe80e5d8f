package cvid

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jonathan/jobmatch/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mimics the uniqueness behaviour of the cv_versions table.
type memStore struct {
	mu       sync.Mutex
	rows     map[string]db.CVVersion
	inserts  int
	getErr   error
	// raceWith is inserted by another "caller" just before the first Insert.
	raceWith *db.CVVersion
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]db.CVVersion)}
}

func (s *memStore) GetCVVersion(_ context.Context, key string) (*db.CVVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	v, ok := s.rows[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *memStore) InsertCVVersion(_ context.Context, v *db.CVVersion) (*db.CVVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raceWith != nil {
		s.rows[s.raceWith.CVKey] = *s.raceWith
		s.raceWith = nil
	}
	if _, ok := s.rows[v.CVKey]; ok {
		return nil, db.ErrDuplicate
	}
	s.inserts++
	s.rows[v.CVKey] = *v
	out := *v
	return &out, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGenerateKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cv.txt", "hello")

	key, err := GenerateKey(path)
	require.NoError(t, err)
	// sha256("hello") = 2cf24dba5fb0a30e26e83b2ac5b9e29e...
	assert.Equal(t, "2cf24dba5fb0a30e", key)
	assert.Len(t, key, KeyLength)
	assert.Equal(t, key, KeyFromBytes([]byte("hello")))
}

func TestGenerateKey_DependsOnlyOnBytes(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.pdf", "same bytes")
	b := writeFile(t, dir, "renamed.docx", "same bytes")
	c := writeFile(t, dir, "c.pdf", "same bytes!")

	ka, err := GenerateKey(a)
	require.NoError(t, err)
	kb, err := GenerateKey(b)
	require.NoError(t, err)
	kc, err := GenerateKey(c)
	require.NoError(t, err)

	assert.Equal(t, ka, kb)
	assert.NotEqual(t, ka, kc)
}

func TestGenerateKey_MissingFile(t *testing.T) {
	_, err := GenerateKey(filepath.Join(t.TempDir(), "nope.pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestGetOrCreate_CreatesOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cv.pdf", "resume content")
	store := newMemStore()
	p := NewProvider(store, nil)
	ctx := context.Background()

	summary := "Go engineer"
	first, err := p.GetOrCreate(ctx, path, &summary, map[string]any{"lang": "en"})
	require.NoError(t, err)
	assert.Equal(t, "cv.pdf", first.FileName)
	assert.Len(t, first.FileHash, 64)
	assert.Equal(t, first.FileHash[:KeyLength], first.CVKey)

	copyPath := writeFile(t, dir, "other-name.pdf", "resume content")
	second, err := p.GetOrCreate(ctx, copyPath, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, first.CVKey, second.CVKey)
	assert.Equal(t, "cv.pdf", second.FileName, "identical bytes collapse to the first row")
	assert.Equal(t, 1, store.inserts)

	got, err := p.Summary(ctx, first.CVKey)
	require.NoError(t, err)
	assert.Equal(t, "Go engineer", got)
}

func TestGetOrCreate_ConflictReturnsWinner(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cv.pdf", "contended")
	key := KeyFromBytes([]byte("contended"))

	store := newMemStore()
	store.raceWith = &db.CVVersion{CVKey: key, FileName: "winner.pdf"}
	p := NewProvider(store, nil)

	v, err := p.GetOrCreate(context.Background(), path, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "winner.pdf", v.FileName)
	assert.Equal(t, 0, store.inserts)
}

func TestGetOrCreate_Concurrent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cv.pdf", "parallel")
	store := newMemStore()
	p := NewProvider(store, nil)

	var wg sync.WaitGroup
	keys := make([]string, 10)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := p.GetOrCreate(context.Background(), path, nil, nil)
			if assert.NoError(t, err) {
				keys[i] = v.CVKey
			}
		}(i)
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}
	assert.Equal(t, 1, store.inserts)
}

func TestGetOrCreate_Errors(t *testing.T) {
	p := NewProvider(newMemStore(), nil)
	_, err := p.GetOrCreate(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), nil, nil)
	assert.Error(t, err)

	dir := t.TempDir()
	path := writeFile(t, dir, "cv.pdf", "x")
	store := newMemStore()
	store.getErr = errors.New("db down")
	p = NewProvider(store, nil)
	_, err = p.GetOrCreate(context.Background(), path, nil, nil)
	assert.ErrorContains(t, err, "db down")
}
