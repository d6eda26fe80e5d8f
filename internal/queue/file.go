package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileStore keeps each container as a directory of <id>.json files. Writes go
// to a temp file in the destination directory and are renamed into place, so
// a concurrent List never sees a partial record.
type FileStore struct {
	root   string
	logger *log.Logger
	now    func() time.Time
}

// NewFileStore creates the container directories under root.
func NewFileStore(root string, logger *log.Logger) (*FileStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	for _, s := range Statuses {
		if err := os.MkdirAll(filepath.Join(root, string(s)), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory: %w", err)
		}
	}
	return &FileStore{root: root, logger: logger, now: time.Now}, nil
}

// Root returns the queue base directory.
func (f *FileStore) Root() string {
	return f.root
}

func (f *FileStore) path(status Status, id string) string {
	return filepath.Join(f.root, string(status), fileName(id))
}

// Put implements Store.
func (f *FileStore) Put(ctx context.Context, app *Application) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID(app.ID); err != nil {
		return err
	}
	if !app.Status.Valid() {
		return fmt.Errorf("invalid queue status %q", app.Status)
	}
	if f.exists(app.ID) {
		return ErrExists
	}
	data, err := Encode(app)
	if err != nil {
		return err
	}
	if err := writeAtomic(f.path(app.Status, app.ID), data); err != nil {
		return err
	}
	f.logger.Printf("[QUEUE] Stored %s in %s", app.ID, app.Status)
	return nil
}

func (f *FileStore) exists(id string) bool {
	for _, s := range Statuses {
		if _, err := os.Stat(f.path(s, id)); err == nil {
			return true
		}
	}
	return false
}

// Get implements Store.
func (f *FileStore) Get(ctx context.Context, status Status, id string) (*Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(status, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read queue record: %w", err)
	}
	return Decode(data)
}

// Move implements Store.
func (f *FileStore) Move(ctx context.Context, id string, from, to Status, message string) error {
	if !to.Valid() {
		return fmt.Errorf("invalid queue status %q", to)
	}
	app, err := f.Get(ctx, from, id)
	if err != nil {
		return err
	}
	now := f.now().UTC()
	app.Status = to
	app.StatusMessage = message
	app.UpdatedAt = &now

	data, err := Encode(app)
	if err != nil {
		return err
	}
	if err := writeAtomic(f.path(to, id), data); err != nil {
		return err
	}
	if from != to {
		if err := os.Remove(f.path(from, id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove moved record: %w", err)
		}
	}
	f.logger.Printf("[QUEUE] Moved %s %s -> %s", id, from, to)
	return nil
}

// List implements Store. Unreadable records are logged and skipped.
func (f *FileStore) List(ctx context.Context, status Status) ([]Application, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid queue status %q", status)
	}
	dir := filepath.Join(f.root, string(status))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue directory: %w", err)
	}

	apps := make([]Application, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			f.logger.Printf("[QUEUE] Skipping unreadable record %s: %v", name, err)
			continue
		}
		app, err := Decode(data)
		if err != nil {
			f.logger.Printf("[QUEUE] Skipping corrupt record %s: %v", name, err)
			continue
		}
		apps = append(apps, *app)
	}
	sortByCreated(apps)
	return apps, nil
}

func sortByCreated(apps []Application) {
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].CreatedAt.Before(apps[j].CreatedAt)
	})
}

func writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename queue record: %w", err)
	}
	return nil
}
