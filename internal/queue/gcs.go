package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSStore keeps each container as an object prefix in a bucket. New records
// are created with a DoesNotExist precondition, so a second writer for the
// same id fails instead of overwriting.
type GCSStore struct {
	bucket *storage.BucketHandle
	prefix string
	logger *log.Logger
	now    func() time.Time
}

// NewGCSStore creates a store over bucket. prefix may be empty.
func NewGCSStore(client *storage.Client, bucket, prefix string, logger *log.Logger) *GCSStore {
	if logger == nil {
		logger = log.Default()
	}
	return &GCSStore{
		bucket: client.Bucket(bucket),
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
		now:    time.Now,
	}
}

func (g *GCSStore) objectName(status Status, id string) string {
	return path.Join(g.prefix, string(status), fileName(id))
}

func (g *GCSStore) containerPrefix(status Status) string {
	return path.Join(g.prefix, string(status)) + "/"
}

// Put implements Store.
func (g *GCSStore) Put(ctx context.Context, app *Application) error {
	if err := checkID(app.ID); err != nil {
		return err
	}
	if !app.Status.Valid() {
		return fmt.Errorf("invalid queue status %q", app.Status)
	}
	data, err := Encode(app)
	if err != nil {
		return err
	}
	if err := g.create(ctx, g.objectName(app.Status, app.ID), data); err != nil {
		return err
	}
	g.logger.Printf("[QUEUE] Stored %s in gs://%s", app.ID, g.objectName(app.Status, app.ID))
	return nil
}

func (g *GCSStore) create(ctx context.Context, name string, data []byte) error {
	w := g.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			return ErrExists
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return ErrExists
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// Get implements Store.
func (g *GCSStore) Get(ctx context.Context, status Status, id string) (*Application, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := g.read(ctx, g.objectName(status, id))
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func (g *GCSStore) read(ctx context.Context, name string) ([]byte, error) {
	r, err := g.bucket.Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open GCS object: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object: %w", err)
	}
	return data, nil
}

// Move implements Store. An existing destination object is replaced.
func (g *GCSStore) Move(ctx context.Context, id string, from, to Status, message string) error {
	if !to.Valid() {
		return fmt.Errorf("invalid queue status %q", to)
	}
	app, err := g.Get(ctx, from, id)
	if err != nil {
		return err
	}
	now := g.now().UTC()
	app.Status = to
	app.StatusMessage = message
	app.UpdatedAt = &now

	data, err := Encode(app)
	if err != nil {
		return err
	}
	w := g.bucket.Object(g.objectName(to, id)).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	if from != to {
		err := g.bucket.Object(g.objectName(from, id)).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("failed to delete moved GCS object: %w", err)
		}
	}
	g.logger.Printf("[QUEUE] Moved %s %s -> %s", id, from, to)
	return nil
}

// List implements Store. Unreadable records are logged and skipped.
func (g *GCSStore) List(ctx context.Context, status Status) ([]Application, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid queue status %q", status)
	}
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: g.containerPrefix(status)})

	var apps []Application
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}
		if !strings.HasSuffix(attrs.Name, ".json") {
			continue
		}
		data, err := g.read(ctx, attrs.Name)
		if err != nil {
			g.logger.Printf("[QUEUE] Skipping unreadable object %s: %v", attrs.Name, err)
			continue
		}
		app, err := Decode(data)
		if err != nil {
			g.logger.Printf("[QUEUE] Skipping corrupt object %s: %v", attrs.Name, err)
			continue
		}
		apps = append(apps, *app)
	}
	sortByCreated(apps)
	return apps, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
