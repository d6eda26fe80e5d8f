package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetCVVersion retrieves a CV version by key. Returns nil, nil when absent.
func (db *DB) GetCVVersion(ctx context.Context, cvKey string) (*CVVersion, error) {
	var v CVVersion
	var metadataJSON []byte

	err := db.pool.QueryRow(ctx,
		`SELECT cv_key, file_name, file_path, file_hash, upload_date, summary, metadata
		 FROM cv_versions WHERE cv_key = $1`,
		cvKey,
	).Scan(&v.CVKey, &v.FileName, &v.FilePath, &v.FileHash, &v.UploadDate, &v.Summary, &metadataJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cv version: %w", err)
	}

	if metadataJSON != nil {
		_ = json.Unmarshal(metadataJSON, &v.Metadata)
	}
	return &v, nil
}

// InsertCVVersion stores a new CV version. Returns ErrDuplicate when the key
// already exists.
func (db *DB) InsertCVVersion(ctx context.Context, v *CVVersion) (*CVVersion, error) {
	metadataJSON, err := marshalOptional(v.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cv metadata: %w", err)
	}

	out := *v
	err = db.pool.QueryRow(ctx,
		`INSERT INTO cv_versions (cv_key, file_name, file_path, file_hash, summary, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING upload_date`,
		v.CVKey, v.FileName, v.FilePath, v.FileHash, v.Summary, metadataJSON,
	).Scan(&out.UploadDate)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to insert cv version: %w", err)
	}
	return &out, nil
}

// ListCVVersions returns all known CV versions, newest first.
func (db *DB) ListCVVersions(ctx context.Context) ([]CVVersion, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT cv_key, file_name, file_path, file_hash, upload_date, summary, metadata
		 FROM cv_versions ORDER BY upload_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cv versions: %w", err)
	}
	defer rows.Close()

	var versions []CVVersion
	for rows.Next() {
		var v CVVersion
		var metadataJSON []byte
		if err := rows.Scan(&v.CVKey, &v.FileName, &v.FilePath, &v.FileHash,
			&v.UploadDate, &v.Summary, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan cv version: %w", err)
		}
		if metadataJSON != nil {
			_ = json.Unmarshal(metadataJSON, &v.Metadata)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
