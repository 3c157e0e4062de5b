package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"crypto-snapshot/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const snapshotFilePrefix = "crypto_data_"

// SnapshotKey is the storage key of the snapshot for t's calendar date.
func SnapshotKey(t time.Time) string {
	return snapshotFilePrefix + domain.DateKey(t)
}

// FileSnapshotRepository keeps one JSON file per calendar day in a directory.
type FileSnapshotRepository struct {
	dir    string
	tracer trace.Tracer
}

func NewFileSnapshotRepository(dir string, tracer trace.Tracer) *FileSnapshotRepository {
	return &FileSnapshotRepository{dir: dir, tracer: tracer}
}

// Dir returns the storage directory.
func (r *FileSnapshotRepository) Dir() string {
	return r.dir
}

func (r *FileSnapshotRepository) path(date time.Time) string {
	return filepath.Join(r.dir, SnapshotKey(date)+".json")
}

// Load reads the snapshot for date. A missing file is reported as found=false
// with a nil error; a file that does not decode is a *domain.CorruptRecordError.
func (r *FileSnapshotRepository) Load(ctx context.Context, date time.Time) (domain.SnapshotRecord, bool, error) {
	_, span := r.tracer.Start(ctx, "snapshot-repo.load")
	defer span.End()

	key := SnapshotKey(date)
	span.SetAttributes(attribute.String("key", key))

	data, err := os.ReadFile(r.path(date))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.SnapshotRecord{}, false, nil
	}
	if err != nil {
		return domain.SnapshotRecord{}, false, fmt.Errorf("read snapshot %s: %w", key, err)
	}

	var record domain.SnapshotRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.SnapshotRecord{}, false, &domain.CorruptRecordError{Key: key, Err: err}
	}
	return record, true, nil
}

// Version fingerprints the stored file for date by modification time and
// size. A missing file is reported as found=false with a nil error.
func (r *FileSnapshotRepository) Version(ctx context.Context, date time.Time) (string, bool, error) {
	info, err := os.Stat(r.path(date))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("stat snapshot %s: %w", SnapshotKey(date), err)
	}
	return fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()), true, nil
}

// Save replaces the snapshot for date. The record is written to a temporary
// file in the same directory and renamed over the target.
func (r *FileSnapshotRepository) Save(ctx context.Context, date time.Time, record domain.SnapshotRecord) error {
	_, span := r.tracer.Start(ctx, "snapshot-repo.save")
	defer span.End()

	key := SnapshotKey(date)
	span.SetAttributes(attribute.String("key", key))

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod snapshot %s: %w", key, err)
	}
	if err := os.Rename(tmpName, r.path(date)); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", key, err)
	}
	return nil
}
