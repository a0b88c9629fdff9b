package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ruteri/sefaz-config-gateway/interfaces"
)

const (
	dirMode  os.FileMode = 0o750
	fileMode os.FileMode = 0o600
)

// FileBackend implements a storage backend using the local file system.
// Keys map to paths below baseDir; "config/config_1.json" is stored as
// <baseDir>/config/config_1.json.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory.
// The directory is created if it doesn't exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: empty base directory", interfaces.ErrInvalidLocationURI)
	}
	if err := os.MkdirAll(baseDir, dirMode); err != nil {
		return nil, fmt.Errorf("%w: failed to create base directory: %v", interfaces.ErrStorage, err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch reads the file stored under key.
// Returns ErrContentNotFound if the file doesn't exist.
func (b *FileBackend) Fetch(ctx context.Context, key string) ([]byte, error) {
	filePath, err := b.pathFor(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read file: %v", interfaces.ErrStorage, err)
	}

	b.log.Debug("Fetched content from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Store writes data under key. The data is written to a temporary file in
// the target directory and renamed into place.
func (b *FileBackend) Store(ctx context.Context, key string, data []byte) error {
	filePath, err := b.pathFor(key)
	if err != nil {
		return err
	}

	tmpPath, err := b.writeTemp(filePath, data)
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to move file into place: %v", interfaces.ErrStorage, err)
	}
	syncDir(filepath.Dir(filePath))

	b.log.Debug("Stored content in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return nil
}

// Create writes data under key only if key does not exist yet. A fully
// written temporary file is hard linked to the target name, which fails
// atomically when the name is taken.
func (b *FileBackend) Create(ctx context.Context, key string, data []byte) error {
	filePath, err := b.pathFor(key)
	if err != nil {
		return err
	}

	tmpPath, err := b.writeTemp(filePath, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	if err := os.Link(tmpPath, filePath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", interfaces.ErrContentExists, key)
		}
		return fmt.Errorf("%w: failed to create file: %v", interfaces.ErrStorage, err)
	}
	syncDir(filepath.Dir(filePath))

	b.log.Debug("Created content in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return nil
}

// Delete removes the file stored under key.
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	filePath, err := b.pathFor(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to delete file: %v", interfaces.ErrStorage, err)
	}
	return nil
}

// List returns the sorted keys starting with prefix.
func (b *FileBackend) List(ctx context.Context, prefix string) ([]string, error) {
	root := b.baseDir
	if dir := path.Dir(prefix); strings.Contains(prefix, "/") && dir != "." {
		if err := validateKey(dir); err != nil {
			return nil, err
		}
		root = filepath.Join(b.baseDir, filepath.FromSlash(dir))
	}

	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(b.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list files: %v", interfaces.ErrStorage, err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) pathFor(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(key)), nil
}

// writeTemp writes data to a synced temporary file next to target and
// returns its path.
func (b *FileBackend) writeTemp(target string, data []byte) (string, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return "", fmt.Errorf("%w: failed to create directory: %v", interfaces.ErrStorage, err)
	}

	tmpPath := filepath.Join(dir, tempPrefix+uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create temporary file: %v", interfaces.ErrStorage, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: failed to write file: %v", interfaces.ErrStorage, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: failed to sync file: %v", interfaces.ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: failed to close file: %v", interfaces.ErrStorage, err)
	}

	return tmpPath, nil
}

// syncDir flushes directory metadata after a rename or link. Failures are
// ignored; not every platform supports syncing directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
