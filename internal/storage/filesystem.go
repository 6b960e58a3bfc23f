// Package storage keeps reply attachment files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stored describes a written attachment.
type Stored struct {
	Path string
	Name string
}

// Filesystem stores attachments under basePath/YYYY/MM/<uuid><ext>.
type Filesystem struct {
	basePath string
	now      func() time.Time
}

// NewFilesystem creates the base directory if needed.
func NewFilesystem(basePath string) (*Filesystem, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}
	return &Filesystem{basePath: basePath, now: time.Now}, nil
}

// Write stores data under a generated name. suggestedName only contributes its extension.
func (f *Filesystem) Write(ctx context.Context, data []byte, suggestedName string) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	now := f.now()
	dir := filepath.Join(f.basePath, now.Format("2006"), now.Format("01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stored{}, fmt.Errorf("failed to create directory: %w", err)
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(suggestedName)))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		_ = os.Remove(path)
		return Stored{}, fmt.Errorf("failed to write file: %w", err)
	}
	return Stored{Path: path, Name: name}, nil
}

// Delete removes a stored file. Missing files are not an error.
func (f *Filesystem) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
