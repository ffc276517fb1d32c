package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/nhle/mailforward/internal/model"
)

// JSONFile keeps the ledger as a JSON array of "<sender>-<timestamp>"
// strings. Every call reads the whole file and every mark rewrites it.
type JSONFile struct {
	path string
}

// NewJSONFile returns a ledger backed by the file at path. The file is
// created on the first MarkProcessed.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path returns the backing file path.
func (f *JSONFile) Path() string {
	return f.path
}

// IsProcessed reports whether the pair is present in the file.
func (f *JSONFile) IsProcessed(
	_ context.Context, sender string, timestamp int64,
) (bool, error) {
	keys, err := f.read()
	if err != nil {
		return false, err
	}
	return slices.Contains(keys, model.ProcessedKey(sender, timestamp)), nil
}

// MarkProcessed appends the pair and rewrites the file.
func (f *JSONFile) MarkProcessed(
	_ context.Context, sender string, timestamp int64,
) error {
	keys, err := f.read()
	if err != nil {
		return err
	}
	keys = append(keys, model.ProcessedKey(sender, timestamp))
	return f.write(keys)
}

// Keys returns every recorded key in insertion order.
func (f *JSONFile) Keys(_ context.Context) ([]string, error) {
	return f.read()
}

// read loads the ledger. A missing or empty file is an empty ledger.
func (f *JSONFile) read() ([]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger %s: %w", f.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []string{}, nil
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrCorrupt, f.path, err)
	}
	if keys == nil {
		keys = []string{}
	}

	return keys, nil
}

// write replaces the ledger file with keys via a temp file and rename.
func (f *JSONFile) write(keys []string) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".processed-*.json")
	if err != nil {
		return fmt.Errorf("creating temp ledger in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp ledger: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting ledger permissions: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replacing ledger %s: %w", f.path, err)
	}

	return nil
}
