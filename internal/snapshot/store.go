// Package snapshot implements the whole-file, last-writer-wins
// persistence layer described in spec.md §4.6: one binary file per
// registry, written atomically (temp file + rename) on every
// successful mutation, with a legacy-list bootstrap fallback.
//
// The codec is fxamacker/cbor/v2. CBOR is self-describing, so the
// "accept either the canonical mapping form or a legacy ordered-
// sequence form" bootstrap rule (spec.md §4.6) reduces to "try
// decoding as a map, then as a list" without any bespoke framing —
// this is the concrete answer to spec.md §9's "simple length-prefixed
// tagged union format is sufficient" suggestion.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/hackmesh/hub/internal/common/logging"
)

var logger = logging.GetLogger("snapshot")

// Store owns a base directory under which every registry's snapshot
// file lives.
type Store struct {
	baseDir string
}

// Open ensures baseDir (and its chat/ subdirectory, for per-room
// history files) exist and returns a Store rooted there.
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "chat"), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create base dir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Path returns the absolute path of a registry-relative file name,
// e.g. "teams.etf" or "chat/general.etf".
func (s *Store) Path(relName string) string {
	return filepath.Join(s.baseDir, relName)
}

// WriteAtomic CBOR-encodes v and writes it to relName via a temp file
// plus rename, which is atomic on the same filesystem — the
// crash-safety mechanism spec.md §4.6 requires ("write to temp +
// rename, or equivalent").
func (s *Store) WriteAtomic(relName string, v interface{}) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", relName, err)
	}

	path := s.Path(relName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir for %s: %w", relName, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write temp for %s: %w", relName, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot: rename for %s: %w", relName, err)
	}
	return nil
}

// LoadMap decodes relName into mapOut (a pointer to a map keyed by
// the entity's natural key), falling back to decoding a legacy
// ordered-sequence form into listOut (a pointer to a slice of the
// same element type) and converting it via assign. A missing file
// leaves mapOut untouched (callers pre-initialize it empty); a
// corrupt file is logged and treated the same as missing, per
// spec.md §4.6 ("a corrupt file is treated as empty — it must not
// prevent startup").
func (s *Store) LoadMap(relName string, mapOut interface{}, listOut interface{}, assign func()) error {
	data, err := os.ReadFile(s.Path(relName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		logger.Warn("snapshot: unreadable file, starting empty", "file", relName, "err", err)
		return nil
	}

	if err := cbor.Unmarshal(data, mapOut); err == nil {
		return nil
	}

	if err := cbor.Unmarshal(data, listOut); err == nil {
		assign()
		return nil
	}

	logger.Warn("snapshot: corrupt file, starting empty", "file", relName)
	return nil
}

// ReadListOrEmpty decodes relName (a plain CBOR-encoded slice, no
// legacy-map fallback needed since room indexes and message logs have
// no alternate historical shape) into listOut, leaving it untouched
// if the file is missing or corrupt.
func (s *Store) ReadListOrEmpty(relName string, listOut interface{}) error {
	data, err := os.ReadFile(s.Path(relName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		logger.Warn("snapshot: unreadable file, starting empty", "file", relName, "err", err)
		return nil
	}
	if err := cbor.Unmarshal(data, listOut); err != nil {
		logger.Warn("snapshot: corrupt file, starting empty", "file", relName, "err", err)
	}
	return nil
}

// ClearAll recursively deletes the base directory and recreates it
// (and its chat/ subdirectory). It always returns nil, per spec.md
// §4.6's "returns success unconditionally" — a failure here would
// otherwise take down the whole reset path, which the façade must not
// allow.
func (s *Store) ClearAll() error {
	if err := os.RemoveAll(s.baseDir); err != nil {
		logger.Error("snapshot: clear_all failed to remove base dir", "err", err)
	}
	if err := os.MkdirAll(filepath.Join(s.baseDir, "chat"), 0o755); err != nil {
		logger.Error("snapshot: clear_all failed to recreate base dir", "err", err)
	}
	return nil
}

// ListRoomFiles returns the room names for which a chat/<room>.etf
// history file exists on disk, used by the chat server's bootstrap
// replay alongside chat/index.etf.
func (s *Store) ListRoomFiles() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "chat"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rooms []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const ext = ".etf"
		if filepath.Ext(name) == ext && name != "index.etf" {
			rooms = append(rooms, name[:len(name)-len(ext)])
		}
	}
	return rooms, nil
}
