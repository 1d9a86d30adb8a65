// Package file is a file-backed queue.Persistence implementation,
// adapted from the teacher's store/file/file.go (originally a
// handshake.SessionStore persisting *session.Session/*session.Sequencer
// records as a JSON array). Here it persists an arbitrary string-keyed
// map instead, still via the teacher's write-to-temp-then-rename
// discipline for atomicity.
//
// Snapshot writes are HMAC-SHA256 signed using the same construction as
// the teacher's session/token.go TokenIssuer (adapted: it signs a
// snapshot digest here instead of a session id), so a corrupted or
// tampered file is detected on load rather than silently accepted.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/risa-org/wsc/session"
)

// record is the on-disk envelope: the signed payload plus its signature.
type record struct {
	Data map[string]string `json:"data"`
	Sig  string            `json:"sig"`
}

// Store is a file-backed key/value store. Not suitable for multi-process
// deployments — there is no cross-process locking, matching the
// teacher's own documented limitation.
type Store struct {
	mu     sync.RWMutex
	path   string
	data   map[string]string
	signer *session.TokenIssuer
}

// New creates a file-backed store at path, signed with signer. If the
// file exists, its contents are loaded and signature-verified; a
// missing, corrupt, or forged file is treated as an empty store rather
// than an error, matching spec section 4.G's "storage errors are
// logged" (degrade, don't fail construction).
func New(path string, signer *session.TokenIssuer) (*Store, error) {
	s := &Store{path: path, data: make(map[string]string), signer: signer}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load store from %s: %w", path, err)
	}
	return s, nil
}

// Get retrieves the value for key. Satisfies queue.Persistence.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Set stores value under key and flushes to disk.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.flush()
}

// Remove deletes key, if present, and flushes to disk.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return s.flush()
}

// Count returns the number of keys currently stored.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// load reads and verifies the JSON envelope from disk into memory.
// Called once at startup.
func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil // fresh start, no file yet
	}
	if err != nil {
		return err
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil // corrupt file: start empty rather than fail construction
	}

	if s.signer != nil {
		digest, err := digestOf(rec.Data)
		if err != nil {
			return nil
		}
		if err := s.signer.Verify(digest, rec.Sig); err != nil {
			return nil // tampered or forged file: start empty
		}
	}

	s.data = rec.Data
	if s.data == nil {
		s.data = make(map[string]string)
	}
	return nil
}

// flush writes the current in-memory state to path, signed, via a
// write-to-temp-then-rename to keep the write atomic on crash. Must be
// called with the write lock held.
func (s *Store) flush() error {
	digest, err := digestOf(s.data)
	if err != nil {
		return err
	}

	rec := record{Data: s.data}
	if s.signer != nil {
		rec.Sig = s.signer.Issue(digest)
	}

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// digestOf produces the string the signer's HMAC is computed over: the
// map's canonical JSON encoding itself (Go's encoding/json sorts map
// keys, so this is deterministic across runs). No separate hash is taken.
func digestOf(data map[string]string) (string, error) {
	canon, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(canon), nil
}
