package auth

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kis-trader/internal/logger"
	"kis-trader/internal/secrets"

	"gopkg.in/yaml.v3"
)

const (
	tokenFilePrefix = "kis_token"
	tokenFileName   = "kis_token.dat"
	lockFileName    = "kis_token.lock"

	lockTimeout = 5 * time.Second
	pruneMaxAge = 24 * time.Hour
)

// TokenRecord is the persisted access token. It is never written with an
// empty token or a zero expiry.
type TokenRecord struct {
	Token     string    `json:"token" yaml:"token"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	PID       int       `json:"pid" yaml:"pid"`
}

// TokenStore persists TokenRecords encrypted on disk. Reads are
// self-healing: empty, corrupt or expired files are deleted and skipped so
// a bad file can never block subsequent logins.
type TokenStore struct {
	dir   string
	codec *secrets.Codec
	lock  *secrets.FileLock
	now   func() time.Time
}

func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{
		dir:   dir,
		codec: secrets.NewCodec(dir),
		lock:  secrets.NewFileLock(filepath.Join(dir, lockFileName)),
		now:   time.Now,
	}
}

func (s *TokenStore) path() string {
	return filepath.Join(s.dir, tokenFileName)
}

// Save encrypts and atomically writes the record. Writers across processes
// are serialized through the file lock; old token files are pruned in the
// background afterwards.
func (s *TokenStore) Save(token string, expiresAt time.Time) error {
	if token == "" {
		return &TokenFileError{Op: "save", Path: s.path(), Err: errEmptyToken}
	}
	if expiresAt.IsZero() {
		return &TokenFileError{Op: "save", Path: s.path(), Err: errNoExpiry}
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return &TokenFileError{Op: "save", Path: s.dir, Err: err}
	}

	if err := s.lock.Acquire(context.Background(), lockTimeout); err != nil {
		return &TokenFileError{Op: "lock", Path: s.lock.Path, Err: err}
	}
	defer s.lock.Release()

	rec := TokenRecord{
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
		PID:       os.Getpid(),
	}
	plain, err := json.Marshal(rec)
	if err != nil {
		return &TokenFileError{Op: "save", Path: s.path(), Err: err}
	}
	blob, err := s.codec.Encrypt(plain)
	if err != nil {
		return &TokenFileError{Op: "encrypt", Path: s.path(), Err: err}
	}
	if err := secrets.WriteFileAtomic(s.path(), blob, 0o600); err != nil {
		return &TokenFileError{Op: "save", Path: s.path(), Err: err}
	}

	go s.pruneOld()
	return nil
}

// Load scans candidate token files newest-first and returns the first valid
// record, or nil when none survives. It never returns an error for a bad
// file; it deletes it and moves on.
func (s *TokenStore) Load() *TokenRecord {
	for _, path := range s.candidates() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.Size() == 0 {
			s.discard(path, "empty token file")
			continue
		}

		blob, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		rec, ok := s.decode(blob)
		if !ok {
			s.discard(path, "unreadable token file")
			continue
		}
		if rec.ExpiresAt.Before(s.now()) {
			s.discard(path, "expired token file")
			continue
		}
		return rec
	}
	return nil
}

// decode tries the current encrypted format first, then the legacy
// plaintext JSON and YAML formats kept for read-compatibility. Only the
// encrypted format is ever written.
func (s *TokenStore) decode(blob []byte) (*TokenRecord, bool) {
	if plain, err := s.codec.Decrypt(blob); err == nil {
		if rec, ok := parseJSONRecord(plain); ok {
			return rec, true
		}
	}
	if rec, ok := parseJSONRecord(blob); ok {
		return rec, true
	}
	var rec TokenRecord
	if err := yaml.Unmarshal(blob, &rec); err == nil && rec.valid() {
		return &rec, true
	}
	return nil, false
}

func parseJSONRecord(b []byte) (*TokenRecord, bool) {
	var rec TokenRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, false
	}
	if !rec.valid() {
		return nil, false
	}
	return &rec, true
}

func (r TokenRecord) valid() bool {
	return r.Token != "" && !r.ExpiresAt.IsZero()
}

func (s *TokenStore) discard(path, reason string) {
	logger.Debug(context.Background(), "Removing unusable token file", "path", path, "reason", reason)
	_ = os.Remove(path)
}

// candidates lists token files newest-first, the primary path first among
// files with equal mtimes.
func (s *TokenStore) candidates() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	type cand struct {
		path string
		mod  time.Time
	}
	var cs []cand
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tokenFilePrefix) {
			continue
		}
		if e.Name() == lockFileName {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cs = append(cs, cand{path: filepath.Join(s.dir, e.Name()), mod: info.ModTime()})
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].mod.After(cs[j].mod) })

	paths := make([]string, len(cs))
	for i, c := range cs {
		paths[i] = c.path
	}
	return paths
}

// pruneOld deletes token files that have not been touched for a day.
func (s *TokenStore) pruneOld() {
	cutoff := s.now().Add(-pruneMaxAge)
	for _, path := range s.candidates() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}
