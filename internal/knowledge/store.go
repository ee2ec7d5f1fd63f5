package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"portkiller/internal/fileutil"
	"portkiller/internal/logging"
)

// Store owns a KnowledgeBase and its backing file. Methods are safe for
// concurrent use, but learning code keeps a single writer so sighting counts
// and pending removal stay ordered.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	readOnly bool
	dirty    bool

	mu sync.RWMutex
	kb KnowledgeBase
}

// ErrReadOnly is returned by Save on a store opened with ReadOnly.
var ErrReadOnly = errors.New("knowledge store is read-only")

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "knowledge")
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// ReadOnly makes Load leave the file alone. Creating, migrating or re-keying
// happens in memory only and is reported by Dirty.
func ReadOnly() Option {
	return func(s *Store) {
		s.readOnly = true
	}
}

func newStore(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: logging.NewComponentLogger(logging.NewNop(), "knowledge"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMemory returns a seeded store that is never written to disk. Save is a
// no-op.
func NewMemory(opts ...Option) *Store {
	s := newStore("", opts...)
	s.kb = newKnowledgeBase(CurrentVersion)
	SeedBuiltins(&s.kb, s.now())
	return s
}

// DefaultPath returns ~/.portkiller-knowledge.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".portkiller-knowledge.json"), nil
}

// Load opens the knowledge file at path. A missing file yields a fresh,
// seeded store which is saved immediately. Older files are migrated, entries
// filed under stale keys are re-keyed, and the result is saved. Unreadable or
// malformed files are an error and are left untouched.
func Load(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("knowledge file path is empty")
	}
	s := newStore(path, opts...)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read knowledge file: %w", err)
		}
		s.kb = newKnowledgeBase(CurrentVersion)
		seeded := SeedBuiltins(&s.kb, s.now())
		if s.readOnly {
			s.dirty = true
			return s, nil
		}
		if err := s.Save(); err != nil {
			return nil, err
		}
		s.logger.Info("created knowledge file",
			logging.String("path", path),
			logging.Int("builtin_entries", seeded))
		return s, nil
	}

	kb, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse knowledge file %s: %w", path, err)
	}
	from := kb.Version
	migrated, err := Migrate(&kb)
	if err != nil {
		return nil, err
	}
	rekeyed := Rekey(&kb)
	s.kb = kb
	switch {
	case !migrated && rekeyed == 0:
	case s.readOnly:
		s.dirty = true
	default:
		if err := s.Save(); err != nil {
			return nil, err
		}
		s.logger.Info("upgraded knowledge file",
			logging.String("path", path),
			logging.Int64("from_version", int64(from)),
			logging.Int64("to_version", int64(kb.Version)),
			logging.Int("rekeyed", rekeyed))
	}

	s.logger.Debug("loaded knowledge file",
		logging.String("path", path),
		logging.Int("entries", len(kb.Entries)),
		logging.Int("pending", len(kb.PendingAnalysis)))
	return s, nil
}

// Decode parses a persisted knowledge base without migrating it.
func Decode(data []byte) (KnowledgeBase, error) {
	var kb KnowledgeBase
	if err := json.Unmarshal(data, &kb); err != nil {
		return KnowledgeBase{}, err
	}
	if kb.Entries == nil {
		kb.Entries = make(map[string]KnowledgeEntry)
	}
	if kb.PendingAnalysis == nil {
		kb.PendingAnalysis = make(map[string]PendingEntry)
	}
	return kb, nil
}

// Path returns the backing file, or "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Dirty reports whether a read-only Load changed the knowledge base in ways
// a writable Load would have saved.
func (s *Store) Dirty() bool {
	return s.dirty
}

// Save writes the knowledge base atomically with owner-only permissions.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	if s.readOnly {
		return ErrReadOnly
	}

	s.mu.RLock()
	data, err := json.MarshalIndent(s.kb, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal knowledge base: %w", err)
	}

	if err := fileutil.WriteAtomic(s.path, data, 0o600, 0o700); err != nil {
		return fmt.Errorf("save knowledge base: %w", err)
	}
	return nil
}

// RecordSighting applies one sighting of fp. When the fingerprint reaches
// the policy threshold the accumulated context is returned with true.
func (s *Store) RecordSighting(fp Fingerprint, ctx AnalysisContext, policy Policy) (AnalysisContext, bool) {
	promoted, outcome := s.RecordSightingOutcome(fp, ctx, policy)
	return promoted, outcome == OutcomePromoted
}

// RecordSightingOutcome is RecordSighting with the detailed outcome.
func (s *Store) RecordSightingOutcome(fp Fingerprint, ctx AnalysisContext, policy Policy) (AnalysisContext, SightingOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordSighting(&s.kb, fp, ctx, policy, s.now().Unix())
}

// StoreResult turns a classification into an entry, replacing any pending
// entry for the same fingerprint.
func (s *Store) StoreResult(fp Fingerprint, resp AnalysisResponse, source Provenance) KnowledgeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeResult(&s.kb, fp, resp, source, s.now().Unix())
}

// Lookup returns a copy of the entry for fp.
func (s *Store) Lookup(fp Fingerprint) (KnowledgeEntry, bool) {
	return s.EntryByKey(fp.HashKey())
}

// LookupDisplayName returns the display name for fp if it is known.
func (s *Store) LookupDisplayName(fp Fingerprint) (string, bool) {
	entry, ok := s.Lookup(fp)
	if !ok {
		return "", false
	}
	return entry.DisplayName, true
}

// EntryByKey returns the entry stored under a hash key.
func (s *Store) EntryByKey(key string) (KnowledgeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.kb.Entries[key]
	return entry, ok
}

// PendingByKey returns the pending entry stored under a hash key.
func (s *Store) PendingByKey(key string) (PendingEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending, ok := s.kb.PendingAnalysis[key]
	return pending, ok
}

// CleanupStalePending removes pending entries not seen within maxAge and
// returns how many were removed. Entries last seen exactly at the cutoff are
// kept.
func (s *Store) CleanupStalePending(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Unix() - int64(maxAge/time.Second)
	return cleanupStalePending(&s.kb, cutoff)
}

// Forget removes the entry or pending entry stored under key.
func (s *Store) Forget(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kb.Entries[key]; ok {
		delete(s.kb.Entries, key)
		return true
	}
	if _, ok := s.kb.PendingAnalysis[key]; ok {
		delete(s.kb.PendingAnalysis, key)
		return true
	}
	return false
}

// ErrKeyNotFound and ErrAmbiguousKey are returned by ResolveKey.
var (
	ErrKeyNotFound  = errors.New("no entry matches key")
	ErrAmbiguousKey = errors.New("key prefix matches more than one entry")
)

// ResolveKey expands a hash key or a unique key prefix to a full key among
// entries and pending entries.
func (s *Store) ResolveKey(prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", ErrKeyNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.kb.Entries[prefix]; ok {
		return prefix, nil
	}
	if _, ok := s.kb.PendingAnalysis[prefix]; ok {
		return prefix, nil
	}
	var match string
	count := 0
	for key := range s.kb.Entries {
		if strings.HasPrefix(key, prefix) {
			match = key
			count++
		}
	}
	for key := range s.kb.PendingAnalysis {
		if strings.HasPrefix(key, prefix) {
			match = key
			count++
		}
	}
	switch count {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, prefix)
	case 1:
		return match, nil
	default:
		return "", fmt.Errorf("%w: %s (%d matches)", ErrAmbiguousKey, prefix, count)
	}
}

// Entries returns all entries sorted by display name, then hash key.
func (s *Store) Entries() []KnowledgeEntry {
	s.mu.RLock()
	out := make([]KnowledgeEntry, 0, len(s.kb.Entries))
	for _, entry := range s.kb.Entries {
		out = append(out, entry)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].DisplayName), strings.ToLower(out[j].DisplayName)
		if a != b {
			return a < b
		}
		return out[i].HashKey() < out[j].HashKey()
	})
	return out
}

// Pending returns pending entries, most recently seen first.
func (s *Store) Pending() []PendingEntry {
	s.mu.RLock()
	out := make([]PendingEntry, 0, len(s.kb.PendingAnalysis))
	for _, pending := range s.kb.PendingAnalysis {
		out = append(out, pending)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen != out[j].LastSeen {
			return out[i].LastSeen > out[j].LastSeen
		}
		return out[i].Fingerprint.HashKey() < out[j].Fingerprint.HashKey()
	})
	return out
}

// Stats summarizes the store contents.
type Stats struct {
	Version    uint32
	Entries    int
	Pending    int
	BySource   map[Provenance]int
	ByCategory map[Category]int
}

// Stats returns entry counts by source and category.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{
		Version:    s.kb.Version,
		Entries:    len(s.kb.Entries),
		Pending:    len(s.kb.PendingAnalysis),
		BySource:   make(map[Provenance]int),
		ByCategory: make(map[Category]int),
	}
	for _, entry := range s.kb.Entries {
		stats.BySource[entry.Source]++
		stats.ByCategory[entry.Category]++
	}
	return stats
}

// Snapshot returns a deep copy of the knowledge base for export.
func (s *Store) Snapshot() KnowledgeBase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := newKnowledgeBase(s.kb.Version)
	for key, entry := range s.kb.Entries {
		out.Entries[key] = entry
	}
	for key, pending := range s.kb.PendingAnalysis {
		out.PendingAnalysis[key] = pending
	}
	return out
}
