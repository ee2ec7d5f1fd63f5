package knowledge

import (
	"errors"
	"fmt"
	"sort"
)

// CurrentVersion is the schema version written by Save.
const CurrentVersion uint32 = 1

// ErrUnsupportedVersion is returned for files written by a newer release.
var ErrUnsupportedVersion = errors.New("knowledge file version is newer than supported")

// migrations[v] upgrades a knowledge base from version v to v+1.
var migrations = map[uint32]func(*KnowledgeBase) error{
	// Version 0 files predate the version field; the layout is unchanged.
	0: func(kb *KnowledgeBase) error { return nil },
}

// Migrate runs every step needed to bring kb to CurrentVersion. It reports
// whether anything changed.
func Migrate(kb *KnowledgeBase) (bool, error) {
	if kb.Version > CurrentVersion {
		return false, fmt.Errorf("%w: file has version %d, newest known is %d", ErrUnsupportedVersion, kb.Version, CurrentVersion)
	}
	changed := false
	for kb.Version < CurrentVersion {
		step, ok := migrations[kb.Version]
		if !ok {
			return changed, fmt.Errorf("no migration from knowledge version %d", kb.Version)
		}
		if err := step(kb); err != nil {
			return changed, fmt.Errorf("migrate knowledge from version %d: %w", kb.Version, err)
		}
		kb.Version++
		changed = true
	}
	return changed, nil
}

// Rekey files every entry and pending entry under its fingerprint's hash key
// and drops pending entries for fingerprints that already have an entry.
// Files written with another hash function load this way without losing
// anything. When two entries collapse onto one key the most recently updated
// wins, ties going to the one already under the right key. Colliding pending
// entries are merged. It returns the number of entries moved, merged or
// dropped.
func Rekey(kb *KnowledgeBase) int {
	changed := 0

	entries := make(map[string]KnowledgeEntry, len(kb.Entries))
	for _, key := range sortedKeys(kb.Entries) {
		entry := kb.Entries[key]
		want := entry.HashKey()
		if want != key {
			changed++
		}
		if existing, ok := entries[want]; ok {
			if entry.UpdatedAt > existing.UpdatedAt || (entry.UpdatedAt == existing.UpdatedAt && want == key) {
				entries[want] = entry
			}
			continue
		}
		entries[want] = entry
	}

	pending := make(map[string]PendingEntry, len(kb.PendingAnalysis))
	for _, key := range sortedKeys(kb.PendingAnalysis) {
		p := kb.PendingAnalysis[key]
		want := p.Fingerprint.HashKey()
		if _, known := entries[want]; known {
			changed++
			continue
		}
		if want != key {
			changed++
		}
		existing, ok := pending[want]
		if !ok {
			pending[want] = p
			continue
		}
		pending[want] = mergePending(existing, p)
	}

	kb.Entries = entries
	kb.PendingAnalysis = pending
	return changed
}

func mergePending(a, b PendingEntry) PendingEntry {
	merged := a
	if b.LastSeen > a.LastSeen {
		merged = b
	}
	merged.Sightings = a.Sightings + b.Sightings
	merged.FirstSeen = min(a.FirstSeen, b.FirstSeen)
	merged.LastSeen = max(a.LastSeen, b.LastSeen)
	return merged
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
