package knowledge

import "math"

// Policy bounds sighting-based promotion.
type Policy struct {
	// MinSightings is how many sightings an unknown fingerprint needs before
	// it is handed out for classification.
	MinSightings uint32
	// MaxPending caps the pending map. New fingerprints seen while it is full
	// are dropped.
	MaxPending int
}

// DefaultPolicy matches the shipped configuration defaults.
func DefaultPolicy() Policy {
	return Policy{MinSightings: 2, MaxPending: 20}
}

// SightingOutcome describes what RecordSighting did.
type SightingOutcome int

const (
	// OutcomeKnown means the fingerprint already has an entry.
	OutcomeKnown SightingOutcome = iota
	// OutcomeTracked means a new pending entry was created.
	OutcomeTracked
	// OutcomeCounted means an existing pending entry was updated below threshold.
	OutcomeCounted
	// OutcomePromoted means the pending entry reached the threshold.
	OutcomePromoted
	// OutcomeDropped means the pending map was full.
	OutcomeDropped
)

func (o SightingOutcome) String() string {
	switch o {
	case OutcomeKnown:
		return "known"
	case OutcomeTracked:
		return "tracked"
	case OutcomeCounted:
		return "counted"
	case OutcomePromoted:
		return "promoted"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// recordSighting applies one sighting to kb. On promotion it returns a copy
// of the accumulated context; the pending entry stays until a result is
// stored.
func recordSighting(kb *KnowledgeBase, fp Fingerprint, ctx AnalysisContext, policy Policy, now int64) (AnalysisContext, SightingOutcome) {
	key := fp.HashKey()

	if entry, ok := kb.Entries[key]; ok {
		entry.Sightings++
		kb.Entries[key] = entry
		return AnalysisContext{}, OutcomeKnown
	}

	if pending, ok := kb.PendingAnalysis[key]; ok {
		pending.Sightings++
		pending.LastSeen = now
		kb.PendingAnalysis[key] = pending
		if pending.Sightings >= policy.MinSightings {
			return pending.Context, OutcomePromoted
		}
		return AnalysisContext{}, OutcomeCounted
	}

	if len(kb.PendingAnalysis) >= policy.MaxPending {
		return AnalysisContext{}, OutcomeDropped
	}
	kb.PendingAnalysis[key] = PendingEntry{
		Fingerprint: fp,
		Sightings:   1,
		FirstSeen:   now,
		LastSeen:    now,
		Context:     ctx,
	}
	return AnalysisContext{}, OutcomeTracked
}

func storeResult(kb *KnowledgeBase, fp Fingerprint, resp AnalysisResponse, source Provenance, now int64) KnowledgeEntry {
	key := fp.HashKey()

	sightings := uint32(1)
	if pending, ok := kb.PendingAnalysis[key]; ok {
		sightings = pending.Sightings
		delete(kb.PendingAnalysis, key)
	}

	entry := KnowledgeEntry{
		Fingerprint: fp,
		DisplayName: resp.DisplayName,
		Description: resp.Description,
		Category:    resp.Category,
		GroupID:     resp.GroupHint,
		Confidence:  clampConfidence(resp.Confidence),
		Source:      source,
		Sightings:   sightings,
		UpdatedAt:   now,
	}
	kb.Entries[key] = entry
	return entry
}

// cleanupStalePending removes pending entries last seen before cutoff.
func cleanupStalePending(kb *KnowledgeBase, cutoff int64) int {
	removed := 0
	for key, pending := range kb.PendingAnalysis {
		if pending.LastSeen < cutoff {
			delete(kb.PendingAnalysis, key)
			removed++
		}
	}
	return removed
}

func clampConfidence(value float64) float64 {
	switch {
	case math.IsNaN(value):
		return 0
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
