package core

import (
	"fmt"
)

// Snapshot is the persisted triage document
type Snapshot struct {
	ProcessedIDs  []string       `json:"processedIds"`
	TriageRecords []TriageRecord `json:"triageRecords"`
}

// Changeset describes the writes of one committed operation
type Changeset struct {
	Added     []TriageRecord
	Rescored  map[string]int
	Processed []string
}

// Empty reports whether the changeset carries no writes
func (cs *Changeset) Empty() bool {
	return cs == nil || (len(cs.Added) == 0 && len(cs.Rescored) == 0 && len(cs.Processed) == 0)
}

// EmptySnapshot returns a snapshot with no records
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		ProcessedIDs:  []string{},
		TriageRecords: []TriageRecord{},
	}
}

// Clone returns a deep copy of the snapshot
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return EmptySnapshot()
	}
	return &Snapshot{
		ProcessedIDs:  append(make([]string, 0, len(s.ProcessedIDs)), s.ProcessedIDs...),
		TriageRecords: append(make([]TriageRecord, 0, len(s.TriageRecords)), s.TriageRecords...),
	}
}

// ProcessedSet returns the processed ids as a set
func (s *Snapshot) ProcessedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.ProcessedIDs))
	for _, id := range s.ProcessedIDs {
		set[id] = struct{}{}
	}
	return set
}

// Find returns the record with the given id
func (s *Snapshot) Find(id string) (TriageRecord, bool) {
	for _, r := range s.TriageRecords {
		if r.ID == id {
			return r, true
		}
	}
	return TriageRecord{}, false
}

// Validate checks that every processed id has exactly one record and vice versa
func (s *Snapshot) Validate() error {
	ids := make(map[string]struct{}, len(s.ProcessedIDs))
	for _, id := range s.ProcessedIDs {
		if _, dup := ids[id]; dup {
			return fmt.Errorf("duplicate processed id %q", id)
		}
		ids[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(s.TriageRecords))
	for _, r := range s.TriageRecords {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate triage record %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if _, ok := ids[r.ID]; !ok {
			return fmt.Errorf("triage record %q has no processed id", r.ID)
		}
	}
	if len(ids) != len(seen) {
		return fmt.Errorf("%d processed ids but %d triage records", len(ids), len(seen))
	}
	return nil
}

// Apply returns a new snapshot with the changeset applied. The receiver is not modified.
func (s *Snapshot) Apply(cs *Changeset) (*Snapshot, error) {
	next := s.Clone()
	if cs.Empty() {
		return next, nil
	}

	index := make(map[string]int, len(next.TriageRecords))
	for i, r := range next.TriageRecords {
		index[r.ID] = i
	}

	for _, r := range cs.Added {
		if _, exists := index[r.ID]; exists {
			return nil, fmt.Errorf("record %q already exists", r.ID)
		}
		index[r.ID] = len(next.TriageRecords)
		next.ProcessedIDs = append(next.ProcessedIDs, r.ID)
		next.TriageRecords = append(next.TriageRecords, r)
	}

	for id, score := range cs.Rescored {
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("cannot rescore unknown record %q", id)
		}
		next.TriageRecords[i].ImportanceScore = score
	}

	for _, id := range cs.Processed {
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("cannot mark unknown record %q", id)
		}
		next.TriageRecords[i].Processed = true
	}

	return next, nil
}
