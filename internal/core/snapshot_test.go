package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickCassab/email-buddy/internal/core"
)

func seeded() *core.Snapshot {
	return &core.Snapshot{
		ProcessedIDs: []string{"a", "b"},
		TriageRecords: []core.TriageRecord{
			{ID: "a", ImportanceScore: 1},
			{ID: "b", ImportanceScore: 2},
		},
	}
}

func TestSnapshotApply(t *testing.T) {
	snap := seeded()

	next, err := snap.Apply(&core.Changeset{
		Added:     []core.TriageRecord{{ID: "c", ImportanceScore: 3}},
		Rescored:  map[string]int{"a": 10},
		Processed: []string{"b"},
	})
	require.NoError(t, err)
	require.NoError(t, next.Validate())

	assert.Equal(t, []string{"a", "b", "c"}, next.ProcessedIDs)
	a, _ := next.Find("a")
	assert.Equal(t, 10, a.ImportanceScore)
	b, _ := next.Find("b")
	assert.True(t, b.Processed)

	// receiver untouched
	assert.Len(t, snap.TriageRecords, 2)
	orig, _ := snap.Find("a")
	assert.Equal(t, 1, orig.ImportanceScore)
}

func TestSnapshotApplyRejectsInvalidChanges(t *testing.T) {
	snap := seeded()

	_, err := snap.Apply(&core.Changeset{Added: []core.TriageRecord{{ID: "a"}}})
	assert.Error(t, err)

	_, err = snap.Apply(&core.Changeset{Rescored: map[string]int{"zzz": 1}})
	assert.Error(t, err)

	_, err = snap.Apply(&core.Changeset{Processed: []string{"zzz"}})
	assert.Error(t, err)
}

func TestSnapshotApplyEmptyChangeset(t *testing.T) {
	next, err := seeded().Apply(nil)
	require.NoError(t, err)
	assert.Equal(t, seeded(), next)
	assert.True(t, (&core.Changeset{Rescored: map[string]int{}}).Empty())
}

func TestSnapshotValidate(t *testing.T) {
	assert.NoError(t, core.EmptySnapshot().Validate())
	assert.NoError(t, seeded().Validate())

	tests := map[string]*core.Snapshot{
		"duplicate id": {
			ProcessedIDs:  []string{"a", "a"},
			TriageRecords: []core.TriageRecord{{ID: "a"}},
		},
		"duplicate record": {
			ProcessedIDs:  []string{"a"},
			TriageRecords: []core.TriageRecord{{ID: "a"}, {ID: "a"}},
		},
		"record without id": {
			ProcessedIDs:  []string{"a"},
			TriageRecords: []core.TriageRecord{{ID: "b"}},
		},
		"id without record": {
			ProcessedIDs:  []string{"a", "b"},
			TriageRecords: []core.TriageRecord{{ID: "a"}},
		},
	}
	for name, snap := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, snap.Validate())
		})
	}
}

func TestSnapshotClone(t *testing.T) {
	snap := seeded()
	clone := snap.Clone()
	clone.TriageRecords[0].ImportanceScore = 99
	clone.ProcessedIDs[0] = "x"

	assert.Equal(t, 1, snap.TriageRecords[0].ImportanceScore)
	assert.Equal(t, "a", snap.ProcessedIDs[0])

	var nilSnap *core.Snapshot
	assert.Equal(t, core.EmptySnapshot(), nilSnap.Clone())
}
