package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NickCassab/email-buddy/internal/core"
)

func record(id string, score int) core.TriageRecord {
	return core.TriageRecord{
		ID:              id,
		ThreadID:        "thread-" + id,
		Sender:          id + "@example.com",
		Subject:         "subject " + id,
		Date:            "Mon, 2 Jan 2006 15:04:05 -0700",
		Snippet:         "snippet " + id,
		ImportanceScore: score,
		IdentifiedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func assertSameRecord(t *testing.T, want, got core.TriageRecord) {
	t.Helper()
	assert.True(t, want.IdentifiedAt.Equal(got.IdentifiedAt), "identified_at %v != %v", want.IdentifiedAt, got.IdentifiedAt)
	want.IdentifiedAt, got.IdentifiedAt = time.Time{}, time.Time{}
	assert.Equal(t, want, got)
}

// testStoreContract exercises the behavior every TriageStore must share
func testStoreContract(t *testing.T, s core.TriageStore) {
	ctx := context.Background()

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.TriageRecords)
	assert.Empty(t, snap.ProcessedIDs)

	require.NoError(t, s.Apply(ctx, &core.Changeset{Added: []core.TriageRecord{record("a", 3), record("b", 7)}}))
	require.NoError(t, s.Apply(ctx, &core.Changeset{Added: []core.TriageRecord{record("c", 1)}}))

	snap, err = s.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, snap.Validate())
	assert.Equal(t, []string{"a", "b", "c"}, snap.ProcessedIDs)
	require.Len(t, snap.TriageRecords, 3)
	assertSameRecord(t, record("b", 7), snap.TriageRecords[1])

	require.NoError(t, s.Apply(ctx, &core.Changeset{
		Rescored:  map[string]int{"a": 10},
		Processed: []string{"c"},
	}))

	snap, err = s.Load(ctx)
	require.NoError(t, err)
	a, ok := snap.Find("a")
	require.True(t, ok)
	assert.Equal(t, 10, a.ImportanceScore)
	assert.False(t, a.Processed)
	assert.True(t, a.IdentifiedAt.Equal(record("a", 0).IdentifiedAt))
	c, ok := snap.Find("c")
	require.True(t, ok)
	assert.True(t, c.Processed)

	// A duplicate in the batch must reject the whole batch
	err = s.Apply(ctx, &core.Changeset{Added: []core.TriageRecord{record("d", 1), record("a", 1)}})
	require.Error(t, err)

	snap, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.TriageRecords, 3)
	_, ok = snap.Find("d")
	assert.False(t, ok)

	// Unknown ids reject the whole batch
	err = s.Apply(ctx, &core.Changeset{Rescored: map[string]int{"missing": 4}})
	require.Error(t, err)
	err = s.Apply(ctx, &core.Changeset{Processed: []string{"b", "missing"}})
	require.Error(t, err)

	snap, err = s.Load(ctx)
	require.NoError(t, err)
	b, ok := snap.Find("b")
	require.True(t, ok)
	assert.False(t, b.Processed)

	// Loaded snapshots are private copies
	snap.TriageRecords[0].ImportanceScore = 99
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, again.TriageRecords[0].ImportanceScore)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	defer s.Close()
	testStoreContract(t, s)
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "email_data.json"), zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	testStoreContract(t, s)
}

func TestFileStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "email_data.json")

	s, err := NewFileStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Apply(ctx, &core.Changeset{Added: []core.TriageRecord{record("a", 3)}}))

	reopened, err := NewFileStore(path, zap.NewNop())
	require.NoError(t, err)
	snap, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.TriageRecords, 1)
	assertSameRecord(t, record("a", 3), snap.TriageRecords[0])

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temporary files must not be left behind")
}

func TestFileStoreFailedWriteKeepsPriorSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	path := filepath.Join(dir, "email_data.json")

	s, err := NewFileStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Apply(ctx, &core.Changeset{Added: []core.TriageRecord{record("a", 3)}}))

	// Removing the directory makes the next commit fail
	require.NoError(t, os.RemoveAll(dir))

	err = s.Apply(ctx, &core.Changeset{Added: []core.TriageRecord{record("b", 1)}})
	require.Error(t, err)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, snap.ProcessedIDs)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "email_data.json")

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := NewFileStore(path, zap.NewNop())
	assert.ErrorIs(t, err, ErrSnapshotCorrupt)

	inconsistent := `{"processedIds":["a","b"],"triageRecords":[{"id":"a","importance_score":1}]}`
	require.NoError(t, os.WriteFile(path, []byte(inconsistent), 0o600))
	_, err = NewFileStore(path, zap.NewNop())
	assert.ErrorIs(t, err, ErrSnapshotCorrupt)
}

func TestFileStoreReadsDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "email_data.json")
	doc := `{
  "processedIds": ["m1"],
  "triageRecords": [{
    "id": "m1", "threadId": "t1", "sender": "boss@example.com", "subject": "Urgent",
    "date": "Tue, 1 Oct 2024 09:00:00 +0000", "snippet": "hi", "processed": false,
    "importance_score": 11, "identified_at": "2024-10-01T09:05:00Z"
  }]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, err := NewFileStore(path, zap.NewNop())
	require.NoError(t, err)
	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.TriageRecords, 1)
	assert.Equal(t, 11, snap.TriageRecords[0].ImportanceScore)
	assert.Equal(t, "t1", snap.TriageRecords[0].ThreadID)
}

func TestFileStoreReadsOlderLayout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "email_data.json")
	doc := `{
  "important_emails": [
    {"id": "m1", "threadId": "t1", "sender": "boss@example.com", "subject": "Urgent",
     "date": "Tue, 1 Oct 2024 09:00:00 +0000", "snippet": "hi", "processed": true,
     "importance_score": 11, "identified_at": "2024-10-01T09:05:00.123456"},
    {"id": "m2", "threadId": "t2", "sender": "a@example.com", "subject": "lunch",
     "date": "Tue, 1 Oct 2024 10:00:00 +0000", "snippet": "", "processed": false,
     "importance_score": 2, "identified_at": "2024-10-01T10:00:00"}
  ],
  "processed_ids": ["m1", "m2", "m3"]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, err := NewFileStore(path, zap.NewNop())
	require.NoError(t, err)
	snap, err := s.Load(ctx)
	require.NoError(t, err)

	// m3 has no record and is fetched again on the next ingestion
	assert.Equal(t, []string{"m1", "m2"}, snap.ProcessedIDs)
	m1, ok := snap.Find("m1")
	require.True(t, ok)
	assert.True(t, m1.Processed)
	assert.Equal(t, 11, m1.ImportanceScore)
	want := time.Date(2024, 10, 1, 9, 5, 0, 123456000, time.Local)
	assert.True(t, want.Equal(m1.IdentifiedAt), "identified_at %v != %v", want, m1.IdentifiedAt)

	// The next commit rewrites the file in the current layout
	require.NoError(t, s.Apply(ctx, &core.Changeset{Processed: []string{"m2"}}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"processedIds"`)
	assert.NotContains(t, string(data), `"important_emails"`)
}

func TestFileStoreSharedBetweenProcesses(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "email_data.json")

	daemon, err := NewFileStore(path, zap.NewNop())
	require.NoError(t, err)
	cli, err := NewFileStore(path, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, daemon.Apply(ctx, &core.Changeset{Added: []core.TriageRecord{record("a", 3)}}))
	require.NoError(t, cli.Apply(ctx, &core.Changeset{Added: []core.TriageRecord{record("b", 4)}}))
	require.NoError(t, cli.Apply(ctx, &core.Changeset{Processed: []string{"a"}}))

	// Each store sees the other's commits
	snap, err := daemon.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, snap.ProcessedIDs)
	a, _ := snap.Find("a")
	assert.True(t, a.Processed)

	// A record added elsewhere cannot be added twice
	err = daemon.Apply(ctx, &core.Changeset{Added: []core.TriageRecord{record("b", 9)}})
	require.Error(t, err)

	reopened, err := NewFileStore(path, zap.NewNop())
	require.NoError(t, err)
	snap, err = reopened.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, snap.Validate())
	assert.Equal(t, []string{"a", "b"}, snap.ProcessedIDs)
	b, _ := snap.Find("b")
	assert.Equal(t, 4, b.ImportanceScore)
}

func TestFileStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "email_data.json")

	stores := make([]*FileStore, 4)
	for i := range stores {
		s, err := NewFileStore(path, zap.NewNop())
		require.NoError(t, err)
		stores[i] = s
	}

	var wg sync.WaitGroup
	for i, s := range stores {
		wg.Add(1)
		go func(i int, s *FileStore) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				id := fmt.Sprintf("s%d-%d", i, j)
				assert.NoError(t, s.Apply(ctx, &core.Changeset{Added: []core.TriageRecord{record(id, j)}}))
			}
		}(i, s)
	}
	wg.Wait()

	snap, err := stores[0].Load(ctx)
	require.NoError(t, err)
	require.NoError(t, snap.Validate())
	assert.Len(t, snap.ProcessedIDs, 20)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "email_buddy.db"), zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	testStoreContract(t, s)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "email_buddy.db")

	s, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Apply(ctx, &core.Changeset{Added: []core.TriageRecord{record("a", 3), record("b", 4)}}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	snap, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, snap.ProcessedIDs)
}

func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("EMAIL_BUDDY_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("EMAIL_BUDDY_TEST_MYSQL_DSN not set, skipping integration test")
	}
	s, err := NewMySQLStore(dsn, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	_, err = s.db.Exec(`DELETE FROM triage_records`)
	require.NoError(t, err)
	testStoreContract(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("EMAIL_BUDDY_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("EMAIL_BUDDY_TEST_POSTGRES_URL not set, skipping integration test")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	_, err = s.pool.Exec(ctx, `DELETE FROM triage_records`)
	require.NoError(t, err)
	testStoreContract(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("EMAIL_BUDDY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EMAIL_BUDDY_TEST_REDIS_ADDR not set, skipping integration test")
	}
	ctx := context.Background()
	key := fmt.Sprintf("email_buddy:test:%d", time.Now().UnixNano())
	s, err := NewRedisStore(ctx, &redis.Options{Addr: addr}, key, zap.NewNop())
	require.NoError(t, err)
	defer func() {
		s.client.Del(ctx, key)
		s.Close()
	}()
	testStoreContract(t, s)
}
