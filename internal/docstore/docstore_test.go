package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/levoit/visibilitypipeline/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutAndGetSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snap := models.Snapshot{
		Platform: models.PlatformChatGPT, QueryText: "q1", RawContent: "<p>hi</p>",
		ContentHash: "abc123", ScrapedAt: time.Now().UTC(),
	}
	stored, err := s.PutSnapshot(ctx, snap)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	fetched, err := s.GetSnapshot(ctx, stored.ID)
	require.NoError(t, err)
	require.Equal(t, stored.ID, fetched.ID)
	require.Equal(t, "abc123", fetched.ContentHash)
}

func TestGetSnapshotNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetSnapshot(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotIDByContentHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.SnapshotIDByContentHash(ctx, "nope")
	require.NoError(t, err)
	require.False(t, found)

	stored, err := s.PutSnapshot(ctx, models.Snapshot{ContentHash: "dup-hash", ScrapedAt: time.Now().UTC()})
	require.NoError(t, err)

	id, found, err := s.SnapshotIDByContentHash(ctx, "dup-hash")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, stored.ID, id)
}

func TestPutAndListQuarantine(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := models.QuarantineRecord{Platform: models.PlatformGoogleAI, QueryID: "q2", ErrorKind: "empty_content", Timestamp: time.Now().UTC()}
	stored, err := s.PutQuarantine(ctx, rec)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	records, err := s.ListQuarantine(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "empty_content", records[0].ErrorKind)
}

func TestListQuarantineEmptyWhenNoneStored(t *testing.T) {
	s := openTestStore(t)
	records, err := s.ListQuarantine(context.Background())
	require.NoError(t, err)
	require.Empty(t, records)
}
