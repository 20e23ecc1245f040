package history

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	start := time.Now().Add(-time.Second)
	require.NoError(t, s.Record(ctx, Entry{
		BuildID: "b1", Kind: "full", Outcome: "success",
		Started: start, Finished: start.Add(200 * time.Millisecond),
		Created: 5, Updated: 0, Skipped: 1, Failed: 0,
		Report: json.RawMessage(`{"pages":5}`),
	}))
	require.NoError(t, s.Record(ctx, Entry{
		BuildID: "b2", Kind: "incremental", Outcome: "failed",
		Started: start.Add(time.Second), Finished: start.Add(2 * time.Second),
		Failed: 1,
	}))

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "b2", got[0].BuildID, "newest first")
	require.Equal(t, "failed", got[0].Outcome)
	require.Equal(t, "b1", got[1].BuildID)
	require.Equal(t, 5, got[1].Created)
	require.JSONEq(t, `{"pages":5}`, string(got[1].Report))
}

func TestRecent_LimitAndDefault(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, s.Record(ctx, Entry{BuildID: "b", Kind: "full", Outcome: "success"}))
	}

	got, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)

	got, err = s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 20, "default limit")
}
