package transcript

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudosu-ai/sudosu/pkg/stream"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Path:   filepath.Join(t.TempDir(), "transcripts.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func finishedTurn(id string, state stream.TurnState, started time.Time) *stream.Turn {
	return &stream.Turn{
		ID:        id,
		Agent:     "writer",
		State:     state,
		StartedAt: started,
		EndedAt:   started.Add(2 * time.Second),
		Deltas:    3,
		ToolCalls: 1,
	}
}

func TestRecordAndStats(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.Record("s1", finishedTurn("t1", stream.TurnCompleted, now.Add(-time.Hour))))
	require.NoError(t, s.Record("s1", finishedTurn("t2", stream.TurnErrored, now)))
	require.NoError(t, s.Record("s2", finishedTurn("t3", stream.TurnCancelled, now)))

	st, err := s.SessionStats("s1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Turns)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.Errored)
	assert.Equal(t, 0, st.Cancelled)
	assert.Equal(t, 6, st.Deltas)
	assert.Equal(t, 2, st.ToolCalls)

	total, err := s.TotalStats()
	require.NoError(t, err)
	assert.Equal(t, 3, total.Turns)
	assert.Equal(t, 1, total.Cancelled)
}

func TestRecord_RejectsNonTerminalTurn(t *testing.T) {
	s := newTestStore(t)

	err := s.Record("s1", &stream.Turn{ID: "t1", State: stream.TurnStreaming})
	require.Error(t, err)

	err = s.Record("s1", nil)
	require.Error(t, err)
}

func TestRecord_DuplicateTurnID(t *testing.T) {
	s := newTestStore(t)
	turn := finishedTurn("t1", stream.TurnCompleted, time.Now())

	require.NoError(t, s.Record("s1", turn))
	require.Error(t, s.Record("s1", turn))
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.Record("s1", finishedTurn("old", stream.TurnCompleted, now.Add(-48*time.Hour))))
	require.NoError(t, s.Record("s1", finishedTurn("new", stream.TurnCompleted, now)))

	pruned, err := s.Prune(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	st, err := s.TotalStats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Turns)
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record("s1", finishedTurn("t1", stream.TurnCompleted, time.Now())))

	require.NoError(t, s.Clear())

	st, err := s.TotalStats()
	require.NoError(t, err)
	assert.Zero(t, st.Turns)
}

func TestOpen_InvalidSchedule(t *testing.T) {
	_, err := Open(Config{
		Path:          filepath.Join(t.TempDir(), "transcripts.db"),
		RetentionDays: 7,
		PruneSchedule: "not a cron expr",
		Logger:        zerolog.Nop(),
	})
	require.Error(t, err)
}

func TestOpen_WithSchedule(t *testing.T) {
	s, err := Open(Config{
		Path:          filepath.Join(t.TempDir(), "transcripts.db"),
		RetentionDays: 7,
		PruneSchedule: "@daily",
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
