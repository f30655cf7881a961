// store_test.go - Tests fuer die Run-Persistenz
package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lethe-ml/lethe/trainer"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := &Store{Path: filepath.Join(t.TempDir(), "lethe.db")}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetRun(t *testing.T) {
	s := testStore(t)

	id, err := s.CreateRun(`{"lambda":1}`)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	run, err := s.GetRun(id)
	require.NoError(t, err)
	require.Equal(t, id, run.ID)
	require.Equal(t, StatusRunning, run.Status)
	require.Equal(t, `{"lambda":1}`, run.Config)
	require.Nil(t, run.FinishedAt)
}

func TestFinishRun(t *testing.T) {
	s := testStore(t)

	id, err := s.CreateRun("")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(id, StatusFinished, 42))

	run, err := s.GetRun(id)
	require.NoError(t, err)
	require.Equal(t, StatusFinished, run.Status)
	require.Equal(t, 42, run.FinalStep)
	require.NotNil(t, run.FinishedAt)
}

func TestMetricsStream(t *testing.T) {
	s := testStore(t)

	id, err := s.CreateRun("")
	require.NoError(t, err)

	for step := 1; step <= 3; step++ {
		err := s.RecordMetrics(id, StepMetrics{
			Step:        step,
			LossUnlearn: float64(step) * 0.5,
			LossRetain:  0.01,
			ForgetProb:  1 / float64(step),
		})
		require.NoError(t, err)
	}

	got, err := s.Metrics(id)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Schritt-Reihenfolge.
	for i, m := range got {
		require.Equal(t, i+1, m.Step)
	}
	require.Equal(t, 0.5, got[0].LossUnlearn)

	// Fremde Runs bleiben getrennt.
	other, err := s.CreateRun("")
	require.NoError(t, err)
	empty, err := s.Metrics(other)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSaveAndQueryRanking(t *testing.T) {
	s := testStore(t)

	id, err := s.CreateRun("")
	require.NoError(t, err)

	entries := []RankingEntry{
		{Rank: 1, Token: 17, Score: 2.5},
		{Rank: 2, Token: 3, Score: 1.25},
		{Rank: 3, Token: 8, Score: 0.5},
	}
	require.NoError(t, s.SaveRanking(id, entries))

	got, err := s.Ranking(id, 0)
	require.NoError(t, err)
	require.Equal(t, entries, got)

	top, err := s.Ranking(id, 2)
	require.NoError(t, err)
	require.Equal(t, entries[:2], top)
}

func TestResolveRun(t *testing.T) {
	s := testStore(t)

	id, err := s.CreateRun("")
	require.NoError(t, err)

	got, err := s.ResolveRun(id[:8])
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = s.ResolveRun("nope-")
	require.Error(t, err)
}

func TestRunsNewestFirst(t *testing.T) {
	s := testStore(t)

	_, err := s.CreateRun("a")
	require.NoError(t, err)
	_, err = s.CreateRun("b")
	require.NoError(t, err)

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestSinkForPersistsMetrics(t *testing.T) {
	s := testStore(t)

	id, err := s.CreateRun("")
	require.NoError(t, err)

	sink := s.SinkFor(id)
	sink(trainer.Metrics{Step: 0, LossUnlearn: 1.5, LossRetain: 0.01, ForgetProb: 0.9})
	sink(trainer.Metrics{Step: 1, LossUnlearn: 1.2, LossRetain: 0.02, ForgetProb: 0.8})

	got, err := s.Metrics(id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 0.9, got[0].ForgetProb)
}

func TestEnsureDBRequiresPath(t *testing.T) {
	s := &Store{}
	_, err := s.CreateRun("")
	require.Error(t, err)
}
