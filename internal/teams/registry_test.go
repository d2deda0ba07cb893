package teams

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hackmesh/hub/internal/errs"
	"github.com/hackmesh/hub/internal/snapshot"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := snapshot.Open(t.TempDir())
	require.NoError(t, err)
	r := New(store)
	require.NoError(t, r.Start())
	t.Cleanup(r.Stop)
	return r
}

func callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

// TestDuplicateTeam is scenario A from spec.md §8.
func TestDuplicateTeam(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := callCtx()
	defer cancel()

	team, err := r.CreateTeam(ctx, "Alpha", "AI")
	require.NoError(t, err)
	require.Equal(t, "Alpha", team.Name)

	_, err = r.CreateTeam(ctx, "Alpha", "IoT")
	require.ErrorIs(t, err, errs.ErrTeamExists)

	got, err := r.GetTeam("Alpha")
	require.NoError(t, err)
	require.Equal(t, "AI", got.Topic)
}

// TestParticipantByEmail is scenario B from spec.md §8.
func TestParticipantByEmail(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := r.CreateTeam(ctx, "Beta", "IoT")
	require.NoError(t, err)

	_, err = r.AddParticipant(ctx, "Beta", "Ana", "a@x")
	require.NoError(t, err)

	_, err = r.AddParticipant(ctx, "Beta", "Ana G", "a@x")
	require.ErrorIs(t, err, errs.ErrParticipantDuplicate)
}

func TestAddParticipantUnknownTeam(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := r.AddParticipant(ctx, "Ghost", "Ana", "a@x")
	require.ErrorIs(t, err, errs.ErrTeamNotFound)
}

// TestConcurrentCreateTeamDuplicateDetection is spec.md §8 invariant 1.
func TestConcurrentCreateTeamDuplicateDetection(t *testing.T) {
	r := newTestRegistry(t)

	const n = 50
	var wg sync.WaitGroup
	errCount := 0
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := callCtx()
			defer cancel()
			_, err := r.CreateTeam(ctx, "Contested", "x")
			if err != nil {
				mu.Lock()
				errCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, n-1, errCount)
}

func TestResetEmptiesRegistryAndSnapshot(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := r.CreateTeam(ctx, "Gamma", "x")
	require.NoError(t, err)

	require.NoError(t, r.Reset(ctx))
	require.Empty(t, r.ListTeams())

	_, err = r.GetTeam("Gamma")
	require.ErrorIs(t, err, errs.ErrTeamNotFound)

	// The snapshot was overwritten too: a fresh registry over the same
	// store boots empty.
	r2 := New(r.store)
	require.NoError(t, r2.Start())
	defer r2.Stop()
	require.Empty(t, r2.ListTeams())
}

func TestBootstrapReplayFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := snapshot.Open(dir)
	require.NoError(t, err)

	r1 := New(store)
	require.NoError(t, r1.Start())
	ctx, cancel := callCtx()
	_, err = r1.CreateTeam(ctx, "Delta", "robotics")
	cancel()
	require.NoError(t, err)
	r1.Stop()

	store2, err := snapshot.Open(dir)
	require.NoError(t, err)
	r2 := New(store2)
	require.NoError(t, r2.Start())
	defer r2.Stop()

	got, err := r2.GetTeam("Delta")
	require.NoError(t, err)
	require.Equal(t, "robotics", got.Topic)
}
