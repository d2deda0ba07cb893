package projects

import (
	"context"
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

// TestProjectLifecycle is scenario C from spec.md §8.
func TestProjectLifecycle(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := callCtx()
	defer cancel()

	p, err := r.CreateProject(ctx, "Gamma", "app", CategoryEducativo)
	require.NoError(t, err)
	require.Equal(t, StateIniciado, p.State)

	p, err = r.UpdateState(ctx, "Gamma", StateEnProgreso)
	require.NoError(t, err)
	require.Equal(t, StateEnProgreso, p.State)

	p, err = r.AppendProgress(ctx, "Gamma", "proto")
	require.NoError(t, err)
	require.Len(t, p.Progress, 1)
}

func TestCreateProjectWithoutTeamStillSucceeds(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := r.CreateProject(ctx, "NoSuchTeam", "x", CategorySocial)
	require.NoError(t, err)
}

func TestDuplicateProject(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := r.CreateProject(ctx, "Delta", "x", CategorySocial)
	require.NoError(t, err)
	_, err = r.CreateProject(ctx, "Delta", "y", CategorySocial)
	require.ErrorIs(t, err, errs.ErrProjectExists)
}

func TestUpdateStateRejectsUnknownValue(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := r.CreateProject(ctx, "Epsilon", "x", CategorySocial)
	require.NoError(t, err)

	_, err = r.UpdateState(ctx, "Epsilon", State("bogus"))
	require.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestUpdateStateUnknownProject(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := r.UpdateState(ctx, "Ghost", StateCompletado)
	require.ErrorIs(t, err, errs.ErrProjectNotFound)
}

func TestListByCategoryAndState(t *testing.T) {
	r := newTestRegistry(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := r.CreateProject(ctx, "A", "x", CategorySocial)
	require.NoError(t, err)
	_, err = r.CreateProject(ctx, "B", "y", CategoryAmbiental)
	require.NoError(t, err)
	_, err = r.UpdateState(ctx, "B", StateCompletado)
	require.NoError(t, err)

	require.Len(t, r.ListByCategory(CategorySocial), 1)
	require.Len(t, r.ListByState(StateCompletado), 1)
	require.Len(t, r.ListAll(), 2)
}
