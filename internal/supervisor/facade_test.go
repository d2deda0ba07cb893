package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hackmesh/hub/internal/projects"
	"github.com/hackmesh/hub/internal/snapshot"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	store, err := snapshot.Open(t.TempDir())
	require.NoError(t, err)

	sup := New(store, Options{})
	require.NoError(t, sup.Start())
	t.Cleanup(sup.Stop)

	return NewFacade(sup)
}

func callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

func TestFacadeCrossesMentorIntoProject(t *testing.T) {
	f := newTestFacade(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := f.CreateTeam(ctx, "Zeta", "robots")
	require.NoError(t, err)
	_, err = f.CreateProject(ctx, "Zeta", "a robot", projects.CategoryEducativo)
	require.NoError(t, err)

	m, err := f.RegisterMentor(ctx, "Dr Z", "robotics")
	require.NoError(t, err)
	_, err = f.SendFeedback(ctx, m.ID, "Zeta", "nice work")
	require.NoError(t, err)

	p, err := f.GetProject("Zeta")
	require.NoError(t, err)
	require.Len(t, p.Feedback, 1)
}

func TestFacadeChatDefaultsToGeneralRoom(t *testing.T) {
	f := newTestFacade(t)
	ctx, cancel := callCtx()
	defer cancel()

	rooms, err := f.ListRooms(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"general"}, rooms)

	require.NoError(t, f.SendMessage(ctx, "general", "alice", "hi"))
	require.Eventually(t, func() bool {
		hist, err := f.ChatHistory(ctx, "general")
		return err == nil && len(hist) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestFacadeResetAllClearsEverything(t *testing.T) {
	f := newTestFacade(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := f.CreateTeam(ctx, "Eta", "x")
	require.NoError(t, err)
	_, err = f.CreateProject(ctx, "Eta", "y", projects.CategorySocial)
	require.NoError(t, err)
	_, err = f.RegisterMentor(ctx, "Dr E", "x")
	require.NoError(t, err)

	require.NoError(t, f.ResetAll(ctx))

	require.Empty(t, f.ListTeams())
	require.Empty(t, f.ListAllProjects())
	require.Empty(t, f.ListMentors())

	rooms, err := f.ListRooms(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"general"}, rooms)
}

func TestFacadePersistAllSucceeds(t *testing.T) {
	f := newTestFacade(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := f.CreateTeam(ctx, "Theta", "x")
	require.NoError(t, err)

	require.NoError(t, f.PersistAll(ctx))

	info := f.PersistInfo()
	require.Equal(t, 1, info["teams"])
	require.Equal(t, 0, info["projects"])
	require.Equal(t, 0, info["mentors"])
	require.Equal(t, 1, info["rooms"])

	paths := f.SnapshotPaths()
	require.Contains(t, paths, "teams")
	require.Contains(t, paths, "projects")
	require.Contains(t, paths, "mentors")
}

func TestClusterInfoSingleHost(t *testing.T) {
	f := newTestFacade(t)
	info := f.ClusterInfo()
	require.True(t, info.IsHolder)
}
