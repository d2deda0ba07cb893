package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hackmesh/hub/internal/snapshot"
	"github.com/hackmesh/hub/internal/supervisor"
)

// TestLoadHarnessScenarioF is scenario F from spec.md §8, scaled down
// from N=100/M=10/K=10 so the test suite stays fast; the invariant
// checked is identical in shape.
func TestLoadHarnessScenarioF(t *testing.T) {
	store, err := snapshot.Open(t.TempDir())
	require.NoError(t, err)

	sup := supervisor.New(store, supervisor.Options{})
	require.NoError(t, sup.Start())
	t.Cleanup(sup.Stop)

	facade := supervisor.NewFacade(sup)

	cfg := Config{
		Teams:               10,
		ParticipantsPerTeam: 5,
		MessagesPerTeam:     5,
		Concurrency:         8,
		TaskTimeout:         5 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := Run(ctx, facade, cfg)
	require.NoError(t, err)

	require.Len(t, facade.ListTeams(), cfg.Teams)
	require.Len(t, facade.ListAllProjects(), cfg.Teams)

	totalParticipants := 0
	for _, team := range facade.ListTeams() {
		totalParticipants += len(team.Participants)
	}
	require.Equal(t, cfg.Teams*cfg.ParticipantsPerTeam, totalParticipants)

	// send_message is a cast (spec.md §6): the harness returning does
	// not guarantee every append has drained from the chat kernel yet.
	require.Eventually(t, func() bool {
		hist, err := facade.ChatHistory(ctx, "harness")
		return err == nil && len(hist) == cfg.Teams*cfg.MessagesPerTeam
	}, 5*time.Second, 20*time.Millisecond)

	for _, p := range report.Phases {
		require.Zero(t, p.Errors, "phase %s had errors", p.Name)
	}
}

func TestDefaultConfigMatchesSpecScenarioF(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 100, cfg.Teams)
	require.Equal(t, 10, cfg.ParticipantsPerTeam)
	require.Equal(t, 10, cfg.MessagesPerTeam)
}
