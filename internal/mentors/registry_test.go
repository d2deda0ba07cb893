package mentors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hackmesh/hub/internal/errs"
	"github.com/hackmesh/hub/internal/projects"
	"github.com/hackmesh/hub/internal/snapshot"
)

func newTestRegistries(t *testing.T) (*Registry, *projects.Registry) {
	t.Helper()
	store, err := snapshot.Open(t.TempDir())
	require.NoError(t, err)

	pr := projects.New(store)
	require.NoError(t, pr.Start())
	t.Cleanup(pr.Stop)

	mr := New(store, pr)
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Stop)

	return mr, pr
}

func callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

// TestMentorFeedbackCrossWrite is scenario D from spec.md §8.
func TestMentorFeedbackCrossWrite(t *testing.T) {
	mr, pr := newTestRegistries(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := pr.CreateProject(ctx, "Delta", "app", projects.CategoryEducativo)
	require.NoError(t, err)

	m, err := mr.RegisterMentor(ctx, "Dr S", "IA")
	require.NoError(t, err)

	_, err = mr.SendFeedback(ctx, m.ID, "Delta", "good")
	require.NoError(t, err)

	p, err := pr.GetProject("Delta")
	require.NoError(t, err)
	require.Len(t, p.Feedback, 1)
	require.Equal(t, "Dr S", p.Feedback[0].MentorName)
}

func TestSendFeedbackUnknownMentor(t *testing.T) {
	mr, _ := newTestRegistries(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := mr.SendFeedback(ctx, "ghost", "Delta", "good")
	require.ErrorIs(t, err, errs.ErrMentorNotFound)
}

// TestSendFeedbackKeepsMentorAppendOnProjectFailure documents spec.md
// §7's partial-failure corner case: the mentor-side append is not
// rolled back when the project side fails.
func TestSendFeedbackKeepsMentorAppendOnProjectFailure(t *testing.T) {
	mr, _ := newTestRegistries(t)
	ctx, cancel := callCtx()
	defer cancel()

	m, err := mr.RegisterMentor(ctx, "Dr S", "IA")
	require.NoError(t, err)

	_, err = mr.SendFeedback(ctx, m.ID, "NoSuchTeam", "good")
	require.ErrorIs(t, err, errs.ErrProjectNotFound)

	got, err := mr.GetMentor(m.ID)
	require.NoError(t, err)
	require.Len(t, got.FeedbackGiven, 1)
}

func TestFindBySpecialtyCaseInsensitive(t *testing.T) {
	mr, _ := newTestRegistries(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := mr.RegisterMentor(ctx, "Dr S", "Machine Learning")
	require.NoError(t, err)

	found := mr.FindBySpecialty("machine learning")
	require.Len(t, found, 1)
}

func TestRegisterMentorNeverFails(t *testing.T) {
	mr, _ := newTestRegistries(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := mr.RegisterMentor(ctx, "Dr S", "IA")
	require.NoError(t, err)
	_, err = mr.RegisterMentor(ctx, "Dr S", "IA")
	require.NoError(t, err)

	require.Len(t, mr.ListMentors(), 2)
}
