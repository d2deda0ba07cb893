package chat

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hackmesh/hub/internal/errs"
	"github.com/hackmesh/hub/internal/snapshot"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := snapshot.Open(t.TempDir())
	require.NoError(t, err)
	s := NewLocal(store)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

func callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

func TestGeneralRoomExistsAfterStart(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := callCtx()
	defer cancel()

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{GeneralRoom}, rooms)
}

// TestChatOrdering is scenario E from spec.md §8: messages sent to a
// room in sequence come back out in the same order via History.
func TestChatOrdering(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := s.CreateRoom(ctx, "standup")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, s.SendMessage(ctx, "standup", "alice", strconv.Itoa(i)))
	}

	require.Eventually(t, func() bool {
		hist, err := s.History(ctx, "standup")
		return err == nil && len(hist) == 20
	}, time.Second, 10*time.Millisecond)

	hist, err := s.History(ctx, "standup")
	require.NoError(t, err)
	for i, m := range hist {
		require.Equal(t, strconv.Itoa(i), m.Content)
	}
}

func TestHistoryUnknownRoom(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := s.History(ctx, "ghost")
	require.ErrorIs(t, err, errs.ErrRoomNotFound)
}

func TestSendMessageToMissingRoomIsSilentlyDropped(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := callCtx()
	defer cancel()

	err := s.SendMessage(ctx, "ghost", "bob", "hi")
	require.NoError(t, err)

	_, err = s.History(ctx, "ghost")
	require.ErrorIs(t, err, errs.ErrRoomNotFound)
}

func TestCreateRoomDuplicate(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := s.CreateRoom(ctx, "standup")
	require.NoError(t, err)
	_, err = s.CreateRoom(ctx, "standup")
	require.ErrorIs(t, err, errs.ErrRoomExists)
}

func TestResetRestoresOnlyGeneral(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := callCtx()
	defer cancel()

	_, err := s.CreateRoom(ctx, "standup")
	require.NoError(t, err)
	require.NoError(t, s.SendMessage(ctx, GeneralRoom, "alice", "hi"))

	require.NoError(t, s.Reset(ctx))

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{GeneralRoom}, rooms)

	hist, err := s.History(ctx, GeneralRoom)
	require.NoError(t, err)
	require.Empty(t, hist)
}

func TestSubscribeReceivesBroadcast(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := callCtx()
	defer cancel()

	sub, err := s.Subscribe(GeneralRoom)
	require.NoError(t, err)
	defer sub.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var got Message
	go func() {
		defer wg.Done()
		v := <-sub.C()
		got = v.(Message)
	}()

	require.NoError(t, s.SendMessage(ctx, GeneralRoom, "alice", "hello"))
	wg.Wait()
	require.Equal(t, "hello", got.Content)
}

func TestClusterInfoOfLocalHolder(t *testing.T) {
	s := newTestServer(t)
	info := s.ClusterInfoOf()
	require.True(t, info.IsHolder)
	require.Equal(t, 1, info.KnownPeers)
}

