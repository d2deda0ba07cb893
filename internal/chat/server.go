// Package chat implements the Chat Server (spec.md §4.5): a global
// singleton holding rooms of newest-first message history, pub/sub
// broadcast per room, and transparent dispatch from non-holder nodes.
//
// Local room state and its kernel mirror the Team/Project/Mentor
// registries; what's new here relative to them is the election and
// remote-dispatch layer in election.go and remote.go, which decide
// whether a given call is served by this process's Kernel directly or
// forwarded to whichever node currently holds the singleton.
package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hackmesh/hub/internal/common/ids"
	"github.com/hackmesh/hub/internal/common/logging"
	"github.com/hackmesh/hub/internal/common/pubsub"
	"github.com/hackmesh/hub/internal/errs"
	"github.com/hackmesh/hub/internal/kernel"
	"github.com/hackmesh/hub/internal/snapshot"
)

// GeneralRoom is the room guaranteed to exist after start and after
// reset (spec.md §3 invariant 6).
const GeneralRoom = "general"

// Message is one immutable chat message.
type Message struct {
	ID        string    `cbor:"id"`
	Author    string    `cbor:"author"`
	Content   string    `cbor:"content"`
	Room      string    `cbor:"room"`
	Timestamp time.Time `cbor:"timestamp"`
}

const indexFile = "chat/index.etf"

func roomFile(room string) string { return "chat/" + room + ".etf" }

const (
	tagCreateRoom  = "create_room"
	tagSendMessage = "send_message"
	tagReset       = "reset"
	tagPersist     = "persist"
)

type sendMessageArgs struct {
	room    string
	author  string
	content string
}

type roomState struct {
	messages []Message // newest-first
	broker   *pubsub.Broker
}

// Server is the in-process chat engine. It is always constructed (one
// per node) but only the elected holder's Server actually serves
// local state; a non-holder Server forwards every call via its
// Dispatcher.
type Server struct {
	logger *logging.Logger
	store  *snapshot.Store
	kernel *kernel.Kernel

	mu    sync.RWMutex
	rooms map[string]*roomState

	elector    Elector
	dispatcher Dispatcher
}

// NewLocal constructs a Server that is always the local holder — the
// "single-host build" degeneration spec.md §9 describes.
func NewLocal(store *snapshot.Store) *Server {
	return newServer(store, alwaysLocal{}, nil)
}

// NewClustered constructs a Server that participates in singleton
// election via elector and forwards non-local calls via dispatcher.
func NewClustered(store *snapshot.Store, elector Elector, dispatcher Dispatcher) *Server {
	return newServer(store, elector, dispatcher)
}

func newServer(store *snapshot.Store, elector Elector, dispatcher Dispatcher) *Server {
	s := &Server{
		logger:     logging.GetLogger("chat"),
		store:      store,
		rooms:      make(map[string]*roomState),
		elector:    elector,
		dispatcher: dispatcher,
	}
	s.kernel = kernel.New("chat", s.apply)
	return s
}

// Start runs bootstrap replay (only meaningful if this node ends up
// holding the singleton) and starts the local worker. Supervisor.Start
// calls it on every node, holder or not; it does not consult the
// election first. On a non-holder the local worker receives no
// requests, since every public operation is forwarded to the holder.
func (s *Server) Start() error {
	return s.kernel.Start(s.load)
}

// Stop terminates the local worker.
func (s *Server) Stop() {
	s.kernel.Stop()
}

// Done is closed when the local worker goroutine exits.
func (s *Server) Done() <-chan struct{} {
	return s.kernel.Done()
}

func (s *Server) load() error {
	var roomNames []string
	if err := s.store.ReadListOrEmpty(indexFile, &roomNames); err != nil {
		return err
	}

	// Fold in any chat/<room>.etf files that exist without a matching
	// index entry — e.g. an index write raced a crash.
	onDisk, _ := s.store.ListRoomFiles()
	seen := make(map[string]bool, len(roomNames))
	for _, n := range roomNames {
		seen[n] = true
	}
	for _, n := range onDisk {
		if !seen[n] {
			roomNames = append(roomNames, n)
			seen[n] = true
		}
	}

	s.rooms = make(map[string]*roomState, len(roomNames)+1)
	for _, name := range roomNames {
		var messages []Message
		if err := s.store.ReadListOrEmpty(roomFile(name), &messages); err != nil {
			return err
		}
		s.rooms[name] = &roomState{messages: messages, broker: pubsub.NewBroker(false)}
	}
	if _, ok := s.rooms[GeneralRoom]; !ok {
		s.rooms[GeneralRoom] = &roomState{broker: pubsub.NewBroker(false)}
	}
	return s.persistIndexLocked()
}

func (s *Server) persistIndexLocked() error {
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return s.store.WriteAtomic(indexFile, names)
}

func (s *Server) persistRoomLocked(name string) {
	if err := s.store.WriteAtomic(roomFile(name), s.rooms[name].messages); err != nil {
		s.logger.Error("chat: snapshot write failed", "room", name, "err", err)
	}
}

func (s *Server) apply(tag string, args interface{}) (interface{}, error) {
	switch tag {
	case tagCreateRoom:
		name := args.(string)
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, exists := s.rooms[name]; exists {
			return nil, errs.ErrRoomExists
		}
		s.rooms[name] = &roomState{broker: pubsub.NewBroker(false)}
		if err := s.persistIndexLocked(); err != nil {
			s.logger.Error("chat: index write failed", "err", err)
		}
		s.persistRoomLocked(name)
		return name, nil

	case tagSendMessage:
		a := args.(sendMessageArgs)
		s.mu.Lock()
		rs, ok := s.rooms[a.room]
		if !ok {
			s.mu.Unlock()
			s.logger.Warn("chat: send_message to missing room, dropped", "room", a.room)
			return nil, nil
		}
		msg := Message{
			ID:        ids.New(),
			Author:    a.author,
			Content:   a.content,
			Room:      a.room,
			Timestamp: time.Now().UTC(),
		}
		rs.messages = append([]Message{msg}, rs.messages...)
		s.persistRoomLocked(a.room)
		broker := rs.broker
		s.mu.Unlock()

		// Broadcast happens-after the append to history (spec.md §5(d)).
		broker.Broadcast(msg)
		return msg, nil

	case tagReset:
		s.mu.Lock()
		defer s.mu.Unlock()
		s.rooms = map[string]*roomState{GeneralRoom: {broker: pubsub.NewBroker(false)}}
		if err := s.persistIndexLocked(); err != nil {
			s.logger.Error("chat: index write failed", "err", err)
		}
		s.persistRoomLocked(GeneralRoom)
		return nil, nil

	case tagPersist:
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.persistIndexLocked(); err != nil {
			s.logger.Error("chat: index write failed", "err", err)
		}
		for name := range s.rooms {
			s.persistRoomLocked(name)
		}
		return nil, nil

	default:
		panic("chat: unknown tag " + tag)
	}
}

// CreateRoom creates a room, transparently dispatched to the global
// holder. Returns errs.ErrRoomExists if already present, or
// errs.ErrChatUnavailable if no holder can currently be resolved.
func (s *Server) CreateRoom(ctx context.Context, name string) (string, error) {
	v, err := s.call(ctx, tagCreateRoom, name)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// SendMessage is the sole cast operation in the public API (spec.md
// §6): fire-and-forget once dispatched. The returned error reflects
// only whether the cast could be handed to the holder (locally
// enqueued, or successfully forwarded) — not whether the room
// existed, since a missing room is a silent drop by design.
func (s *Server) SendMessage(ctx context.Context, room, author, content string) error {
	if s.elector.IsLocalHolder() {
		s.kernel.Cast(tagSendMessage, sendMessageArgs{room: room, author: author, content: content})
		return nil
	}
	holder, ok := s.elector.CurrentHolder()
	if !ok || s.dispatcher == nil {
		return errs.ErrChatUnavailable
	}
	return s.dispatcher.Cast(ctx, holder, tagSendMessage, sendMessageArgs{room: room, author: author, content: content})
}

// History returns room's messages oldest-first (storage order is
// newest-first; this reverses it), per spec.md §4.5.
func (s *Server) History(ctx context.Context, room string) ([]Message, error) {
	v, err := s.call(ctx, "history", room)
	if err != nil {
		return nil, err
	}
	return v.([]Message), nil
}

func (s *Server) historyLocal(room string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.rooms[room]
	if !ok {
		return nil, errs.ErrRoomNotFound
	}
	out := make([]Message, len(rs.messages))
	for i, m := range rs.messages {
		out[len(rs.messages)-1-i] = m
	}
	return out, nil
}

// ListRooms lists every room name, transparently dispatched.
func (s *Server) ListRooms(ctx context.Context) ([]string, error) {
	v, err := s.call(ctx, "list_rooms", nil)
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (s *Server) listRoomsLocal() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Subscription is a live handle on a room's new-message broadcasts.
type Subscription struct {
	sub *pubsub.Subscription
}

// C returns the channel new chat.Message values arrive on.
func (s *Subscription) C() <-chan interface{} { return s.sub.C() }

// Close ends the subscription.
func (s *Subscription) Close() { s.sub.Close() }

// Subscribe attaches a live subscriber to room's broadcasts. Only
// served when this node is the current holder — a non-holder node
// does not relay a remote holder's broadcasts and returns
// errs.ErrChatUnavailable instead.
func (s *Server) Subscribe(room string) (*Subscription, error) {
	if !s.elector.IsLocalHolder() {
		return nil, errs.ErrChatUnavailable
	}
	s.mu.RLock()
	rs, ok := s.rooms[room]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.ErrRoomNotFound
	}
	return &Subscription{sub: rs.broker.Subscribe()}, nil
}

// Reset restores rooms to exactly {"general"} with empty history,
// transparently dispatched.
func (s *Server) Reset(ctx context.Context) error {
	_, err := s.call(ctx, tagReset, nil)
	return err
}

// Persist forces a rewrite of every room's snapshot file, transparently
// dispatched to the current holder.
func (s *Server) Persist(ctx context.Context) error {
	_, err := s.call(ctx, tagPersist, nil)
	return err
}

// ClusterInfo reports this node's view of election state.
type ClusterInfo struct {
	IsHolder   bool
	HolderID   string
	KnownPeers int
}

// RoomCount returns the number of rooms this node's local state holds.
// Like ClusterInfoOf, it never dispatches remotely — on a non-holder
// node it reports the size of that node's own local room map (loaded
// from its snapshot directory at Start, so at least 1 for "general"),
// not the live singleton's room count.
func (s *Server) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// ClusterInfoOf returns this node's current election view; it never
// dispatches remotely, since it describes the local node's own
// perspective on the cluster.
func (s *Server) ClusterInfoOf() ClusterInfo {
	holder, ok := s.elector.CurrentHolder()
	info := ClusterInfo{IsHolder: s.elector.IsLocalHolder(), KnownPeers: s.elector.KnownPeerCount()}
	if ok {
		info.HolderID = holder.ID
	}
	return info
}

// call resolves the current holder and either serves tag/args locally
// or forwards it, returning errs.ErrChatUnavailable immediately
// (never blocking on election) when no holder can be resolved.
func (s *Server) call(ctx context.Context, tag string, args interface{}) (interface{}, error) {
	if s.elector.IsLocalHolder() {
		switch tag {
		case "history":
			return s.historyLocal(args.(string))
		case "list_rooms":
			return s.listRoomsLocal(), nil
		default:
			return s.kernel.Call(ctx, tag, args)
		}
	}

	holder, ok := s.elector.CurrentHolder()
	if !ok || s.dispatcher == nil {
		return nil, errs.ErrChatUnavailable
	}
	return s.dispatcher.Call(ctx, holder, tag, args)
}
