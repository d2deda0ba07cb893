package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/hackmesh/hub/internal/common/logging"
)

// HolderInfo names the node currently holding the Chat Server
// singleton. ID is the libp2p peer ID string in the clustered case, or
// empty for the degenerate single-host elector.
type HolderInfo struct {
	ID     string
	PeerID peer.ID
}

// Elector answers who currently holds the Chat Server singleton.
// LocalElector and ClusterElector are the two implementations; a
// non-holder node never serves chat locally and instead dispatches
// through a Dispatcher (remote.go).
type Elector interface {
	IsLocalHolder() bool
	CurrentHolder() (HolderInfo, bool)
	KnownPeerCount() int
}

// alwaysLocal is the single-host degeneration spec.md §9 names: "a
// single-host build can treat its own node as the permanent holder".
type alwaysLocal struct{}

func (alwaysLocal) IsLocalHolder() bool               { return true }
func (alwaysLocal) CurrentHolder() (HolderInfo, bool) { return HolderInfo{}, true }
func (alwaysLocal) KnownPeerCount() int               { return 1 }

const electionTopic = "/hackmesh/chat-election/1.0.0"
const heartbeatInterval = 2 * time.Second
const peerExpiry = 3 * heartbeatInterval

// ClusterElector runs a GossipSub-based heartbeat over electionTopic
// and elects the lexicographically-smallest live peer ID as the
// singleton holder (spec.md §9's suggested rule). Every node that sees
// a live peer with a smaller ID defers to it; a node whose own ID is
// smallest is the holder.
type ClusterElector struct {
	logger *logging.Logger
	host   host.Host
	topic  *pubsub.Topic
	selfID peer.ID

	mu      sync.RWMutex
	lastSeen map[peer.ID]time.Time

	cancel context.CancelFunc
}

// NewClusterElector joins electionTopic on h and starts heartbeating
// and pruning peers in the background. Call Close to stop.
func NewClusterElector(ctx context.Context, h host.Host) (*ClusterElector, error) {
	gossip, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}
	topic, err := gossip.Join(electionTopic)
	if err != nil {
		return nil, err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e := &ClusterElector{
		logger:   logging.GetLogger("chat.election"),
		host:     h,
		topic:    topic,
		selfID:   h.ID(),
		lastSeen: map[peer.ID]time.Time{h.ID(): time.Now()},
		cancel:   cancel,
	}

	go e.heartbeatLoop(runCtx)
	go e.receiveLoop(runCtx, sub)
	return e, nil
}

func (e *ClusterElector) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.topic.Publish(ctx, []byte(e.selfID.String())); err != nil {
				e.logger.Warn("chat: election heartbeat publish failed", "err", err)
			}
			e.prune()
		}
	}
}

func (e *ClusterElector) receiveLoop(ctx context.Context, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		id, err := peer.Decode(string(msg.Data))
		if err != nil {
			continue
		}
		e.mu.Lock()
		e.lastSeen[id] = time.Now()
		e.mu.Unlock()
	}
}

func (e *ClusterElector) prune() {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := time.Now().Add(-peerExpiry)
	for id, seen := range e.lastSeen {
		if id != e.selfID && seen.Before(cutoff) {
			delete(e.lastSeen, id)
		}
	}
	e.lastSeen[e.selfID] = time.Now()
}

func (e *ClusterElector) livePeers() []peer.ID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]peer.ID, 0, len(e.lastSeen))
	for id := range e.lastSeen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsLocalHolder reports whether this node's peer ID currently sorts
// smallest among live peers.
func (e *ClusterElector) IsLocalHolder() bool {
	live := e.livePeers()
	return len(live) > 0 && live[0] == e.selfID
}

// CurrentHolder returns the elected holder's info. ok is false only if
// no peer (not even self) has been observed yet, which cannot happen
// after construction seeds self.
func (e *ClusterElector) CurrentHolder() (HolderInfo, bool) {
	live := e.livePeers()
	if len(live) == 0 {
		return HolderInfo{}, false
	}
	return HolderInfo{ID: live[0].String(), PeerID: live[0]}, true
}

// KnownPeerCount returns the number of live peers, including self.
func (e *ClusterElector) KnownPeerCount() int {
	return len(e.livePeers())
}

// Close stops the background loops.
func (e *ClusterElector) Close() {
	e.cancel()
}

// NewHost builds a libp2p host with a fresh Ed25519 identity, suitable
// for passing to NewClusterElector and RemoteDispatcher. The identity
// is not persisted across restarts: every restart rejoins with a new
// peer ID, which is harmless since
// election reconverges from heartbeats within peerExpiry.
func NewHost() (host.Host, error) {
	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, err
	}
	return libp2p.New(context.Background(), libp2p.Identity(priv))
}
