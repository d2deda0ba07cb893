// Package teams implements the Team Registry (spec.md §4.2): teams
// keyed by name, participants keyed by email within a team.
//
// Structurally this follows roothash/memory's registration pattern —
// a map of per-entity state guarded against concurrent writers by
// routing every mutation through a kernel.Kernel, while reads take a
// plain RWMutex snapshot of current state directly, without queuing,
// since spec.md §4.2 describes get_team/list_teams as "pure reads
// over current state".
package teams

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hackmesh/hub/internal/common/ids"
	"github.com/hackmesh/hub/internal/common/logging"
	"github.com/hackmesh/hub/internal/errs"
	"github.com/hackmesh/hub/internal/kernel"
	"github.com/hackmesh/hub/internal/snapshot"
)

// Participant is a hackathon team member.
type Participant struct {
	Name  string `cbor:"name"`
	Email string `cbor:"email"`
}

// Team is one hackathon team.
type Team struct {
	ID           string        `cbor:"id"`
	Name         string        `cbor:"name"`
	Topic        string        `cbor:"topic"`
	Participants []Participant `cbor:"participants"` // newest-first
	CreatedAt    time.Time     `cbor:"created_at"`
}

const snapshotFile = "teams.etf"

const (
	tagCreateTeam     = "create_team"
	tagAddParticipant = "add_participant"
	tagReset          = "reset"
	tagPersist        = "persist"
)

type createTeamArgs struct {
	name  string
	topic string
}

type addParticipantArgs struct {
	teamName string
	name     string
	email    string
}

// Registry is the Team Registry.
type Registry struct {
	logger *logging.Logger
	store  *snapshot.Store
	kernel *kernel.Kernel

	mu    sync.RWMutex
	state map[string]*Team
}

// New constructs a Team Registry backed by store. Call Start before
// serving any request.
func New(store *snapshot.Store) *Registry {
	r := &Registry{
		logger: logging.GetLogger("teams"),
		store:  store,
		state:  make(map[string]*Team),
	}
	r.kernel = kernel.New("teams", r.apply)
	return r
}

// Start loads the snapshot (bootstrap replay, legacy-list tolerant)
// and starts the registry's worker.
func (r *Registry) Start() error {
	return r.kernel.Start(r.load)
}

// Stop terminates the registry's worker.
func (r *Registry) Stop() {
	r.kernel.Stop()
}

// Done is closed when the registry's worker goroutine exits.
func (r *Registry) Done() <-chan struct{} {
	return r.kernel.Done()
}

func (r *Registry) load() error {
	var list []*Team
	return r.store.LoadMap(snapshotFile, &r.state, &list, func() {
		r.state = make(map[string]*Team, len(list))
		for _, t := range list {
			r.state[t.Name] = t
		}
	})
}

func (r *Registry) persistLocked() {
	if err := r.store.WriteAtomic(snapshotFile, r.state); err != nil {
		r.logger.Error("teams: snapshot write failed", "err", err)
	}
}

func (r *Registry) apply(tag string, args interface{}) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch tag {
	case tagCreateTeam:
		a := args.(createTeamArgs)
		if _, exists := r.state[a.name]; exists {
			return nil, errs.ErrTeamExists
		}
		t := &Team{
			ID:        ids.New(),
			Name:      a.name,
			Topic:     a.topic,
			CreatedAt: time.Now().UTC(),
		}
		r.state[a.name] = t
		r.persistLocked()
		return cloneTeam(t), nil

	case tagAddParticipant:
		a := args.(addParticipantArgs)
		t, ok := r.state[a.teamName]
		if !ok {
			return nil, errs.ErrTeamNotFound
		}
		for _, p := range t.Participants {
			if p.Email == a.email {
				return nil, errs.ErrParticipantDuplicate
			}
		}
		t.Participants = append([]Participant{{Name: a.name, Email: a.email}}, t.Participants...)
		r.persistLocked()
		return cloneTeam(t), nil

	case tagReset:
		r.state = make(map[string]*Team)
		r.persistLocked()
		return nil, nil

	case tagPersist:
		r.persistLocked()
		return nil, nil

	default:
		panic("teams: unknown tag " + tag)
	}
}

// CreateTeam creates a new team, failing with errs.ErrTeamExists if
// the name is already registered.
func (r *Registry) CreateTeam(ctx context.Context, name, topic string) (*Team, error) {
	v, err := r.kernel.Call(ctx, tagCreateTeam, createTeamArgs{name: name, topic: topic})
	if err != nil {
		return nil, err
	}
	return v.(*Team), nil
}

// AddParticipant prepends a participant to the named team, failing
// with errs.ErrTeamNotFound or errs.ErrParticipantDuplicate.
func (r *Registry) AddParticipant(ctx context.Context, teamName, name, email string) (*Team, error) {
	v, err := r.kernel.Call(ctx, tagAddParticipant, addParticipantArgs{teamName: teamName, name: name, email: email})
	if err != nil {
		return nil, err
	}
	return v.(*Team), nil
}

// GetTeam is a pure read of current state; it does not go through the
// kernel queue.
func (r *Registry) GetTeam(name string) (*Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.state[name]
	if !ok {
		return nil, errs.ErrTeamNotFound
	}
	return cloneTeam(t), nil
}

// ListTeams returns every team, sorted by name for deterministic
// output (the registry itself imposes no ordering on its map).
func (r *Registry) ListTeams() []*Team {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Team, 0, len(r.state))
	for _, t := range r.state {
		out = append(out, cloneTeam(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset empties the registry and overwrites the snapshot with an
// empty map, per spec.md §4.2. Like every mutation it is routed
// through the kernel so it is ordered against any in-flight
// create_team/add_participant calls.
func (r *Registry) Reset(ctx context.Context) error {
	_, err := r.kernel.Call(ctx, tagReset, nil)
	return err
}

// Persist forces a rewrite of the snapshot file with current state,
// per the System.persist_state operation (spec.md §4.8).
func (r *Registry) Persist(ctx context.Context) error {
	_, err := r.kernel.Call(ctx, tagPersist, nil)
	return err
}

// SnapshotPath returns the on-disk path this registry persists to,
// reported by Supervisor.SnapshotPaths.
func (r *Registry) SnapshotPath() string {
	return r.store.Path(snapshotFile)
}

func cloneTeam(t *Team) *Team {
	cp := *t
	cp.Participants = append([]Participant(nil), t.Participants...)
	return &cp
}
