// Package mentors implements the Mentor Registry (spec.md §4.4):
// mentors keyed by id, with no duplicate detection on name, and a
// best-effort cross-write into the Project Registry on every
// send_feedback call.
package mentors

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hackmesh/hub/internal/common/ids"
	"github.com/hackmesh/hub/internal/common/logging"
	"github.com/hackmesh/hub/internal/errs"
	"github.com/hackmesh/hub/internal/kernel"
	"github.com/hackmesh/hub/internal/projects"
	"github.com/hackmesh/hub/internal/snapshot"
)

// FeedbackGiven is one feedback entry a mentor has given.
type FeedbackGiven struct {
	TeamName string    `cbor:"team_name"`
	Content  string    `cbor:"content"`
	At       time.Time `cbor:"at"`
}

// Mentor is one registered mentor.
type Mentor struct {
	ID            string          `cbor:"id"`
	Name          string          `cbor:"name"`
	Specialty     string          `cbor:"specialty"`
	FeedbackGiven []FeedbackGiven `cbor:"feedback_given"` // newest-first
}

const snapshotFile = "mentors.etf"

const (
	tagRegisterMentor = "register_mentor"
	tagSendFeedback   = "send_feedback"
	tagReset          = "reset"
	tagPersist        = "persist"
)

type registerMentorArgs struct {
	name      string
	specialty string
}

type sendFeedbackArgs struct {
	mentorID string
	teamName string
	content  string
}

// Registry is the Mentor Registry. It holds a reference to the
// Project Registry so send_feedback can perform its cross-write; the
// two registries remain independently serialized (spec.md §7: "the
// two are NOT atomic").
type Registry struct {
	logger   *logging.Logger
	store    *snapshot.Store
	kernel   *kernel.Kernel
	projects *projects.Registry

	mu    sync.RWMutex
	state map[string]*Mentor
}

// New constructs a Mentor Registry backed by store, cross-writing
// feedback into projectsRegistry.
func New(store *snapshot.Store, projectsRegistry *projects.Registry) *Registry {
	r := &Registry{
		logger:   logging.GetLogger("mentors"),
		store:    store,
		projects: projectsRegistry,
		state:    make(map[string]*Mentor),
	}
	r.kernel = kernel.New("mentors", r.apply)
	return r
}

// Start loads the snapshot and starts the registry's worker.
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
	var list []*Mentor
	return r.store.LoadMap(snapshotFile, &r.state, &list, func() {
		r.state = make(map[string]*Mentor, len(list))
		for _, m := range list {
			r.state[m.ID] = m
		}
	})
}

func (r *Registry) persistLocked() {
	if err := r.store.WriteAtomic(snapshotFile, r.state); err != nil {
		r.logger.Error("mentors: snapshot write failed", "err", err)
	}
}

func (r *Registry) apply(tag string, args interface{}) (interface{}, error) {
	switch tag {
	case tagRegisterMentor:
		a := args.(registerMentorArgs)
		r.mu.Lock()
		defer r.mu.Unlock()

		m := &Mentor{
			ID:        ids.New(),
			Name:      a.name,
			Specialty: a.specialty,
		}
		r.state[m.ID] = m
		r.persistLocked()
		return cloneMentor(m), nil

	case tagSendFeedback:
		a := args.(sendFeedbackArgs)
		return r.applySendFeedback(a)

	case tagReset:
		r.mu.Lock()
		defer r.mu.Unlock()
		r.state = make(map[string]*Mentor)
		r.persistLocked()
		return nil, nil

	case tagPersist:
		r.mu.Lock()
		defer r.mu.Unlock()
		r.persistLocked()
		return nil, nil

	default:
		panic("mentors: unknown tag " + tag)
	}
}

// applySendFeedback commits the mentor-side append first, then calls
// into the Project Registry. spec.md §7 documents this as a
// deliberate best-effort two-step: if the project call fails, the
// mentor-side append is NOT rolled back.
func (r *Registry) applySendFeedback(a sendFeedbackArgs) (interface{}, error) {
	r.mu.Lock()
	m, ok := r.state[a.mentorID]
	if !ok {
		r.mu.Unlock()
		return nil, errs.ErrMentorNotFound
	}
	m.FeedbackGiven = append([]FeedbackGiven{{
		TeamName: a.teamName,
		Content:  a.content,
		At:       time.Now().UTC(),
	}}, m.FeedbackGiven...)
	r.persistLocked()
	mentorName := m.Name
	result := cloneMentor(m)
	r.mu.Unlock()

	// Released the mentor lock before calling out: per spec.md §9,
	// "the mentor worker commits its own state, then issues a call
	// into the project worker" — the mentors kernel's single worker
	// goroutine blocks here until the project registry replies, which
	// serializes cross-writes against this mentor's own queue but
	// never against another mentor request (each mentor op already
	// ran to completion before this one was dequeued). result is
	// already a clone taken under the lock, so nothing shared with the
	// worker's own state escapes past this point.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.projects.AppendFeedback(ctx, a.teamName, mentorName, a.content); err != nil {
		r.logger.Warn("mentors: send_feedback project cross-write failed, mentor-side append kept",
			"mentor_id", a.mentorID, "team_name", a.teamName, "err", err)
		return result, err
	}
	return result, nil
}

// RegisterMentor registers a new mentor. It never fails — spec.md
// §4.4 states there is no duplicate detection by design.
func (r *Registry) RegisterMentor(ctx context.Context, name, specialty string) (*Mentor, error) {
	v, err := r.kernel.Call(ctx, tagRegisterMentor, registerMentorArgs{name: name, specialty: specialty})
	if err != nil {
		return nil, err
	}
	return v.(*Mentor), nil
}

// SendFeedback appends feedback to the mentor and cross-writes into
// the Project Registry. If the mentor id is unknown, nothing is
// written anywhere and errs.ErrMentorNotFound is returned. If the
// mentor exists but the project cross-write fails, the mentor-side
// append still took effect and the cross-write's error is returned
// alongside the updated Mentor.
func (r *Registry) SendFeedback(ctx context.Context, mentorID, teamName, content string) (*Mentor, error) {
	v, err := r.kernel.Call(ctx, tagSendFeedback, sendFeedbackArgs{mentorID: mentorID, teamName: teamName, content: content})
	if v == nil {
		return nil, err
	}
	return v.(*Mentor), err
}

// GetMentor is a pure read of current state.
func (r *Registry) GetMentor(id string) (*Mentor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.state[id]
	if !ok {
		return nil, errs.ErrMentorNotFound
	}
	return cloneMentor(m), nil
}

// ListMentors returns every mentor, sorted by id.
func (r *Registry) ListMentors() []*Mentor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Mentor, 0, len(r.state))
	for _, m := range r.state {
		out = append(out, cloneMentor(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindBySpecialty returns every mentor whose specialty matches s,
// case-insensitively.
func (r *Registry) FindBySpecialty(s string) []*Mentor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Mentor, 0)
	for _, m := range r.state {
		if strings.EqualFold(m.Specialty, s) {
			out = append(out, cloneMentor(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset empties the registry and overwrites the snapshot.
func (r *Registry) Reset(ctx context.Context) error {
	_, err := r.kernel.Call(ctx, tagReset, nil)
	return err
}

// Persist forces a rewrite of the snapshot file with current state.
func (r *Registry) Persist(ctx context.Context) error {
	_, err := r.kernel.Call(ctx, tagPersist, nil)
	return err
}

// SnapshotPath returns the on-disk path this registry persists to.
func (r *Registry) SnapshotPath() string {
	return r.store.Path(snapshotFile)
}

func cloneMentor(m *Mentor) *Mentor {
	cp := *m
	cp.FeedbackGiven = append([]FeedbackGiven(nil), m.FeedbackGiven...)
	return &cp
}
