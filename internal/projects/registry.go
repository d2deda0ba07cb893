// Package projects implements the Project Registry (spec.md §4.3):
// one project per team_name, a value-gated state machine, and two
// append-only newest-first logs (progress, feedback).
//
// The registry treats team_name as an opaque key and never calls into
// teams — spec.md is explicit that "the registry does NOT verify that
// the referenced team exists" and registries are independent.
package projects

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

// Category is one of the three enumerated project categories.
type Category string

// State is one of the three enumerated project lifecycle states.
type State string

// The enumerated categories and states spec.md §3 allows.
const (
	CategorySocial     Category = "social"
	CategoryAmbiental  Category = "ambiental"
	CategoryEducativo  Category = "educativo"
	StateIniciado      State    = "iniciado"
	StateEnProgreso    State    = "en_progreso"
	StateCompletado    State    = "completado"
)

func validCategory(c Category) bool {
	switch c {
	case CategorySocial, CategoryAmbiental, CategoryEducativo:
		return true
	}
	return false
}

// ParseCategory validates a user-supplied category string (e.g. from
// the REPL or CLI flags) against the enumerated categories.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !validCategory(c) {
		return "", errs.ErrInvalidCategory
	}
	return c, nil
}

func validState(s State) bool {
	switch s {
	case StateIniciado, StateEnProgreso, StateCompletado:
		return true
	}
	return false
}

// Feedback is one mentor feedback entry on a project.
type Feedback struct {
	MentorName string    `cbor:"mentor_name"`
	Content    string    `cbor:"content"`
	At         time.Time `cbor:"at"`
}

// Project is one team's hackathon project.
type Project struct {
	ID          string     `cbor:"id"`
	TeamName    string     `cbor:"team_name"`
	Description string     `cbor:"description"`
	Category    Category   `cbor:"category"`
	State       State      `cbor:"state"`
	Progress    []string   `cbor:"progress"` // newest-first
	Feedback    []Feedback `cbor:"feedback"` // newest-first
	CreatedAt   time.Time  `cbor:"created_at"`
}

const snapshotFile = "projects.etf"

const (
	tagCreateProject  = "create_project"
	tagUpdateState    = "update_state"
	tagAppendProgress = "append_progress"
	tagAppendFeedback = "append_feedback"
	tagReset          = "reset"
	tagPersist        = "persist"
)

type createProjectArgs struct {
	teamName    string
	description string
	category    Category
}

type updateStateArgs struct {
	teamName string
	newState State
}

type appendProgressArgs struct {
	teamName string
	text     string
}

type appendFeedbackArgs struct {
	teamName   string
	mentorName string
	content    string
}

// Registry is the Project Registry.
type Registry struct {
	logger *logging.Logger
	store  *snapshot.Store
	kernel *kernel.Kernel

	mu    sync.RWMutex
	state map[string]*Project
}

// New constructs a Project Registry backed by store.
func New(store *snapshot.Store) *Registry {
	r := &Registry{
		logger: logging.GetLogger("projects"),
		store:  store,
		state:  make(map[string]*Project),
	}
	r.kernel = kernel.New("projects", r.apply)
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
	var list []*Project
	return r.store.LoadMap(snapshotFile, &r.state, &list, func() {
		r.state = make(map[string]*Project, len(list))
		for _, p := range list {
			r.state[p.TeamName] = p
		}
	})
}

func (r *Registry) persistLocked() {
	if err := r.store.WriteAtomic(snapshotFile, r.state); err != nil {
		r.logger.Error("projects: snapshot write failed", "err", err)
	}
}

func (r *Registry) apply(tag string, args interface{}) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch tag {
	case tagCreateProject:
		a := args.(createProjectArgs)
		if _, exists := r.state[a.teamName]; exists {
			return nil, errs.ErrProjectExists
		}
		if !validCategory(a.category) {
			return nil, errs.ErrInvalidCategory
		}
		p := &Project{
			ID:          ids.New(),
			TeamName:    a.teamName,
			Description: a.description,
			Category:    a.category,
			State:       StateIniciado,
			CreatedAt:   time.Now().UTC(),
		}
		r.state[a.teamName] = p
		r.persistLocked()
		return cloneProject(p), nil

	case tagUpdateState:
		a := args.(updateStateArgs)
		p, ok := r.state[a.teamName]
		if !ok {
			return nil, errs.ErrProjectNotFound
		}
		if !validState(a.newState) {
			return nil, errs.ErrInvalidState
		}
		p.State = a.newState
		r.persistLocked()
		return cloneProject(p), nil

	case tagAppendProgress:
		a := args.(appendProgressArgs)
		p, ok := r.state[a.teamName]
		if !ok {
			return nil, errs.ErrProjectNotFound
		}
		p.Progress = append([]string{a.text}, p.Progress...)
		r.persistLocked()
		return cloneProject(p), nil

	case tagAppendFeedback:
		a := args.(appendFeedbackArgs)
		p, ok := r.state[a.teamName]
		if !ok {
			return nil, errs.ErrProjectNotFound
		}
		p.Feedback = append([]Feedback{{
			MentorName: a.mentorName,
			Content:    a.content,
			At:         time.Now().UTC(),
		}}, p.Feedback...)
		r.persistLocked()
		return cloneProject(p), nil

	case tagReset:
		r.state = make(map[string]*Project)
		r.persistLocked()
		return nil, nil

	case tagPersist:
		r.persistLocked()
		return nil, nil

	default:
		panic("projects: unknown tag " + tag)
	}
}

// CreateProject creates a project for team_name, failing with
// errs.ErrProjectExists or errs.ErrInvalidCategory.
func (r *Registry) CreateProject(ctx context.Context, teamName, description string, category Category) (*Project, error) {
	v, err := r.kernel.Call(ctx, tagCreateProject, createProjectArgs{teamName: teamName, description: description, category: category})
	if err != nil {
		return nil, err
	}
	return v.(*Project), nil
}

// UpdateState sets the project's state, failing with
// errs.ErrProjectNotFound or errs.ErrInvalidState. Any enumerated
// value may be set from any other — spec.md §4.3 does not restrict
// transitions, only values.
func (r *Registry) UpdateState(ctx context.Context, teamName string, newState State) (*Project, error) {
	v, err := r.kernel.Call(ctx, tagUpdateState, updateStateArgs{teamName: teamName, newState: newState})
	if err != nil {
		return nil, err
	}
	return v.(*Project), nil
}

// AppendProgress prepends text to the project's progress log.
func (r *Registry) AppendProgress(ctx context.Context, teamName, text string) (*Project, error) {
	v, err := r.kernel.Call(ctx, tagAppendProgress, appendProgressArgs{teamName: teamName, text: text})
	if err != nil {
		return nil, err
	}
	return v.(*Project), nil
}

// AppendFeedback prepends a feedback entry to the project, called
// both externally and by the Mentor Registry's send_feedback
// cross-write (spec.md §4.4, §7).
func (r *Registry) AppendFeedback(ctx context.Context, teamName, mentorName, content string) (*Project, error) {
	v, err := r.kernel.Call(ctx, tagAppendFeedback, appendFeedbackArgs{teamName: teamName, mentorName: mentorName, content: content})
	if err != nil {
		return nil, err
	}
	return v.(*Project), nil
}

// GetProject is a pure read of current state.
func (r *Registry) GetProject(teamName string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.state[teamName]
	if !ok {
		return nil, errs.ErrProjectNotFound
	}
	return cloneProject(p), nil
}

// ListByCategory returns every project in the given category, sorted
// by team_name.
func (r *Registry) ListByCategory(c Category) []*Project {
	return r.listWhere(func(p *Project) bool { return p.Category == c })
}

// ListByState returns every project in the given state, sorted by
// team_name.
func (r *Registry) ListByState(s State) []*Project {
	return r.listWhere(func(p *Project) bool { return p.State == s })
}

// ListAll returns every project, sorted by team_name. spec.md §9
// resolves the "listar_proyectos present in some drafts" open
// question by keeping this operation.
func (r *Registry) ListAll() []*Project {
	return r.listWhere(func(*Project) bool { return true })
}

func (r *Registry) listWhere(pred func(*Project) bool) []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Project, 0, len(r.state))
	for _, p := range r.state {
		if pred(p) {
			out = append(out, cloneProject(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamName < out[j].TeamName })
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

func cloneProject(p *Project) *Project {
	cp := *p
	cp.Progress = append([]string(nil), p.Progress...)
	cp.Feedback = append([]Feedback(nil), p.Feedback...)
	return &cp
}
