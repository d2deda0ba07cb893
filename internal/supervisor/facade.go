package supervisor

import (
	"context"

	"github.com/hackmesh/hub/internal/chat"
	"github.com/hackmesh/hub/internal/mentors"
	"github.com/hackmesh/hub/internal/projects"
	"github.com/hackmesh/hub/internal/teams"
)

// Facade is the single entry point every transport (REPL, future HTTP
// layer, load harness) drives — a thin pass-through to the child
// registries it holds, so callers never need their own reference to
// Supervisor's internals.
type Facade struct {
	sup *Supervisor
}

// NewFacade wraps sup.
func NewFacade(sup *Supervisor) *Facade {
	return &Facade{sup: sup}
}

// Teams

func (f *Facade) CreateTeam(ctx context.Context, name, topic string) (*teams.Team, error) {
	return f.sup.Teams.CreateTeam(ctx, name, topic)
}

func (f *Facade) AddParticipant(ctx context.Context, teamName, name, email string) (*teams.Team, error) {
	return f.sup.Teams.AddParticipant(ctx, teamName, name, email)
}

func (f *Facade) GetTeam(name string) (*teams.Team, error) {
	return f.sup.Teams.GetTeam(name)
}

func (f *Facade) ListTeams() []*teams.Team {
	return f.sup.Teams.ListTeams()
}

// Projects

func (f *Facade) CreateProject(ctx context.Context, teamName, description string, category projects.Category) (*projects.Project, error) {
	return f.sup.Projects.CreateProject(ctx, teamName, description, category)
}

func (f *Facade) UpdateProjectState(ctx context.Context, teamName string, newState projects.State) (*projects.Project, error) {
	return f.sup.Projects.UpdateState(ctx, teamName, newState)
}

func (f *Facade) AppendProgress(ctx context.Context, teamName, text string) (*projects.Project, error) {
	return f.sup.Projects.AppendProgress(ctx, teamName, text)
}

func (f *Facade) GetProject(teamName string) (*projects.Project, error) {
	return f.sup.Projects.GetProject(teamName)
}

func (f *Facade) ListProjectsByCategory(c projects.Category) []*projects.Project {
	return f.sup.Projects.ListByCategory(c)
}

func (f *Facade) ListProjectsByState(s projects.State) []*projects.Project {
	return f.sup.Projects.ListByState(s)
}

func (f *Facade) ListAllProjects() []*projects.Project {
	return f.sup.Projects.ListAll()
}

// Mentors

func (f *Facade) RegisterMentor(ctx context.Context, name, specialty string) (*mentors.Mentor, error) {
	return f.sup.Mentors.RegisterMentor(ctx, name, specialty)
}

func (f *Facade) SendFeedback(ctx context.Context, mentorID, teamName, content string) (*mentors.Mentor, error) {
	return f.sup.Mentors.SendFeedback(ctx, mentorID, teamName, content)
}

func (f *Facade) GetMentor(id string) (*mentors.Mentor, error) {
	return f.sup.Mentors.GetMentor(id)
}

func (f *Facade) ListMentors() []*mentors.Mentor {
	return f.sup.Mentors.ListMentors()
}

func (f *Facade) FindMentorsBySpecialty(s string) []*mentors.Mentor {
	return f.sup.Mentors.FindBySpecialty(s)
}

// Chat

func (f *Facade) CreateRoom(ctx context.Context, name string) (string, error) {
	return f.sup.Chat.CreateRoom(ctx, name)
}

func (f *Facade) SendMessage(ctx context.Context, room, author, content string) error {
	return f.sup.Chat.SendMessage(ctx, room, author, content)
}

func (f *Facade) ChatHistory(ctx context.Context, room string) ([]chat.Message, error) {
	return f.sup.Chat.History(ctx, room)
}

func (f *Facade) ListRooms(ctx context.Context) ([]string, error) {
	return f.sup.Chat.ListRooms(ctx)
}

func (f *Facade) Subscribe(room string) (*chat.Subscription, error) {
	return f.sup.Chat.Subscribe(room)
}

func (f *Facade) ClusterInfo() chat.ClusterInfo {
	return f.sup.Chat.ClusterInfoOf()
}

// System

// ResetAll resets every registry and the Chat Server, aggregating
// per-child failures without short-circuiting the rest.
func (f *Facade) ResetAll(ctx context.Context) error {
	return f.sup.ResetAll(ctx)
}

// PersistAll forces every registry and the Chat Server to rewrite
// their snapshot files.
func (f *Facade) PersistAll(ctx context.Context) error {
	return f.sup.PersistAll(ctx)
}

// PersistInfo reports per-registry entity counts (teams, projects,
// mentors, rooms).
func (f *Facade) PersistInfo() map[string]int {
	return f.sup.PersistInfo()
}

// SnapshotPaths reports each registry's on-disk snapshot path.
func (f *Facade) SnapshotPaths() map[string]string {
	return f.sup.SnapshotPaths()
}
