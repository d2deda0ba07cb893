// Package errs holds the sentinel error taxonomy shared by every
// registry (spec.md §7). Callers compare with errors.Is; no exception
// or panic crosses a registry boundary for a domain-kind failure.
package errs

import "errors"

var (
	// ErrTeamExists is returned by CreateTeam when the name is taken.
	ErrTeamExists = errors.New("team_exists")
	// ErrTeamNotFound is returned when a team name is not registered.
	ErrTeamNotFound = errors.New("team_not_found")
	// ErrParticipantDuplicate is returned when an email already
	// belongs to a participant of the team.
	ErrParticipantDuplicate = errors.New("participant_duplicate")

	// ErrProjectExists is returned by CreateProject for a known team_name.
	ErrProjectExists = errors.New("project_exists")
	// ErrProjectNotFound is returned when team_name has no project.
	ErrProjectNotFound = errors.New("project_not_found")
	// ErrInvalidState is returned when a requested project state is
	// not one of the three enumerated values.
	ErrInvalidState = errors.New("invalid_state")
	// ErrInvalidCategory is returned when a requested project category
	// is not one of the three enumerated values.
	ErrInvalidCategory = errors.New("invalid_category")

	// ErrMentorNotFound is returned when a mentor id is not registered.
	ErrMentorNotFound = errors.New("mentor_not_found")

	// ErrRoomExists is returned by CreateRoom for a known room name.
	ErrRoomExists = errors.New("room_exists")
	// ErrRoomNotFound is returned when a room name does not exist.
	ErrRoomNotFound = errors.New("room_not_found")
	// ErrChatUnavailable is returned when the global chat holder
	// cannot be reached (election in progress, or node down).
	ErrChatUnavailable = errors.New("chat_unavailable")

	// ErrTimeout is returned by Kernel.Call when the caller-supplied
	// deadline expires before a reply arrives. The request may still
	// be applied by the worker afterwards; see spec.md §4.1.
	ErrTimeout = errors.New("timeout")

	// ErrUnavailable names the "registry did not answer" failure kind
	// of snapshot aggregation. No operation in this module returns it:
	// Supervisor.PersistAll reports a registry that does not answer in
	// time as ErrTimeout.
	ErrUnavailable = errors.New("unavailable")
)
