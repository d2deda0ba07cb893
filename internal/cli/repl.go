// Package cli provides an interactive REPL over the Façade, in the
// style of the chronos example's cli/repl package: a slash-command
// dispatch loop over stdin (own implementation — that repo is
// reference material, not the teacher).
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hackmesh/hub/internal/projects"
	"github.com/hackmesh/hub/internal/supervisor"
)

// Command is one slash command.
type Command struct {
	Name        string
	Description string
	Handler     func(args string) error
}

// REPL is the interactive command loop driving a Façade.
type REPL struct {
	facade   *supervisor.Facade
	commands map[string]Command
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a REPL with every built-in command registered.
func New(facade *supervisor.Facade) *REPL {
	ctx, cancel := context.WithCancel(context.Background())
	r := &REPL{
		facade:   facade,
		commands: make(map[string]Command),
		ctx:      ctx,
		cancel:   cancel,
	}
	r.registerBuiltins()
	return r
}

// Register adds or overrides a slash command.
func (r *REPL) Register(c Command) {
	r.commands[c.Name] = c
}

func (r *REPL) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.ctx, 5*time.Second)
}

func (r *REPL) registerBuiltins() {
	r.Register(Command{
		Name: "/help", Description: "Show available commands",
		Handler: func(_ string) error {
			fmt.Println("Available commands:")
			for _, c := range r.commands {
				fmt.Printf("  %-16s %s\n", c.Name, c.Description)
			}
			return nil
		},
	})

	r.Register(Command{
		Name: "/teams", Description: "List all teams",
		Handler: func(_ string) error {
			for _, t := range r.facade.ListTeams() {
				fmt.Printf("  %-20s topic=%q participants=%d\n", t.Name, t.Topic, len(t.Participants))
			}
			return nil
		},
	})

	r.Register(Command{
		Name: "/join", Description: "/join <team> <name> <email>",
		Handler: func(args string) error {
			parts := strings.Fields(args)
			if len(parts) != 3 {
				return fmt.Errorf("usage: /join <team> <name> <email>")
			}
			ctx, cancel := r.callCtx()
			defer cancel()
			_, err := r.facade.AddParticipant(ctx, parts[0], parts[1], parts[2])
			return err
		},
	})

	r.Register(Command{
		Name: "/project", Description: "/project <team> — show a team's project",
		Handler: func(args string) error {
			team := strings.TrimSpace(args)
			if team == "" {
				return fmt.Errorf("usage: /project <team>")
			}
			p, err := r.facade.GetProject(team)
			if err != nil {
				return err
			}
			fmt.Printf("  %s [%s/%s] %s\n", p.TeamName, p.Category, p.State, p.Description)
			return nil
		},
	})

	r.Register(Command{
		Name: "/project_create", Description: "/project_create <team> <category> <description>",
		Handler: func(args string) error {
			parts := strings.SplitN(args, " ", 3)
			if len(parts) != 3 {
				return fmt.Errorf("usage: /project_create <team> <category> <description>")
			}
			category, err := projects.ParseCategory(parts[1])
			if err != nil {
				return err
			}
			ctx, cancel := r.callCtx()
			defer cancel()
			_, err = r.facade.CreateProject(ctx, parts[0], parts[2], category)
			return err
		},
	})

	r.Register(Command{
		Name: "/mentors", Description: "List all mentors",
		Handler: func(_ string) error {
			for _, m := range r.facade.ListMentors() {
				fmt.Printf("  %-10s %-20s specialty=%s\n", m.ID, m.Name, m.Specialty)
			}
			return nil
		},
	})

	r.Register(Command{
		Name: "/chat_create", Description: "/chat_create <room>",
		Handler: func(args string) error {
			room := strings.TrimSpace(args)
			if room == "" {
				return fmt.Errorf("usage: /chat_create <room>")
			}
			ctx, cancel := r.callCtx()
			defer cancel()
			_, err := r.facade.CreateRoom(ctx, room)
			return err
		},
	})

	r.Register(Command{
		Name: "/chat_send", Description: "/chat_send <room> <author> <message>",
		Handler: func(args string) error {
			parts := strings.SplitN(args, " ", 3)
			if len(parts) != 3 {
				return fmt.Errorf("usage: /chat_send <room> <author> <message>")
			}
			ctx, cancel := r.callCtx()
			defer cancel()
			return r.facade.SendMessage(ctx, parts[0], parts[1], parts[2])
		},
	})

	r.Register(Command{
		Name: "/chat", Description: "/chat <room> — show history",
		Handler: func(args string) error {
			room := strings.TrimSpace(args)
			if room == "" {
				return fmt.Errorf("usage: /chat <room>")
			}
			ctx, cancel := r.callCtx()
			defer cancel()
			hist, err := r.facade.ChatHistory(ctx, room)
			if err != nil {
				return err
			}
			for _, m := range hist {
				fmt.Printf("  [%s] %s: %s\n", m.Timestamp.Format("15:04:05"), m.Author, m.Content)
			}
			return nil
		},
	})

	r.Register(Command{
		Name: "/persist_save", Description: "Force every registry to persist now",
		Handler: func(_ string) error {
			ctx, cancel := r.callCtx()
			defer cancel()
			return r.facade.PersistAll(ctx)
		},
	})

	r.Register(Command{
		Name: "/persist_info", Description: "Show per-registry entity counts and snapshot paths",
		Handler: func(_ string) error {
			counts := r.facade.PersistInfo()
			for name, path := range r.facade.SnapshotPaths() {
				fmt.Printf("  %-10s count=%-6d %s\n", name, counts[name], path)
			}
			fmt.Printf("  %-10s count=%d\n", "rooms", counts["rooms"])
			return nil
		},
	})

	r.Register(Command{
		Name: "/cluster_info", Description: "Show this node's chat election view",
		Handler: func(_ string) error {
			info := r.facade.ClusterInfo()
			fmt.Printf("  holder=%v holder_id=%q known_peers=%d\n", info.IsHolder, info.HolderID, info.KnownPeers)
			return nil
		},
	})

	r.Register(Command{
		Name: "/reset", Description: "Reset every registry and the chat server",
		Handler: func(_ string) error {
			ctx, cancel := r.callCtx()
			defer cancel()
			return r.facade.ResetAll(ctx)
		},
	})

	r.Register(Command{
		Name: "/quit", Description: "Exit the REPL",
		Handler: func(_ string) error {
			r.cancel()
			return nil
		},
	})
}

// Start begins the interactive loop, reading commands from stdin
// until /quit or EOF.
func (r *REPL) Start() error {
	fmt.Println("hackmesh REPL — type /help for commands, /quit to exit")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("hackmesh> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		select {
		case <-r.ctx.Done():
			fmt.Println("bye")
			return nil
		default:
		}

		if !strings.HasPrefix(line, "/") {
			fmt.Fprintf(os.Stderr, "not a command: %s (type /help)\n", line)
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		name := parts[0]
		args := ""
		if len(parts) > 1 {
			args = parts[1]
		}

		cmd, ok := r.commands[name]
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown command: %s (type /help)\n", name)
			continue
		}
		if err := cmd.Handler(args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

		select {
		case <-r.ctx.Done():
			fmt.Println("bye")
			return nil
		default:
		}
	}
	return scanner.Err()
}
