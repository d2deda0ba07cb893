// Command hackmesh runs the hackathon collaboration backend: a
// serve/repl/reset/version/load command tree built with spf13/cobra,
// configured via internal/config (spf13/viper).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/libp2p/go-libp2p-core/host"
	"github.com/spf13/cobra"

	"github.com/hackmesh/hub/internal/chat"
	"github.com/hackmesh/hub/internal/cli"
	"github.com/hackmesh/hub/internal/common/logging"
	"github.com/hackmesh/hub/internal/config"
	"github.com/hackmesh/hub/internal/harness"
	"github.com/hackmesh/hub/internal/snapshot"
	"github.com/hackmesh/hub/internal/supervisor"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hackmesh",
		Short: "Hackathon collaboration backend",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file")
	root.AddCommand(newServeCmd(), newReplCmd(), newResetCmd(), newVersionCmd(), newLoadCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func bootstrap() (*config.Config, *supervisor.Supervisor, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := logging.InitializeFromEnv(); err != nil {
		return nil, nil, fmt.Errorf("initialize logging: %w", err)
	}

	store, err := snapshot.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot store: %w", err)
	}

	opts := supervisor.Options{}
	var clusterHost host.Host
	if cfg.Clustered {
		h, err := chat.NewHost()
		if err != nil {
			return nil, nil, fmt.Errorf("create cluster host: %w", err)
		}
		clusterHost = h
		elector, err := chat.NewClusterElector(context.Background(), h)
		if err != nil {
			return nil, nil, fmt.Errorf("start cluster election: %w", err)
		}
		opts.Elector = elector
		opts.Dispatcher = chat.NewRemoteDispatcher(h)
	}

	sup := supervisor.New(store, opts)
	if err := sup.Start(); err != nil {
		return nil, nil, fmt.Errorf("start supervisor: %w", err)
	}

	if cfg.Clustered {
		chat.ServeLocal(clusterHost, sup.Chat)
	}
	return cfg, sup, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the backend and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sup, err := bootstrap()
			if err != nil {
				return err
			}
			defer sup.Stop()

			logger := logging.GetLogger("main")
			logger.Info("hackmesh: serving", "data_dir", cfg.DataDir)
			select {}
		},
	}
}

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start the backend and an interactive REPL",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sup, err := bootstrap()
			if err != nil {
				return err
			}
			defer sup.Stop()

			return cli.New(supervisor.NewFacade(sup)).Start()
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset every registry and clear the snapshot directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sup, err := bootstrap()
			if err != nil {
				return err
			}
			defer sup.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return sup.ResetAll(ctx)
		},
	}
}

func newLoadCmd() *cobra.Command {
	var teams, participantsPerTeam, messagesPerTeam int

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run the load harness (spec scenario F by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sup, err := bootstrap()
			if err != nil {
				return err
			}
			defer sup.Stop()

			hcfg := harness.DefaultConfig()
			if teams > 0 {
				hcfg.Teams = teams
			}
			if participantsPerTeam > 0 {
				hcfg.ParticipantsPerTeam = participantsPerTeam
			}
			if messagesPerTeam > 0 {
				hcfg.MessagesPerTeam = messagesPerTeam
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			report, err := harness.Run(ctx, supervisor.NewFacade(sup), hcfg)
			if err != nil {
				return err
			}
			for _, p := range report.Phases {
				fmt.Printf("%-14s attempts=%-6d errors=%-4d duration=%s\n", p.Name, p.Attempts, p.Errors, p.Duration)
			}
			fmt.Printf("total=%s teams=%d projects=%d participants=%d messages=%d\n",
				report.Total, report.Teams, report.Projects, report.Participants, report.Messages)
			return nil
		},
	}
	cmd.Flags().IntVar(&teams, "teams", 0, "number of teams (N); 0 keeps the default")
	cmd.Flags().IntVar(&participantsPerTeam, "participants-per-team", 0, "participants per team (M); 0 keeps the default")
	cmd.Flags().IntVar(&messagesPerTeam, "messages-per-team", 0, "chat messages per team (K); 0 keeps the default")
	return cmd
}
