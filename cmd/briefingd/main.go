package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"intel_briefing/internal/logging"
	"intel_briefing/pkg/api/briefing"
	"intel_briefing/pkg/core/analytics"
	"intel_briefing/pkg/core/config"
	"intel_briefing/pkg/core/engine"
	"intel_briefing/pkg/core/llm"
	"intel_briefing/pkg/core/research"
)

var (
	flagVerbose   bool
	flagConfigDir string
	flagStateDir  string
)

func main() {
	root := &cobra.Command{
		Use:   "briefingd",
		Short: "Personal intelligence briefing service",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(flagVerbose)
			config.LoadEnv()
		},
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flagConfigDir, "config", "config", "directory holding agents.json, pipelines.json, personas.json, models.yaml")
	root.PersistentFlags().StringVar(&flagStateDir, "state", "state", "directory for persisted snapshots")

	root.AddCommand(serveCmd(), briefCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildEngine wires the full pipeline from the operator config directory.
func buildEngine(ctx context.Context) (*engine.Engine, *config.PipelinesHolder, error) {
	pipelines := config.NewPipelinesHolder(filepath.Join(flagConfigDir, "pipelines.json"))

	personas, err := config.LoadPersonas(filepath.Join(flagConfigDir, "personas.json"))
	if err != nil {
		return nil, nil, err
	}

	agentsCfg, err := config.LoadAgents(filepath.Join(flagConfigDir, "agents.json"))
	if err != nil {
		return nil, nil, err
	}
	var agents []research.Agent
	for _, spec := range agentsCfg.Agents {
		if !spec.Enabled {
			continue
		}
		agent, err := research.NewAgent(spec)
		if err != nil {
			log.Warn().Err(err).Str("agent", spec.ID).Msg("Skipping misconfigured agent")
			continue
		}
		agents = append(agents, agent)
	}

	manager := llm.NewManager(llm.LoadConfig(filepath.Join(flagConfigDir, "models.yaml")))

	writer, err := analytics.NewWriter(ctx, config.GetEnvInt("ANALYTICS_QUEUE_SIZE", 64))
	if err != nil {
		log.Warn().Err(err).Msg("Analytics unavailable, continuing without it")
		writer = nil
	}

	return engine.New(pipelines, personas, agents, manager, writer, flagStateDir), pipelines, nil
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the briefing HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			eng, pipelines, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			pipelines.WatchSIGHUP(ctx)

			mux := http.NewServeMux()
			briefing.NewHandler(eng).Register(mux)
			server := &http.Server{Addr: addr, Handler: mux}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("briefingd listening")
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("Shutting down")
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					eng.Shutdown()
					return err
				}
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("HTTP shutdown incomplete")
			}
			eng.Shutdown()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func briefCmd() *cobra.Command {
	var userID string
	var maxItems int
	cmd := &cobra.Command{
		Use:   "brief [prompt]",
		Short: "Run one briefing request and print the payload as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			eng, _, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Shutdown()

			prompt := ""
			if len(args) > 0 {
				prompt = args[0]
			}

			payload, err := eng.HandleRequestPayload(ctx, userID, prompt, nil, maxItems)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli", "user id for preference lookup")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "item cap (0 uses profile/config default)")
	return cmd
}
