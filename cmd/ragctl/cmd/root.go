// Package cmd provides the ragctl commands: one-shot queries, retrieval,
// query expansion, evaluation runs and corpus indexing against a locally
// built pipeline.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/postgres"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

var globals globalOptions

// NewRootCmd creates the root command for the ragctl CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragctl",
		Short: "Query, evaluate and index the policy retrieval pipeline",
		Long: `ragctl builds the retrieval pipeline in-process from the configured
corpus and runs a single operation against it.

Examples:
  ragctl query "How many days of annual leave do I get?"
  ragctl retrieve "vpn access" -k 5 --expand=false
  ragctl expand "sick leave" --mode template
  ragctl eval --dataset configs/eval/dataset.yaml -k 5 --inspect
  ragctl index --persist`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&globals.configPath, "config", "c", "configs/development.yaml", "Path to config file")
	cmd.PersistentFlags().StringVar(&globals.logLevel, "log-level", "", "Override the configured log level")

	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newRetrieveCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newExpandCmd())
	return cmd
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// session is a built pipeline plus whatever it holds open.
type session struct {
	cfg   *config.Config
	wired *pipeline.Wired
	db    *postgres.Client
}

func (s *session) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// loadConfig reads the config and routes logs to stderr so command output
// on stdout stays machine readable.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globals.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	level := cfg.Logging.Level
	if globals.logLevel != "" {
		level = globals.logLevel
	}
	logger.SetupWriter(os.Stderr, level, "text")
	return cfg, nil
}

// openSession assembles the pipeline. With build set it also loads the
// corpus and indexes it.
func openSession(ctx context.Context, build bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}
	if cfg.Postgres.Enabled {
		s.db, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
	}
	s.wired, err = pipeline.FromConfig(cfg, s.db, metrics.NewUnregistered())
	if err != nil {
		s.Close()
		return nil, err
	}
	if build {
		if err := s.wired.Pipeline.Rebuild(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("building index: %w", err)
		}
	}
	return s, nil
}
