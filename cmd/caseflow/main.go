// caseflow is the command line entry point for the procurement
// decision engine: create cases, chat with the active stage agent,
// approve or reject stage gates, and inspect artifact packs and the
// audit trail.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"caseflow/pkg/classifier"
	"caseflow/pkg/config"
	"caseflow/pkg/constraints"
	"caseflow/pkg/eventlog"
	"caseflow/pkg/gen"
	"caseflow/pkg/limiter"
	"caseflow/pkg/memory"
	"caseflow/pkg/planner"
	"caseflow/pkg/retriever"
	"caseflow/pkg/store"
	"caseflow/pkg/supervisor"
	"caseflow/pkg/task"
)

var (
	cfgPath  string
	mockMode bool
)

var rootCmd = &cobra.Command{
	Use:   "caseflow",
	Short: "Procurement case orchestration",
	Long: `caseflow runs human-in-the-loop procurement cases through six
stages, DTP-01 (Strategy) to DTP-06 (Execution). Each message you send
is classified, planned against the current stage playbook, and executed
as a bounded task sequence whose output lands in an artifact pack.
Stage advancement always waits for your explicit approval.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(config.ProjectConfigDir, config.ProjectConfigFilename), "config file path")
	rootCmd.PersistentFlags().BoolVar(&mockMode, "mock", false,
		"use the mock generation backend (no API keys needed)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(packsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(usageCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles the wired engine for one command invocation.
type app struct {
	cfg    *config.Config
	store  *store.Store
	sup    *supervisor.Supervisor
	events *eventlog.Writer
}

func (a *app) close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if mockMode {
		for _, tier := range []string{config.TierFast, config.TierDeep} {
			m := cfg.Models[tier]
			m.Backend = config.BackendMock
			m.Model = "mock"
			cfg.Models[tier] = m
		}
	}
	if config.SecretsFileExists(".") {
		if pw := os.Getenv("CASEFLOW_PASSWORD"); pw != "" {
			secrets, err := config.DecryptSecretsFile(".", pw)
			if err != nil {
				return nil, fmt.Errorf("failed to unlock secrets: %w", err)
			}
			config.SetDecryptedSecrets(secrets)
		}
	}
	return cfg, nil
}

// openStore wires only the persistence layer, for read-only commands
// that must work without any generation backend configured.
func openStore() (*config.Config, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func openApp(ctx context.Context) (*app, error) {
	cfg, st, err := openStore()
	if err != nil {
		return nil, err
	}

	deepGen, err := gen.New(cfg.Models[config.TierDeep], cfg.Ollama.Host)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("deep tier unavailable: %w", err)
	}

	// Classifier rules carry the load when the fast tier has no key.
	var fastGen gen.Generator
	if g, err := gen.New(cfg.Models[config.TierFast], cfg.Ollama.Host); err == nil {
		fastGen = g
	} else {
		fmt.Fprintln(os.Stderr, "warning: fast tier unavailable, classifying by rules only:", err)
	}

	retr, err := retriever.NewPersistentChromemRetriever(filepath.Join(config.ProjectConfigDir, "index"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open retrieval index: %w", err)
	}
	if err := retriever.IndexBuiltinCorpus(ctx, retr); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to index policy corpus: %w", err)
	}

	pln, err := planner.New(cfg.Constraints)
	if err != nil {
		st.Close()
		return nil, err
	}

	events, err := eventlog.NewWriter(cfg.EventLogDir, 24)
	if err != nil {
		st.Close()
		return nil, err
	}

	sup := supervisor.New(supervisor.Deps{
		Store:       st,
		Classifier:  classifier.New(fastGen, cfg.Models[config.TierFast], cfg.Classifier),
		Planner:     pln,
		Runner:      task.NewRunner(st, retr, deepGen, cfg.Models[config.TierDeep], cfg.Constraints),
		Limiter:     limiter.NewLimiter(cfg.Constraints),
		Constraints: constraints.NewStore(),
		Memory:      memory.NewManager(cfg.Memory, st),
		Events:      events,
	})

	return &app{cfg: cfg, store: st, sup: sup, events: events}, nil
}
