package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"ecomverify/internal/adapters/postgres"
	"ecomverify/internal/config"
	"ecomverify/internal/ports"
	"ecomverify/internal/risk"
)

// version is overridden at build time with -ldflags "-X ecomverify/internal/cli.version=...".
var version = "dev"

type backend interface {
	ports.AnalysisRepository
	ports.JobRepository
}

// app is the state shared by the subcommands. Tests inject client and store;
// left nil they are built from the environment.
type app struct {
	rulesPath string
	client    *http.Client
	store     backend
}

// Execute builds the root command tree and runs the CLI.
func Execute(ctx context.Context) error {
	return newRootCmd(&app{}).ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "ecomverify",
		Short:         "Assess whether an online shop is trustworthy or fraudulent",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.SetVersionTemplate("ecomverify version {{.Version}}\n")
	root.PersistentFlags().StringVar(&a.rulesPath, "rules", "", "YAML rules file overlaying the defaults (env RULES_FILE)")

	root.AddCommand(
		newAnalyzeCmd(a),
		newListCmd(a),
		newRefreshCmd(a),
		newMigrateCmd(),
		newRulesCmd(a),
	)
	return root
}

// loadConfig reads the environment. A missing DATABASE_URL is not an error
// here; commands that need the store say so themselves.
func loadConfig() config.Config {
	cfg, _ := config.Load()
	return cfg
}

func (a *app) rules(cfg config.Config) (risk.Rules, error) {
	path := a.rulesPath
	if path == "" {
		path = cfg.RulesFile
	}
	rules, err := risk.LoadRules(path)
	if err != nil {
		return rules, err
	}
	return rules.WithUserAgent(cfg.UserAgent).WithProbeBudget(cfg.ProbeBudget), nil
}

func (a *app) engine(cfg config.Config) (*risk.Engine, error) {
	rules, err := a.rules(cfg)
	if err != nil {
		return nil, err
	}
	return risk.NewEngine(rules, a.client), nil
}

// openStore returns the injected store or connects to Postgres. The returned
// func releases the connection.
func (a *app) openStore(ctx context.Context, cfg config.Config) (backend, func(), error) {
	if a.store != nil {
		return a.store, func() {}, nil
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("%w: this command needs the analysis store", config.ErrNoDatabase)
	}
	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, "up"); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return db, db.Close, nil
}
