package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/binnyhq/part-namer/pkg/audit"
	"github.com/binnyhq/part-namer/pkg/config"
	"github.com/binnyhq/part-namer/pkg/filelock"
	"github.com/binnyhq/part-namer/pkg/registry"
	"github.com/binnyhq/part-namer/pkg/workflow"
)

// app carries flag values and the objects built from them for one command
// invocation.
type app struct {
	cfgFile string
	output  string
	actor   string
	verbose bool

	v      *viper.Viper
	cfg    config.Config
	format outputFormat
	logger *slog.Logger
	engine *workflow.Engine
	audit  *audit.Store
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "partctl",
		Short: "Manage the part prefix and material registries",
		Long: `partctl reads and updates the part-naming vocabulary: the prefixes and
materials registries, the proposal queues in front of them, and the name
templates prefixes carry.

New codes are proposed, then approved, rejected, edited or deferred by a
reviewer. Approval appends the entry to the registry document.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Config file (default: config.yaml in "+config.DefaultDir()+")")
	flags.StringVarP(&a.output, "output", "o", "table", "Output format: table, json, yaml")
	flags.StringVar(&a.actor, "actor", os.Getenv("USER"), "Name recorded against decisions")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")
	flags.String("prefixes-file", "", "Prefixes registry document")
	flags.String("materials-file", "", "Materials registry document")
	flags.String("audit-db", "", "SQLite database for the decision audit trail")
	flags.Duration("lock-timeout", filelock.DefaultTimeout, "How long to wait for a registry or proposal log lock")

	for key, flag := range map[string]string{
		config.KeyPrefixesFile:  "prefixes-file",
		config.KeyMaterialsFile: "materials-file",
		config.KeyAuditDB:       "audit-db",
		config.KeyLockTimeout:   "lock-timeout",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	cmd.AddCommand(
		newEntriesCmd(a),
		newValidateCmd(a),
		newProposeCmd(a),
		newProposalsCmd(a),
		newRenderCmd(a),
		newNameCmd(a),
		newAuditCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	format, err := parseOutputFormat(a.output)
	if err != nil {
		return err
	}
	a.format = format

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	a.cfg, err = config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.logger.Debug("configuration loaded",
		"prefixes", a.cfg.PrefixesFile, "materials", a.cfg.MaterialsFile,
		"prefix_proposals", a.cfg.PrefixProposalsFile, "material_proposals", a.cfg.MaterialProposalsFile)

	opts := []workflow.Option{workflow.WithLogger(a.logger)}
	if a.cfg.AuditDB != "" {
		a.audit, err = audit.Open(a.cfg.AuditDB)
		if err != nil {
			return err
		}
		opts = append(opts, workflow.WithRecorder(a.audit))
	}

	a.engine, err = workflow.New(a.cfg.Workflow(), opts...)
	return err
}

func (a *app) teardown(_ *cobra.Command, _ []string) error {
	if a.audit != nil {
		return a.audit.Close()
	}
	return nil
}

// ctx returns the command context carrying the acting reviewer.
func (a *app) ctx(cmd *cobra.Command) context.Context {
	actor := a.actor
	if actor == "" {
		actor = workflow.DefaultActor
	}
	return workflow.WithActor(cmd.Context(), actor)
}

func (a *app) print(cmd *cobra.Command, data any, headers []string, rows [][]string) error {
	return printOutput(cmd.OutOrStdout(), a.format, data, headers, rows)
}

func kindArg(s string) (registry.Kind, error) {
	kind, err := registry.ParseKind(s)
	if err != nil {
		return "", fmt.Errorf("%w (expected prefix or material)", err)
	}
	return kind, nil
}

// parseValues turns NAME=VALUE arguments into a substitution map.
func parseValues(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid value %q: expected NAME=VALUE", arg)
		}
		values[name] = value
	}
	return values, nil
}
