package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/connect-flowsync/internal/flowsync"
)

const shutdownTimeout = 5 * time.Second

// operations is the slice of the flowsync provider the commands drive.
type operations interface {
	Plan(ctx context.Context, cfg *flowsync.Config) (*flowsync.Plan, error)
	Deploy(ctx context.Context, cfg *flowsync.Config) (*flowsync.Result, error)
	Export(ctx context.Context, cfg *flowsync.Config, out flowsync.DocumentStore) (*flowsync.ExportResult, error)
	Render(ctx context.Context, cfg *flowsync.Config, out flowsync.DocumentStore) ([]string, error)
	RenderReverse(ctx context.Context, cfg *flowsync.Config, body []byte) ([]byte, []string, error)
}

type app struct {
	opts   globalOptions
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	newOps func(log *slog.Logger, metrics *flowsync.Metrics) operations
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		stdin:  os.Stdin,
		newOps: func(log *slog.Logger, metrics *flowsync.Metrics) operations {
			return flowsync.NewProvider(log, metrics)
		},
	}
}

func (a *app) execute(ctx context.Context, args []string) error {
	root := a.newRootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root.ExecuteContext(ctx)
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowsync",
		Short: "Sync Amazon Connect contact flows and modules with stored documents",
		Long: `flowsync deploys the contact flows and flow modules of one capability
from JSON documents to an Amazon Connect instance, and exports live
flows back to portable documents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.opts.configPath, "config", "", "path to a YAML config file")
	f.StringVar(&a.opts.logFormat, "log-format", logFormatJSON, "log format (json or text)")
	f.StringVar(&a.opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.StringVar(&a.opts.region, "region", "", "AWS region")
	f.StringVar(&a.opts.environment, "environment", "", "deployment environment")
	f.StringVar(&a.opts.capability, "capability", "", "capability whose flows are managed")
	f.StringVar(&a.opts.ivr, "ivr", "", "IVR identifier")
	f.StringVar(&a.opts.accountID, "account", "", "AWS account ID")
	f.StringVar(&a.opts.instanceID, "instance-id", "", "Connect instance ID (looked up in SSM when empty)")
	f.StringVar(&a.opts.bucket, "bucket", "", "S3 bucket holding the documents")
	f.StringVar(&a.opts.documentsDir, "documents-dir", "", "local directory holding the documents")
	f.StringVar(&a.opts.stage, "stage", "", "stage substituted into function names (defaults to environment)")
	f.BoolVar(&a.opts.failFast, "fail-fast", false, "stop at the first document failure")
	f.BoolVar(&a.opts.skipUnchanged, "skip-unchanged", false, "skip content updates when live content already matches")
	f.StringVar(&a.opts.traceExporter, "trace-exporter", "", "span exporter (none, stdout, otlp)")
	f.StringVar(&a.opts.metricsFile, "metrics-file", "", "write run metrics to this textfile")

	root.AddCommand(
		a.newPlanCommand(),
		a.newDeployCommand(),
		a.newRenderCommand(),
		a.newExportCommand(),
		a.newVersionCommand(),
	)
	return root
}

// session carries what every operational command sets up before it runs.
type session struct {
	log     *slog.Logger
	cfg     *flowsync.Config
	metrics *flowsync.Metrics
	ops     operations
	finish  func()
}

// startSession sets up a run of op and prints the config's diagnostic
// warnings to stderr.
func (a *app) startSession(ctx context.Context, op string) (*session, error) {
	log, err := newLogger(a.stderr, a.opts.logFormat, a.opts.logLevel)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(&a.opts)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(a.stderr, flowsync.FormatWarnings(flowsync.Diagnose(cfg, op)))
	shutdown, err := setupTracing(ctx, cfg.Tracing, a.stderr, log)
	if err != nil {
		return nil, err
	}
	metrics := flowsync.NewMetrics()

	finish := func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
		if err := metrics.WriteTextfile(cfg.Metrics.File); err != nil {
			log.Warn("writing metrics failed", "file", cfg.Metrics.File, "error", err)
		}
	}
	return &session{
		log:     log,
		cfg:     cfg,
		metrics: metrics,
		ops:     a.newOps(log, metrics),
		finish:  finish,
	}, nil
}

var actionSymbols = map[string]string{
	flowsync.ActionCreate:  "+",
	flowsync.ActionUpdate:  "~",
	flowsync.ActionArchive: "-",
}

func (a *app) newPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show what a deploy would change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.startSession(cmd.Context(), flowsync.OpPlan)
			if err != nil {
				return err
			}
			defer s.finish()

			plan, err := s.ops.Plan(cmd.Context(), s.cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range plan.Changes() {
				line := fmt.Sprintf("%s %s %s", actionSymbols[c.Action], c.ResourceType, c.Name)
				if c.Detail != "" {
					line += " (" + c.Detail + ")"
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, plan.Summary())
			return nil
		},
	}
}

func (a *app) newDeployCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Converge the instance toward the stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.startSession(cmd.Context(), flowsync.OpDeploy)
			if err != nil {
				return err
			}
			defer s.finish()

			result, err := s.ops.Deploy(cmd.Context(), s.cfg)
			if result != nil {
				fmt.Fprintln(cmd.OutOrStdout(), result.Summary())
				if len(result.Errors) > 0 {
					fmt.Fprint(cmd.ErrOrStderr(), flowsync.DiagnosticSummary(result.Errors))
				}
			}
			return err
		},
	}
}

func (a *app) newRenderCommand() *cobra.Command {
	var outDir, reverse string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Resolve documents against the live inventory without deploying",
		Long: `render resolves each of the capability's documents and writes the result
to a local directory. With --reverse it applies the export transform to a
single document instead and prints it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			op := flowsync.OpRender
			if reverse != "" {
				op = flowsync.OpExport
			}
			s, err := a.startSession(cmd.Context(), op)
			if err != nil {
				return err
			}
			defer s.finish()

			if reverse != "" {
				return a.renderReverse(cmd, s, reverse)
			}
			keys, err := s.ops.Render(cmd.Context(), s.cfg, flowsync.NewDirStore(outDir))
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "rendered", "directory the resolved documents are written to")
	cmd.Flags().StringVar(&reverse, "reverse", "", "document file to export-transform, or - for stdin")
	return cmd
}

func (a *app) renderReverse(cmd *cobra.Command, s *session, file string) error {
	var body []byte
	var err error
	if file == "-" {
		body, err = io.ReadAll(a.stdin)
	} else {
		body, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	out, warnings, err := s.ops.RenderReverse(cmd.Context(), s.cfg, body)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		s.log.Warn("export warning", "detail", w)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func (a *app) newExportCommand() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export live flows and modules to portable documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.startSession(cmd.Context(), flowsync.OpExport)
			if err != nil {
				return err
			}
			defer s.finish()

			var out flowsync.DocumentStore
			if outDir != "" {
				out = flowsync.NewDirStore(outDir)
			}
			result, err := s.ops.Export(cmd.Context(), s.cfg, out)
			if err != nil {
				return err
			}
			for _, k := range result.Keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			s.log.Info("export complete", "documents", len(result.Keys), "warnings", len(result.Warnings))
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "write to this directory instead of the configured store")
	return cmd
}

func (a *app) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "flowsync %s (commit %s, built %s)\n",
				flowsync.Version, flowsync.Commit, flowsync.Date)
			return nil
		},
	}
}
