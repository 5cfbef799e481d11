// Command deepresearch runs a parallel multi-agent web research session from
// the terminal and prints the merged report.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"deepresearch/internal/config"
	"deepresearch/internal/errors"
	"deepresearch/internal/logging"
	"deepresearch/internal/research"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold).SprintFunc()
	okColor     = color.New(color.FgGreen).SprintFunc()
	warnColor   = color.New(color.FgYellow).SprintFunc()
	failColor   = color.New(color.FgRed).SprintFunc()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failColor(err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath    string
		debug         bool
		printConfig   bool
		maxObjectives int
		maxRounds     int
		deadline      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "deepresearch [query...]",
		Short: "Parallel multi-agent web research",
		Long: `deepresearch decomposes a question into parallel research objectives,
runs one research agent per objective, and merges their findings into a
single report with sources.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printConfig {
				example, err := config.ExampleYAML()
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), example)
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("a research query is required")
			}
			query := strings.Join(args, " ")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if debug {
				cfg.Debug = true
			}
			if cmd.Flags().Changed("max-objectives") {
				cfg.MaxObjectives = maxObjectives
			}
			if cmd.Flags().Changed("max-rounds") {
				cfg.MaxRounds = maxRounds
			}
			if cmd.Flags().Changed("deadline") {
				cfg.Deadline = deadline
			}

			return runResearch(cmd, cfg, query)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "verbose logging and run metrics")
	cmd.Flags().BoolVar(&printConfig, "print-config", false, "print the default config as YAML and exit")
	cmd.Flags().IntVar(&maxObjectives, "max-objectives", 0, "maximum parallel objectives (2-5)")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "maximum research rounds per objective")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "soft wall-clock budget for the run (0 = none)")
	return cmd
}

// progressPrinter writes one line per pipeline event to stderr.
type progressPrinter struct{}

func (progressPrinter) Notify(event research.Event) {
	switch event.Stage {
	case "goal":
		fmt.Fprintf(os.Stderr, "%s %s\n", headerColor("goal:"), event.Message)
	case "objectives":
		fmt.Fprintf(os.Stderr, "%s %s\n", headerColor("plan:"), event.Message)
	case "round":
		fmt.Fprintf(os.Stderr, "  [%d] %s\n", event.Index+1, event.Message)
	case "synthesis":
		fmt.Fprintln(os.Stderr, headerColor("synthesizing report..."))
	}
}

func runResearch(cmd *cobra.Command, cfg *config.Config, query string) error {
	logger := logging.New(os.Stderr, "deepresearch", cfg.Debug)

	engine, err := research.NewEngine(cfg,
		research.WithLogger(logger),
		research.WithNotifier(progressPrinter{}),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := engine.Run(ctx, query)
	if runErr != nil {
		if errors.IsTotalFailure(runErr) && result != nil {
			printFailure(result)
			if cfg.Debug {
				fmt.Fprintln(os.Stderr, result.Metrics.Format())
			}
		}
		return runErr
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Report.Markdown())
	printStatus(result)
	if cfg.Debug {
		fmt.Fprintln(os.Stderr, result.Metrics.Format())
	}
	return nil
}

func printStatus(result *research.RunResult) {
	ok := len(result.Results) - len(result.Degraded()) - len(result.Failed())
	fmt.Fprintf(os.Stderr, "\n%s %s, %s, %s in %v\n",
		headerColor("done:"),
		okColor(fmt.Sprintf("%d ok", ok)),
		warnColor(fmt.Sprintf("%d degraded", len(result.Degraded()))),
		failColor(fmt.Sprintf("%d failed", len(result.Failed()))),
		result.Elapsed.Round(time.Millisecond))
}

func printFailure(result *research.RunResult) {
	fmt.Fprintf(os.Stderr, "%s research failed for %q\n", failColor("error:"), result.Query)
	for _, r := range result.Results {
		reason := "no findings produced"
		if r.Err != nil {
			reason = r.Err.Error()
		}
		fmt.Fprintf(os.Stderr, "  [%d] %s: %s\n", r.Index+1, r.Objective, reason)
	}
}
