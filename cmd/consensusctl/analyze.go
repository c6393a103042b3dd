package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"consensus-backend/internal/analyses"
	"consensus-backend/internal/bootstrap"
	"consensus-backend/internal/consensus"
	"consensus-backend/internal/shared/config"
	"consensus-backend/internal/shared/telemetry"
)

var (
	analyzeFrameworks []string
	analyzeProviders  []string
	analyzeDepth      string
	analyzeFormat     string
	analyzeDemo       bool
	analyzeVerbose    bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <business description>",
	Short: "Run frameworks against providers and print the consensus",
	Long: `Analyze a business description with one or more frameworks.

Examples:
  consensusctl analyze "Subscription coffee for small offices"
  consensusctl analyze "Rooftop farm" -F swot -F pestel -p gemini
  consensusctl analyze "Food truck" --demo --format yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringSliceVarP(&analyzeFrameworks, "framework", "F", nil, "Framework id (repeatable, default swot)")
	analyzeCmd.Flags().StringSliceVarP(&analyzeProviders, "provider", "p", nil, "Provider id (repeatable, default from DEFAULT_PROVIDERS)")
	analyzeCmd.Flags().StringVarP(&analyzeDepth, "depth", "d", analyses.DefaultDepth, "Analysis depth (quick, standard, comprehensive)")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", formatText, "Output format (text, json, yaml)")
	analyzeCmd.Flags().BoolVar(&analyzeDemo, "demo", false, "Use canned provider output")
	analyzeCmd.Flags().BoolVarP(&analyzeVerbose, "verbose", "v", false, "Print structured logs to stderr")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if err := validateFormat(analyzeFormat); err != nil {
		return err
	}
	if analyzeVerbose {
		telemetry.SetOutput(os.Stderr)
	} else {
		telemetry.SetOutput(io.Discard)
	}

	cfg := config.Load()
	if analyzeDemo {
		cfg.DemoMode = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	adapters, closers, err := bootstrap.BuildAdapters(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}()

	svc := analyses.NewService(
		analyses.NewMemoryRepo(),
		consensus.NewCoordinator(adapters, consensus.NewHeuristicScorer(nil)),
		analyses.Options{
			Providers:            adapters.Names(),
			DefaultProviders:     cfg.DefaultProviders,
			FrameworkConcurrency: cfg.FrameworkConcurrency,
		},
	)

	const owner = "cli"
	job, err := svc.Create(ctx, owner, analyses.Request{
		BusinessInput: strings.Join(args, " "),
		Frameworks:    analyzeFrameworks,
		Providers:     analyzeProviders,
		Depth:         analyzeDepth,
	})
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	stopSpinner := startSpinner(stderr, fmt.Sprintf(" Analyzing %s with %s", strings.Join(job.Frameworks, ", "), strings.Join(job.Providers, ", ")))
	start := time.Now()

	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if _, err := svc.Cancel(context.Background(), owner, job.ID); err != nil {
			fmt.Fprintf(stderr, "cancel: %v\n", err)
		}
		<-done
	}
	stopSpinner()
	fmt.Fprintf(stderr, "Analysis finished in %.1fs\n\n", time.Since(start).Seconds())

	result, err := svc.Get(context.Background(), owner, job.ID)
	if err != nil {
		return err
	}
	if err := writeJob(cmd.OutOrStdout(), analyzeFormat, result); err != nil {
		return err
	}
	if result.Status == analyses.StatusFailed {
		return fmt.Errorf("analysis failed: %s", result.Error)
	}
	return nil
}

// startSpinner shows a spinner on w when it is a terminal and returns a stop
// function. It is a no-op otherwise.
func startSpinner(w io.Writer, suffix string) func() {
	f, ok := w.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = suffix
	s.Start()
	return s.Stop
}
