package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/prompt-executor/internal/config"
	"github.com/hochfrequenz/prompt-executor/internal/contract"
	"github.com/hochfrequenz/prompt-executor/internal/domain"
	"github.com/hochfrequenz/prompt-executor/internal/executor"
	"github.com/hochfrequenz/prompt-executor/internal/notify"
	"github.com/hochfrequenz/prompt-executor/internal/prompts"
	"github.com/hochfrequenz/prompt-executor/internal/retention"
	"github.com/hochfrequenz/prompt-executor/internal/runstore"
	"github.com/hochfrequenz/prompt-executor/web/api"
)

var (
	servePort      int
	runProject     string
	runProvider    string
	runVerbose     bool
	historyLimit   int
	historyStatus  string
	pruneOlderDays int
	initForce      bool
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)

	// run command
	runCmd := &cobra.Command{
		Use:   "run PROMPT",
		Short: "Execute one prompt and print the report",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&runProject, "project", "", "project name (overrides the model's)")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "provider to use (openai, anthropic, static)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "print stage transitions")
	rootCmd.AddCommand(runCmd)

	// validate command
	validateCmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a JSON document against the output contract",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	rootCmd.AddCommand(validateCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status (running, succeeded, failed)")
	rootCmd.AddCommand(historyCmd)

	// show command
	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	rootCmd.AddCommand(showCmd)

	// prune command
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old run history (generated projects are kept)",
		RunE:  runPrune,
	}
	pruneCmd.Flags().IntVar(&pruneOlderDays, "older-than-days", 0, "age cutoff in days (default from config)")
	rootCmd.AddCommand(pruneCmd)

	// init-config command
	initCmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a default config file",
		RunE:  runInitConfig,
	}
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithLocalFallback(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the run history. History is advisory, so callers that
// can run without it get nil and a log line instead of an error.
func openStore(cfg *config.Config) *runstore.Store {
	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		log.Printf("[history] disabled: %v", err)
		return nil
	}
	return store
}

// newRunNotifier returns nil when no notification channel is configured
func newRunNotifier(cfg *config.Config) *notify.RunNotifier {
	if !cfg.Notify.Enabled() {
		return nil
	}
	return notify.NewRunNotifier(notify.NewMultiNotifier(
		notify.NewSlackNotifier(cfg.Notify.SlackWebhookURL),
		notify.NewDesktopNotifier(cfg.Notify.Desktop),
	))
}

func observeWith(rn *notify.RunNotifier) executor.Observer {
	if rn == nil {
		return nil
	}
	return rn.Observe
}

func buildExecutor(cfg *config.Config, loader *prompts.Loader, store *runstore.Store, observer executor.Observer) (*executor.Executor, error) {
	validator, err := contract.Load(cfg.Contract.SchemaPath)
	if err != nil {
		return nil, err
	}

	opts := executor.Options{
		OutputDir: cfg.General.OutputDir,
		Validator: validator,
		Prompts:   loader,
		Providers: executor.NewProviderFactory(cfg.LLM),
		Observer:  observer,
	}
	if store != nil {
		opts.Recorder = store
	}
	return executor.New(opts)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Web.Port = servePort
	}

	store := openStore(cfg)
	if store != nil {
		defer store.Close()
	}

	loader := prompts.DefaultLoader(cfg.Prompts.OverrideDir)
	hub := api.NewEventHub()

	runNotifier := newRunNotifier(cfg)
	exec, err := buildExecutor(cfg, loader, store, executor.Observers(hub.PublishStage, observeWith(runNotifier)))
	if err != nil {
		return err
	}
	if runNotifier != nil {
		defer runNotifier.Wait()
	}

	opts := api.Options{
		Addr:      cfg.Web.Addr(),
		Executor:  exec,
		Hub:       hub,
		StaticDir: cfg.General.StaticDir,
	}
	if store != nil {
		opts.Runs = store
	}
	server := api.NewServer(opts)

	var sched *retention.Scheduler
	if policy := retention.PolicyFromConfig(cfg.Retention); store != nil && policy.Enabled() {
		if sched, err = retention.NewScheduler(policy, store); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(ctx)
	})

	if sched != nil {
		g.Go(func() error {
			return sched.Run(ctx)
		})
	}

	watcher, err := prompts.NewWatcher(loader)
	if err != nil {
		log.Printf("[prompts] hot reload disabled: %v", err)
	} else {
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	fmt.Printf("Serving %s on http://%s\n", exec.OutputDir(), cfg.Web.Addr())
	return g.Wait()
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := openStore(cfg)
	if store != nil {
		defer store.Close()
	}

	var observer executor.Observer
	if runVerbose {
		observer = func(ev executor.Event) {
			if ev.Error != "" {
				fmt.Fprintf(os.Stderr, "%s  %s: %s\n", ev.RunID[:8], ev.Stage, ev.Error)
				return
			}
			fmt.Fprintf(os.Stderr, "%s  %s\n", ev.RunID[:8], ev.Stage)
		}
	}

	runNotifier := newRunNotifier(cfg)
	exec, err := buildExecutor(cfg, prompts.DefaultLoader(cfg.Prompts.OverrideDir), store, executor.Observers(observer, observeWith(runNotifier)))
	if err != nil {
		return err
	}
	if runNotifier != nil {
		defer runNotifier.Wait()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := exec.Execute(ctx, executor.Request{
		Prompt:      args[0],
		ProjectName: runProject,
		Provider:    runProvider,
	})
	if err != nil {
		var execErr *executor.Error
		if errors.As(err, &execErr) {
			printExecError(execErr)
			return fmt.Errorf("run failed (%s at %s)", execErr.Kind, execErr.Stage)
		}
		return err
	}
	return printJSON(report)
}

func printExecError(e *executor.Error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", e.Message)
	if e.Details != "" {
		fmt.Fprintf(os.Stderr, "Details: %s\n", e.Details)
	}
	if e.Raw != "" {
		fmt.Fprintf(os.Stderr, "Raw model output:\n%s\n", e.Raw)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	validator, err := contract.Load(cfg.Contract.SchemaPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	data, err := contract.Decode(raw)
	if err != nil {
		return fmt.Errorf("%s is not valid JSON: %w", args[0], err)
	}
	contract.SanitizePaths(data)

	result := validator.Validate(data)
	if !result.OK() {
		fmt.Printf("Contract %s violations:\n  %s\n", contract.Version, result.Errors)
		return fmt.Errorf("%s failed validation", args[0])
	}

	fmt.Printf("OK: %d files", len(result.Value.Files))
	if result.Value.ProjectName != "" {
		fmt.Printf(" for %q", result.Value.ProjectName)
	}
	fmt.Println()
	for _, f := range result.Value.Files {
		fmt.Printf("  %s (%d bytes)\n", f.Path, len(f.Contents))
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runstore.ListOptions{
		Status: domain.RunStatus(historyStatus),
		Limit:  historyLimit,
	})
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tSTAGE\tPROJECT\tFILES\tPROVIDER")
	for _, r := range runs {
		project := r.Slug
		if project == "" {
			project = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Status, r.Stage, project, r.FilesWritten, r.Provider)
	}
	w.Flush()

	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.GetRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", r.ID)
	fmt.Printf("Status:   %s (%s)\n", r.Status, r.Stage)
	fmt.Printf("Provider: %s\n", r.Provider)
	fmt.Printf("Created:  %s\n", r.CreatedAt.Local().Format(time.RFC3339))
	if r.FinishedAt != nil {
		fmt.Printf("Duration: %s\n", r.Duration().Round(time.Millisecond))
	}
	if r.Slug != "" {
		fmt.Printf("Project:  %s (%d files)\n", r.Slug, r.FilesWritten)
	}
	if r.Error != "" {
		fmt.Printf("Error:    %s\n", r.Error)
	}
	fmt.Printf("\nPrompt:\n%s\n", r.Prompt)
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	policy := retention.PolicyFromConfig(cfg.Retention)
	if pruneOlderDays > 0 {
		policy.MaxAgeDays = pruneOlderDays
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.PruneBefore(policy.Cutoff(time.Now()))
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d runs older than %d days.\n", n, policy.MaxAgeDays)
	return nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
