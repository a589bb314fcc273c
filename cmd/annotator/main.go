// Annotator - command line client of the annotation portal
//
// Every command runs under the fault pipeline: failures are classified,
// written to the error log, shown to the user and then either end the
// process or return control.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/labelport/annotation_tool/pkg/annotation"
	"github.com/labelport/annotation_tool/pkg/config"
	faults "github.com/labelport/annotation_tool/pkg/errors"
	"github.com/labelport/annotation_tool/pkg/fault"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

type cliConfig struct {
	command      string
	args         []string
	configPath   string
	configOutput string
	all          bool
	limit        int
	kind         string
	resolve      string
	resolvedBy   string
	version      bool
	help         bool
}

func main() {
	cliCfg := parseFlags()

	if cliCfg.version || cliCfg.command == "version" {
		printVersion()
		return
	}

	if cliCfg.help || cliCfg.command == "help" {
		printHelp()
		return
	}

	switch cliCfg.command {
	case "init":
		runInitCommand(cliCfg)
		return
	case "validate":
		runValidateCommand(cliCfg)
		return
	case "", "run", "encrypt", "key", "complete", "errors", "submissions":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cliCfg.command)
		printHelp()
		os.Exit(2)
	}

	cfg, err := config.Load(cliCfg.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	a, err := newApp(cfg, needsPortal(cliCfg.command))
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	// SIGINT/SIGTERM stop the current command as a user interruption
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	a.pipeline.Go(ctx, func(ctx context.Context) {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal %v, stopping", sig)
			cancel(fault.ErrInterrupted)
		case <-ctx.Done():
		}
	})

	err = a.pipeline.Run(ctx, func(ctx context.Context) error {
		return dispatch(ctx, a, cliCfg)
	})
	if err != nil && fault.IsInterrupt(err) {
		a.Close()
		os.Exit(130)
	}
}

// needsPortal reports whether command talks to the portal
func needsPortal(command string) bool {
	switch command {
	case "errors", "submissions":
		return false
	}
	return true
}

func dispatch(ctx context.Context, a *app, cliCfg cliConfig) error {
	switch cliCfg.command {
	case "encrypt":
		return runEncryptCommand(ctx, a, cliCfg)
	case "key":
		return runKeyCommand(ctx, a)
	case "complete":
		return runCompleteCommand(ctx, a, cliCfg)
	case "errors":
		return runErrorsCommand(ctx, a, cliCfg)
	case "submissions":
		return runSubmissionsCommand(a)
	default:
		return runProjectsCommand(ctx, a, cliCfg)
	}
}

// runInitCommand generates an example configuration file
func runInitCommand(cliCfg cliConfig) {
	outputPath := cliCfg.configOutput
	if outputPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to determine home directory: %v", err)
		}
		outputPath = filepath.Join(homeDir, ".annotation_tool", "config.toml")
	}
	if err := config.GenerateExampleConfig(outputPath); err != nil {
		log.Fatalf("Failed to generate example config: %v", err)
	}
	log.Printf("Example configuration written to: %s", outputPath)
	log.Println("Set portal.api_url and portal.token before running commands")
}

// runValidateCommand validates the configuration
func runValidateCommand(cliCfg cliConfig) {
	cfg, err := config.Load(cliCfg.configPath)
	if err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	log.Printf("Configuration is valid")
	log.Printf("  Portal: %s", cfg.Portal.APIURL)
	log.Printf("  Data dir: %s", cfg.Storage.DataDir)
	log.Printf("  Error log: %s", cfg.LogFilePath())
	log.Printf("  Error store: %v", cfg.Errors.StoreEnabled)
	if err := cfg.RequirePortal(); err != nil {
		log.Printf("Warning: %v", err)
	}
}

// runProjectsCommand lists the projects assigned to the user
func runProjectsCommand(ctx context.Context, a *app, cliCfg cliConfig) error {
	projects, err := a.portal.Projects(ctx, !cliCfg.all)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tNAME\tASSIGNED")
	for _, p := range projects {
		fmt.Fprintf(w, "%d\t%s\t%t\n", p.UID, p.Name, p.Assigned())
	}
	return w.Flush()
}

// runEncryptCommand encrypts its argument with the portal key
func runEncryptCommand(ctx context.Context, a *app, cliCfg cliConfig) error {
	if len(cliCfg.args) != 1 {
		return faults.New(faults.KindGenericFatal, "usage: annotator encrypt <text>")
	}
	text := cliCfg.args[0]

	out, err := fault.Do(ctx, a.pipeline, fault.Scope{
		Op:      "encrypt",
		Args:    map[string]any{"bytes": len(text)},
		Message: "Unable to encrypt the text.",
	}, func(ctx context.Context) (string, error) {
		return a.encryptor.Encrypt(ctx, text)
	})
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// runKeyCommand resolves and prints the public key
func runKeyCommand(ctx context.Context, a *app) error {
	key, err := fault.Do(ctx, a.pipeline, fault.Scope{
		Op:      "public_key",
		Args:    map[string]any{"path": a.keys.Path()},
		Message: "Unable to resolve the portal public key.",
	}, a.keys.PublicKey)
	if err != nil {
		return err
	}
	fmt.Printf("Origin:      %s\n", key.Origin)
	fmt.Printf("Fingerprint: %s\n", key.Fingerprint())
	fmt.Printf("Size:        %d bits\n", key.Public.N.BitLen())
	fmt.Printf("Path:        %s\n", a.keys.Path())
	fmt.Println()
	fmt.Print(string(key.PEM))
	return nil
}

// runCompleteCommand marks a project stage as done and journals the
// submission locally
func runCompleteCommand(ctx context.Context, a *app, cliCfg cliConfig) error {
	if len(cliCfg.args) != 2 {
		return faults.New(faults.KindGenericFatal, "usage: annotator complete <project-uid> <hours>")
	}
	uid, err := strconv.Atoi(cliCfg.args[0])
	if err != nil {
		return faults.WrapWithMessage(faults.KindGenericFatal, err, "project uid must be an integer")
	}
	hours, err := strconv.ParseFloat(cliCfg.args[1], 64)
	if err != nil || hours < 0 {
		return faults.Newf(faults.KindGenericFatal, "invalid duration %q", cliCfg.args[1])
	}

	var (
		sub       *annotation.Submission
		submitErr error
	)
	err = a.pipeline.Guard(ctx, fault.Scope{
		Op:      "complete_task",
		Args:    map[string]any{"project_uid": uid, "duration_hours": hours},
		Message: fmt.Sprintf("Unable to complete project %d.", uid),
		OnError: func() {
			if sub == nil {
				return
			}
			if err := a.journal.Fail(sub, submitErr); err != nil {
				log.Printf("Warning: failed to update %s: %v", sub.Path(), err)
			}
		},
	}, func(ctx context.Context) error {
		s, err := a.journal.Begin(uid, hours)
		if err != nil {
			return err
		}
		sub = s

		if err := a.portal.CompleteTask(ctx, uid, hours); err != nil {
			submitErr = err
			return err
		}
		return a.journal.Complete(sub)
	})
	if err != nil {
		return err
	}
	log.Printf("Project %d completed (%.2f h)", uid, hours)
	return nil
}

// runSubmissionsCommand lists the local submission journal
func runSubmissionsCommand(a *app) error {
	subs, err := a.journal.List()
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		log.Printf("No submissions recorded in %s", a.journal.Dir())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tHOURS\tSTATUS\tSUBMITTED\tTRACE ID")
	for _, s := range subs {
		fmt.Fprintf(w, "%d\t%.2f\t%s\t%s\t%s\n",
			s.ProjectUID, s.Hours, s.Status,
			s.CreatedAt.Local().Format(time.DateTime), s.TraceID)
	}
	return w.Flush()
}

// runErrorsCommand lists or resolves stored faults
func runErrorsCommand(ctx context.Context, a *app, cliCfg cliConfig) error {
	if a.store == nil {
		log.Println("Error store is disabled (errors.store_enabled = false)")
		return nil
	}

	if cliCfg.resolve != "" {
		if err := a.store.Resolve(ctx, cliCfg.resolve, cliCfg.resolvedBy); err != nil {
			return fmt.Errorf("resolve %s: %w", cliCfg.resolve, err)
		}
		log.Printf("Resolved %s", cliCfg.resolve)
		return nil
	}

	stats, err := a.store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Total: %d  Unresolved: %d\n\n", stats.TotalErrors, stats.UnresolvedErrors)

	q := faults.ErrorQuery{Kind: faults.Kind(cliCfg.kind), Limit: cliCfg.limit}
	if !cliCfg.all {
		unresolved := false
		q.Resolved = &unresolved
	}
	results, err := a.store.Query(ctx, q)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRACE ID\tKIND\tSEVERITY\tCOUNT\tLAST SEEN\tMESSAGE")
	for _, e := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.TraceID, e.Kind, e.Severity, e.Occurrences,
			e.LastSeen.Local().Format(time.DateTime), e.Message)
	}
	return w.Flush()
}

func parseFlags() cliConfig {
	cfg := cliConfig{}

	flag.StringVar(&cfg.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&cfg.configOutput, "config-output", "", "Output path for 'init' command")
	flag.BoolVar(&cfg.all, "all", false, "Include projects not assigned to you / resolved errors")
	flag.IntVar(&cfg.limit, "limit", 20, "Maximum rows for 'errors' command")
	flag.StringVar(&cfg.kind, "kind", "", "Filter 'errors' by kind, e.g. WebServerApiError")
	flag.StringVar(&cfg.resolve, "resolve", "", "Mark the stored error with this trace ID as resolved")
	flag.StringVar(&cfg.resolvedBy, "resolved-by", os.Getenv("USER"), "Name recorded with -resolve")
	flag.BoolVar(&cfg.version, "version", false, "Print version and exit")
	flag.BoolVar(&cfg.help, "help", false, "Show help message")

	flag.Parse()

	// Command is the first argument after flags
	args := flag.Args()
	if len(args) > 0 {
		cfg.command = args[0]
		cfg.args = args[1:]
	}

	return cfg
}

func printVersion() {
	fmt.Printf("Annotator v%s\n", version)
	fmt.Printf("Build time: %s\n", buildTime)
}

func printHelp() {
	helpText := `USAGE:
    annotator [flags] [command] [args]

COMMANDS:
    run                       List your annotation projects (default)
    encrypt <text>            Encrypt text with the portal public key
    key                       Resolve and show the portal public key
    complete <uid> <hours>    Complete the current stage of a project
    errors                    List stored errors (-resolve <trace-id> to resolve)
    submissions               List locally recorded task completions
    init                      Write an example configuration file
    validate                  Validate configuration
    version                   Show version information
    help                      Show this help message

FLAGS:
`
	fmt.Fprint(os.Stderr, helpText)
	flag.PrintDefaults()
}
