package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/browser"
	"github.com/lotas/tabgruppen/internal/category"
	"github.com/lotas/tabgruppen/internal/export"
	"github.com/lotas/tabgruppen/internal/firefox"
	"github.com/lotas/tabgruppen/internal/metadata"
	"github.com/lotas/tabgruppen/internal/model"
	"github.com/lotas/tabgruppen/internal/organize"
	"github.com/lotas/tabgruppen/internal/reconcile"
	"github.com/lotas/tabgruppen/internal/storage"
	"github.com/lotas/tabgruppen/internal/types"
)

func main() {
	if home, err := os.UserHomeDir(); err == nil {
		applog.Init(filepath.Join(home, ".local", "share", "tabgruppen"))
		defer applog.Close()
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "organize":
			runOrganize(os.Args[2:])
			return
		case "cleanup":
			runCleanup(os.Args[2:])
			return
		case "history":
			runHistory(os.Args[2:])
			return
		case "vocab":
			runVocab()
			return
		case "profiles":
			runProfiles()
			return
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}

	printHelp()
}

func printHelp() {
	fmt.Print(`tabgruppen — sort browser tabs into named, colored groups

Usage:
  tabgruppen organize                                  Classify tabs and group them
    --profile <name>       Firefox profile (offline source, implies --dry-run)
    --port <n>             WebSocket port for the extension (default: 19192)
    --max-groups <n>       Maximum number of groups (default: 8)
    --model <name>         Ollama model (env: TABGRUPPEN_MODEL, default: llama3.2)
    --retry-budget <n>     Retries on malformed model output (default: 3)
    --strategy <s>         Duplicate cleanup: incremental or nuclear (default: incremental)
    --heuristic            Skip the model, use pattern matching only
    --fetch-meta           Fetch page metadata before classifying
    --dry-run              Print the proposed grouping, change nothing
    --format <f>           Dry-run output: text, json or markdown (default: text)

  tabgruppen cleanup                                   Collapse duplicate-named groups
    --port <n>             WebSocket port for the extension (default: 19192)
    --strategy <s>         incremental or nuclear (default: incremental)

  tabgruppen history                                   List past runs
    --limit <n>            Number of runs to show (default: 20)

  tabgruppen vocab                                     List category names and colors
  tabgruppen profiles                                  List Firefox profiles

Environment:
  TABGRUPPEN_PROFILE     Default Firefox profile (overridden by --profile)
  TABGRUPPEN_MODEL       Default Ollama model (overridden by --model)
  OLLAMA_HOST            Ollama server URL (default: http://localhost:11434)
`)
}

func runOrganize(args []string) {
	fs := flag.NewFlagSet("organize", flag.ExitOnError)
	profileName := fs.String("profile", "", "Firefox profile name (offline source)")
	port := fs.Int("port", 19192, "WebSocket port for the extension")
	maxGroups := fs.Int("max-groups", organize.DefaultMaxGroups, "Maximum number of groups")
	modelName := fs.String("model", "", "Ollama model name")
	retryBudget := fs.Int("retry-budget", model.DefaultRetryBudget, "Retries on malformed model output")
	strategyFlag := fs.String("strategy", "incremental", "Duplicate cleanup strategy")
	heuristicOnly := fs.Bool("heuristic", false, "Skip the model, use pattern matching only")
	fetchMeta := fs.Bool("fetch-meta", false, "Fetch page metadata before classifying")
	dryRun := fs.Bool("dry-run", false, "Print the proposed grouping, change nothing")
	format := fs.String("format", "text", "Dry-run output format: text, json or markdown")
	fs.Parse(args)

	strategy, err := reconcile.ParseStrategy(*strategyFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// A profile means the session file is the tab source; we cannot
	// mutate a browser we are not connected to.
	offline := *profileName != "" || os.Getenv("TABGRUPPEN_PROFILE") != ""
	if offline {
		*dryRun = true
	}

	ctx := context.Background()

	var tabs []*types.Tab
	var host reconcile.Host
	profile := ""
	if offline {
		session, err := resolveSession(resolveProfileName(*profileName))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		tabs = session.Tabs
		profile = session.Profile.Name
	} else {
		bridge, cancel, err := connect(ctx, *port)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cancel()
		host = bridge

		tabs, err = bridge.QueryTabs(ctx, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying tabs: %v\n", err)
			os.Exit(1)
		}
	}

	if len(tabs) == 0 {
		fmt.Println("No tabs to organize.")
		return
	}

	if *fetchMeta {
		fmt.Fprintf(os.Stderr, "Fetching metadata for %d tabs...\n", len(tabs))
		ex := &metadata.Extractor{}
		ex.Enrich(ctx, tabs)
	}

	var classifier organize.Classifier = organize.Heuristic{}
	resolvedModel := ""
	if !*heuristicOnly {
		resolvedModel = resolveModel(*modelName)
		classifier = &model.Classifier{
			Host:        resolveOllamaHost(),
			Model:       resolvedModel,
			RetryBudget: *retryBudget,
			OnProgress: func(percent int, stage string) {
				fmt.Fprintf(os.Stderr, "\r%3d%% %s    ", percent, stage)
				if percent == 100 {
					fmt.Fprintln(os.Stderr)
				}
			},
		}
	}

	db, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: run history unavailable: %v\n", err)
	} else {
		defer db.Close()
	}

	session := &organize.Session{
		Classifier: classifier,
		Host:       host,
		Strategy:   strategy,
		MaxGroups:  *maxGroups,
		DB:         db,
		Profile:    profile,
		Model:      resolvedModel,
		DryRun:     *dryRun,
	}

	report, err := session.Run(ctx, tabs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		tabsByID := make(map[int]*types.Tab, len(tabs))
		for _, t := range tabs {
			tabsByID[t.ID] = t
		}
		switch *format {
		case "json":
			out, err := export.JSON(report.Result, tabsByID, profile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Print(out)
			return
		case "markdown":
			fmt.Print(export.Markdown(report.Result, tabsByID, profile))
			return
		default:
			fmt.Print(organize.FormatDryRun(report.Result, tabsByID))
			fmt.Println()
		}
	}
	fmt.Println(report.Status())
}

func runCleanup(args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	port := fs.Int("port", 19192, "WebSocket port for the extension")
	strategyFlag := fs.String("strategy", "incremental", "Duplicate cleanup strategy")
	fs.Parse(args)

	strategy, err := reconcile.ParseStrategy(*strategyFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	bridge, cancel, err := connect(ctx, *port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cancel()

	tabs, err := bridge.QueryTabs(ctx, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying tabs: %v\n", err)
		os.Exit(1)
	}

	windows := map[int]bool{}
	for _, t := range tabs {
		windows[t.WindowID] = true
	}
	ids := make([]int, 0, len(windows))
	for w := range windows {
		ids = append(ids, w)
	}
	sort.Ints(ids)

	r := &reconcile.Reconciler{Host: bridge, Strategy: strategy}
	total := 0
	for _, windowID := range ids {
		n, err := r.CleanupDuplicates(ctx, windowID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Window %d: %v\n", windowID, err)
			continue
		}
		total += n
	}
	fmt.Printf("Removed %d duplicate groups.\n", total)
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of runs to show")
	fs.Parse(args)

	db, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	runs, err := storage.ListRuns(db, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing runs: %v\n", err)
		os.Exit(1)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return
	}

	fmt.Printf("%-4s %5s %6s  %-10s %-12s  %s\n", "ID", "TABS", "GROUPS", "MODE", "PROFILE", "CREATED")
	for _, r := range runs {
		mode := r.Mode
		if r.Fallback {
			mode += "*"
		}
		if r.DryRun {
			mode += " (dry)"
		}
		fmt.Printf("%4d %5d %6d  %-10s %-12s  %s\n",
			r.ID, r.TabCount, len(r.Groups), mode, r.Profile,
			r.CreatedAt.Format("2006-01-02 15:04"))
	}
}

func runVocab() {
	for _, name := range category.Names() {
		fmt.Printf("%-15s %s\n", name, category.Color(name))
	}
}

func runProfiles() {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error discovering Firefox profiles: %v\n", err)
		os.Exit(1)
	}
	if len(profiles) == 0 {
		fmt.Fprintln(os.Stderr, "No Firefox profiles found.")
		os.Exit(1)
	}

	for _, p := range profiles {
		suffix := ""
		if p.IsDefault {
			suffix = " [default]"
		}
		fmt.Printf("%s (%s)%s\n", p.Name, p.Path, suffix)
	}
}

// connect starts the bridge and waits for the extension.
func connect(ctx context.Context, port int) (*browser.Bridge, context.CancelFunc, error) {
	bridge := browser.New(port)
	srvCtx, cancel := context.WithCancel(ctx)

	go func() {
		if err := bridge.ListenAndServe(srvCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error("bridge.serve", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "Waiting for extension on port %d...\n", port)
	waitCtx, waitCancel := context.WithTimeout(ctx, 60*time.Second)
	defer waitCancel()
	if err := bridge.WaitForConnection(waitCtx); err != nil {
		cancel()
		return nil, nil, err
	}
	fmt.Fprintln(os.Stderr, "Extension connected.")
	return bridge, cancel, nil
}

// resolveSession discovers profiles and reads session data for the given
// profile name. If profileName is empty, it uses the default profile,
// falling back to the first profile found.
func resolveSession(profileName string) (*types.Session, error) {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		return nil, fmt.Errorf("discover profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no Firefox profiles found")
	}

	var profile types.Profile
	if profileName != "" {
		found := false
		for _, p := range profiles {
			if p.Name == profileName {
				profile = p
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("profile %q not found", profileName)
		}
	} else {
		profile = profiles[0]
		for _, p := range profiles {
			if p.IsDefault {
				profile = p
				break
			}
		}
	}

	session, err := firefox.ReadSessionFile(profile.Path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	session.Profile = profile
	return session, nil
}

func openDB() (*sql.DB, error) {
	dbPath, err := storage.DefaultDBPath()
	if err != nil {
		return nil, err
	}
	return storage.OpenDB(dbPath)
}

// resolveProfileName returns the profile name from the flag if set,
// otherwise falls back to the TABGRUPPEN_PROFILE environment variable.
func resolveProfileName(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("TABGRUPPEN_PROFILE")
}

// resolveModel resolves flag > env > default.
func resolveModel(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("TABGRUPPEN_MODEL"); env != "" {
		return env
	}
	return "llama3.2"
}

func resolveOllamaHost() string {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		return host
	}
	return "http://localhost:11434"
}
