// Package main is the entscheid CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/entscheid/internal/cli"
	"github.com/hyperjump/entscheid/internal/config"
	"github.com/hyperjump/entscheid/internal/models"
	"github.com/hyperjump/entscheid/internal/server"
	"github.com/hyperjump/entscheid/internal/storage"
	"github.com/hyperjump/entscheid/internal/telemetry"
	"github.com/hyperjump/entscheid/internal/tools"
	"github.com/hyperjump/entscheid/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/entscheid/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "mcp":
		runMCP()
	case "search":
		runSearch()
	case "details":
		runDetails()
	case "related":
		runRelated()
	case "call":
		runCall()
	case "cache":
		runCache()
	case "stats":
		runStats()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("entscheid version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads config, builds the logger and installs tracing.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger, telemetry.Shutdown) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	shutdown, err := telemetry.Setup(context.Background(), cfg.Telemetry, version, os.Stderr, logger)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	}
	return cfg, resolved, logger, shutdown
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger, shutdownTracing := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedConfigPath), zap.Bool("debug", cfg.Debug || *debug))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	go runMaintenance(ctx, components, cfg, logger)

	srv := server.NewServer(
		components.Tools,
		components.Store,
		components.Cache,
		components.Store,
		&cfg.Server,
		logger,
		server.WithIndex(components.Index),
		server.WithSources(components.SourceNames()),
		server.WithDiskUsage(func() (storage.DiskUsage, error) {
			return components.Store.Usage(cfg.Storage.IndexPath)
		}),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = srv.Stop(stopCtx)
	_ = shutdownTracing(stopCtx)
}

func runMCP() {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (stderr)")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger, shutdownTracing := setup(*configPath, *debug)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	go runMaintenance(ctx, components, cfg, logger)

	logger.Info("Serving MCP over stdio", zap.String("name", cfg.MCP.Name), zap.String("version", cfg.MCP.Version))
	mcpServer := tools.NewMCPServer(components.Tools, cfg.MCP.Name, cfg.MCP.Version)
	if err := tools.ServeStdio(ctx, mcpServer); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("MCP server stopped", zap.Error(err))
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	_ = shutdownTracing(stopCtx)
}

// toolFlags are the flags shared by commands that invoke a tool.
type toolFlags struct {
	configPath *string
	serverURL  *string
	output     *string
}

func addToolFlags(fs *flag.FlagSet) toolFlags {
	return toolFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path (direct mode)"),
		serverURL:  fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)"),
		output:     fs.String("output", "text", "output format: text or json"),
	}
}

func (f toolFlags) format() cli.OutputFormat {
	format, err := cli.ParseOutputFormat(*f.output)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

// invokeTool runs a tool through the HTTP API when a server URL is set, and
// in-process otherwise. Both paths decode the same JSON result.
func invokeTool[Out any](f toolFlags, name string, input any) (*Out, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	var body []byte
	if *f.serverURL != "" {
		body, err = postJSON(strings.TrimRight(*f.serverURL, "/")+"/api/v1/tools/"+name, raw)
	} else {
		body, err = callDirect(*f.configPath, name, raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	var out Out
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", name, err)
	}
	return &out, nil
}

func callDirect(configPath, name string, raw json.RawMessage) ([]byte, error) {
	cfg, _, logger, shutdownTracing := setup(configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	defer func() { _ = shutdownTracing(ctx) }()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	res, err := components.Tools.Call(ctx, name, raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// mustInvoke is invokeTool for commands that exit on failure.
func mustInvoke[Out any](f toolFlags, name string, input any) *Out {
	out, err := invokeTool[Out](f, name, input)
	if err != nil {
		fatalf("%v", err)
	}
	return out
}

func postJSON(url string, body []byte) ([]byte, error) {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return readResponse(resp)
}

func getJSON(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return readResponse(resp)
}

func readResponse(resp *http.Response) ([]byte, error) {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return b, nil
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: entscheid search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  entscheid search Mietzins Anfechtung
  entscheid search --canton ZH,BE --from 2020-01-01 Kündigung
  entscheid search --court-level federal --area Mietrecht --output json Kündigung
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them. Go's flag package stops
// at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	tf := addToolFlags(fs)
	cantons := fs.String("canton", "", "comma-separated canton codes, e.g. ZH,BE")
	level := fs.String("court-level", "", "federal, cantonal or all")
	lang := fs.String("lang", "", "decision language: de, fr, it, rm or en")
	from := fs.String("from", "", "earliest decision date (YYYY-MM-DD)")
	to := fs.String("to", "", "latest decision date (YYYY-MM-DD)")
	areas := fs.String("area", "", "comma-separated legal areas")
	limit := fs.Int("limit", 10, "number of results")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := tf.format()
	input := tools.SearchDecisionsInput{
		Query:      query,
		CourtLevel: *level,
		Cantons:    splitList(strings.ToUpper(*cantons)),
		Language:   *lang,
		DateFrom:   *from,
		DateTo:     *to,
		LegalAreas: splitList(*areas),
		Limit:      *limit,
	}
	res := mustInvoke[tools.SearchResult](tf, tools.ToolSearchDecisions, input)
	if err := cli.WriteSearchResults(os.Stdout, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runDetails() {
	fs := flag.NewFlagSet("details", flag.ExitOnError)
	tf := addToolFlags(fs)
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() != 1 {
		fatalf("Usage: entscheid details [flags] <decision-id>")
	}
	format := tf.format()
	res := mustInvoke[tools.DetailsResult](tf, tools.ToolDecisionDetails, tools.DecisionDetailsInput{DecisionID: fs.Arg(0)})
	if err := cli.WriteDecision(os.Stdout, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runRelated() {
	fs := flag.NewFlagSet("related", flag.ExitOnError)
	tf := addToolFlags(fs)
	limit := fs.Int("limit", 10, "number of related decisions")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() != 1 {
		fatalf("Usage: entscheid related [flags] <decision-id>")
	}
	format := tf.format()
	res := mustInvoke[tools.RelatedResult](tf, tools.ToolRelatedDecisions,
		tools.RelatedDecisionsInput{DecisionID: fs.Arg(0), Limit: *limit})
	if err := cli.WriteRelated(os.Stdout, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// runCall invokes any tool with JSON arguments and prints the JSON result.
func runCall() {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	tf := addToolFlags(fs)
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fatalf("Usage: entscheid call [flags] <tool> ['<json arguments>']")
	}
	args := json.RawMessage("{}")
	if fs.NArg() == 2 {
		args = json.RawMessage(fs.Arg(1))
		if !json.Valid(args) {
			fatalf("Arguments are not valid JSON")
		}
	}
	res := mustInvoke[json.RawMessage](tf, fs.Arg(0), args)
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, *res, "", "  "); err != nil {
		fatalf("Output failed: %v", err)
	}
	fmt.Println(pretty.String())
}

func runCache() {
	if len(os.Args) < 3 {
		fatalf("Usage: entscheid cache <stats|cleanup|clear> [flags]")
	}
	action := os.Args[2]
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[3:])

	cfg, _, logger, _ := setup(*configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	store, cache, err := openStorage(ctx, cfg)
	if err != nil {
		fatalf("%v", err)
	}
	defer store.Close()

	switch action {
	case "stats":
		stats, err := cache.Stats(ctx)
		if err != nil {
			fatalf("Cache stats failed: %v", err)
		}
		fmt.Printf("Entries: %d (%d expired)\n", stats.Total, stats.Expired)
		for _, typ := range sortedKeys(stats.ByType) {
			fmt.Printf("  %-10s %d\n", typ, stats.ByType[typ])
		}
	case "cleanup":
		n, err := cache.Cleanup(ctx)
		if err != nil {
			fatalf("Cache cleanup failed: %v", err)
		}
		fmt.Printf("Removed %d expired entries\n", n)
	case "clear":
		if err := cache.Clear(ctx); err != nil {
			fatalf("Cache clear failed: %v", err)
		}
		fmt.Println("Cache cleared")
	default:
		fatalf("Unknown cache action %q; use stats, cleanup or clear", action)
	}
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 10, "number of popular queries")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger, _ := setup(*configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	store, _, err := openStorage(ctx, cfg)
	if err != nil {
		fatalf("%v", err)
	}
	defer store.Close()

	popular, err := store.PopularQueries(ctx, *limit)
	if err != nil {
		fatalf("Popular queries failed: %v", err)
	}
	byType, err := store.QueryCountsByType(ctx)
	if err != nil {
		fatalf("Query counts failed: %v", err)
	}
	avg, err := store.AverageExecutionTime(ctx, "")
	if err != nil {
		fatalf("Average execution time failed: %v", err)
	}
	writeQueryStats(os.Stdout, popular, byType, avg)
}

func writeQueryStats(w io.Writer, popular []models.PopularQuery, byType map[string]int64, avgMs float64) {
	fmt.Fprintf(w, "Average execution time: %.1fms\n", avgMs)
	fmt.Fprintln(w, "Queries by tool:")
	for _, typ := range sortedKeys(byType) {
		fmt.Fprintf(w, "  %-36s %d\n", typ, byType[typ])
	}
	fmt.Fprintln(w, "Popular queries:")
	for i, p := range popular {
		fmt.Fprintf(w, "  %2d. %s (%d)\n", i+1, p.QueryText, p.Count)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Decisions        int64    `json:"decisions"`
	IndexedDecisions *uint64  `json:"indexed_decisions,omitempty"`
	CacheEntries     int64    `json:"cache_entries"`
	Sources          []string `json:"sources"`
	Tools            int      `json:"tools"`
	DiskUsageBytes   *int64   `json:"disk_usage_bytes,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	tf := addToolFlags(fs)
	_ = fs.Parse(os.Args[2:])
	format := tf.format()

	var status statusResponse
	if *tf.serverURL != "" {
		body, err := getJSON(strings.TrimRight(*tf.serverURL, "/") + "/api/v1/status")
		if err != nil {
			fatalf("Status failed: %v", err)
		}
		if err := json.Unmarshal(body, &status); err != nil {
			fatalf("Decode response: %v", err)
		}
	} else {
		status = directStatus(*tf.configPath)
	}

	if format == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, status)
		return
	}
	writeStatus(os.Stdout, &status)
}

func directStatus(configPath string) statusResponse {
	cfg, _, logger, _ := setup(configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	defer components.Close()

	count, err := components.Store.CountAll(ctx)
	if err != nil {
		fatalf("Count decisions failed: %v", err)
	}
	stats, err := components.Cache.Stats(ctx)
	if err != nil {
		fatalf("Cache stats failed: %v", err)
	}
	status := statusResponse{
		Decisions:    count,
		CacheEntries: stats.Total,
		Sources:      components.SourceNames(),
		Tools:        len(tools.Tools()),
	}
	if n, err := components.Index.DocCount(); err == nil {
		status.IndexedDecisions = &n
	}
	if u, err := components.Store.Usage(cfg.Storage.IndexPath); err == nil {
		total := u.Total()
		status.DiskUsageBytes = &total
	}
	return status
}

func writeStatus(w io.Writer, s *statusResponse) {
	fmt.Fprintf(w, "Decisions:     %d\n", s.Decisions)
	if s.IndexedDecisions != nil {
		fmt.Fprintf(w, "Indexed:       %d\n", *s.IndexedDecisions)
	}
	fmt.Fprintf(w, "Cache entries: %d\n", s.CacheEntries)
	sources := "none"
	if len(s.Sources) > 0 {
		sources = strings.Join(s.Sources, ", ")
	}
	fmt.Fprintf(w, "Sources:       %s\n", sources)
	fmt.Fprintf(w, "Tools:         %d\n", s.Tools)
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk usage:    %s\n", formatBytes(*s.DiskUsageBytes))
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func printUsage() {
	fmt.Println(`entscheid - Swiss court decision search and precedent analytics

Usage:
  entscheid server [flags]                Start the HTTP API
  entscheid mcp [flags]                   Serve the tools over MCP (stdio)
  entscheid search [flags] <query>        Search federal and cantonal decisions
  entscheid details [flags] <id>          Show one decision
  entscheid related [flags] <id>          List decisions related through citations
  entscheid call [flags] <tool> [json]    Invoke any tool with JSON arguments
  entscheid cache <stats|cleanup|clear>   Inspect or clear the cache
  entscheid stats [flags]                 Show search-log statistics
  entscheid status [flags]                Show store, index and source status
  entscheid version                       Show version
  entscheid help                          Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/entscheid/config.yaml, or ./config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --output string    Output format: text or json (default: text)

Search Flags:
  --canton string        Comma-separated canton codes (ZH,BE,...)
  --court-level string   federal, cantonal or all
  --lang string          de, fr, it, rm or en
  --from, --to string    Decision date range (YYYY-MM-DD)
  --area string          Comma-separated legal areas
  --limit int            Number of results (default: 10, max 100)

Tools:
  search_decisions, search_canton, get_related_decisions, get_decision_details,
  analyze_precedent_success_rate, find_similar_cases, get_legal_provision_interpretation

Examples:
  entscheid server
  entscheid search --canton ZH Mietzins Anfechtung
  entscheid details "BG-4A_12/2023"
  entscheid related --limit 5 "BG-4A_12/2023"
  entscheid call analyze_precedent_success_rate '{"legal_area":"Mietrecht"}'
  entscheid status --output json`)
}
