package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	errs "github.com/PentesterFlow/SiteMapper/internal/errors"
	"github.com/PentesterFlow/SiteMapper/internal/extract"
	"github.com/PentesterFlow/SiteMapper/internal/logger"
	"github.com/PentesterFlow/SiteMapper/internal/queue"
	"github.com/PentesterFlow/SiteMapper/internal/shutdown"
	"github.com/PentesterFlow/SiteMapper/internal/state"
	"github.com/PentesterFlow/SiteMapper/pkg/crawler"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Crawl flags
	mode            string
	outputFile      string
	maxChildren     int
	queryPolicy     string
	order           string
	engine          string
	headless        bool
	timeout         int
	noInteraction   bool
	excludePatterns []string
	excludeGlobs    []string
	stateFile       string
	streamFile      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sitemapper",
		Short: "SiteMapper - browser-driven sitemap crawler",
		Long: `SiteMapper - discovers the pages of a web application by driving a headless browser.

Client-rendered single page applications are rendered, waited on and scrolled
before their links are harvested. Results are written as a JSON sitemap.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	crawlCmd := &cobra.Command{
		Use:   "crawl <url> [max-depth]",
		Short: "Crawl a target URL",
		Long:  "Crawl a target URL and write every reachable same-origin page to a JSON sitemap.",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runCrawl,
	}

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume an interrupted crawl",
		Long:  "Resume a previously interrupted crawl from a saved state file.",
		RunE:  runResume,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show crawl status",
		Long:  "Show the progress recorded in a saved state file.",
		RunE:  runStatus,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sitemapper %s\n", version)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Crawl flags
	crawlCmd.Flags().StringVarP(&mode, "mode", "m", string(crawler.ModeSPA), "Preset: spa or general")
	crawlCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Sitemap output file (default depends on mode)")
	crawlCmd.Flags().IntVar(&maxChildren, "max-children", crawler.DefaultMaxChildren, "Links followed per page (0 = unlimited)")
	crawlCmd.Flags().StringVar(&queryPolicy, "query-policy", "strip", "Query strings: strip or keep")
	crawlCmd.Flags().StringVar(&order, "order", "depth-first", "Traversal order: depth-first or breadth-first")
	crawlCmd.Flags().StringVar(&engine, "engine", "rod", "Browser engine: rod or chromedp")
	crawlCmd.Flags().BoolVar(&headless, "headless", true, "Run the browser headless")
	crawlCmd.Flags().IntVarP(&timeout, "timeout", "t", 30, "Navigation timeout in seconds")
	crawlCmd.Flags().BoolVar(&noInteraction, "no-interaction", false, "Skip scrolling and hovering after load")
	crawlCmd.Flags().StringArrayVar(&excludePatterns, "exclude", nil, "URL patterns to exclude (regex)")
	crawlCmd.Flags().StringArrayVar(&excludeGlobs, "exclude-path", nil, "URL paths to exclude (glob)")
	crawlCmd.Flags().StringVar(&stateFile, "state-file", "", "Checkpoint file (.db, .json or .json.gz)")
	crawlCmd.Flags().StringVar(&streamFile, "stream", "", "Also write records as JSON lines while crawling")

	// Resume flags
	resumeCmd.Flags().StringVar(&stateFile, "state-file", "", "State file to resume from")
	resumeCmd.MarkFlagRequired("state-file")

	// Status flags
	statusCmd.Flags().StringVar(&stateFile, "state-file", "", "State file to check")
	statusCmd.MarkFlagRequired("state-file")

	rootCmd.AddCommand(crawlCmd, resumeCmd, statusCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildConfig starts from the config file or the mode preset and applies
// the flags the user set explicitly.
func buildConfig(cmd *cobra.Command, args []string) (*crawler.Config, error) {
	var config *crawler.Config
	var err error

	if configFile != "" {
		config, err = crawler.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		if cmd.Flags().Changed("mode") {
			return nil, fmt.Errorf("--mode cannot be combined with --config; set mode in the file")
		}
	} else {
		config, err = crawler.ConfigForMode(crawler.Mode(mode))
		if err != nil {
			return nil, err
		}
	}

	config.Target = args[0]
	if len(args) > 1 {
		depth, err := strconv.Atoi(args[1])
		if err != nil || depth < 0 {
			return nil, fmt.Errorf("invalid max depth %q", args[1])
		}
		config.MaxDepth = depth
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		config.Output.FilePath = outputFile
	}
	if flags.Changed("max-children") {
		config.MaxChildren = maxChildren
	}
	if flags.Changed("query-policy") {
		config.QueryPolicy = extract.QueryPolicy(queryPolicy)
	}
	if flags.Changed("order") {
		config.Order = queue.Order(order)
	}
	if flags.Changed("engine") {
		config.Browser.Engine = engine
	}
	if flags.Changed("headless") {
		config.Browser.Headless = headless
	}
	if flags.Changed("timeout") {
		config.Timeouts.Navigation = time.Duration(timeout) * time.Second
	}
	if noInteraction {
		config.Interaction.Enabled = false
	}
	config.Scope.ExcludePatterns = append(config.Scope.ExcludePatterns, excludePatterns...)
	config.Scope.ExcludeGlobs = append(config.Scope.ExcludeGlobs, excludeGlobs...)
	if stateFile != "" {
		config.State.Enabled = true
		config.State.FilePath = stateFile
	}
	if streamFile != "" {
		config.Output.StreamPath = streamFile
	}
	if flags.Changed("verbose") || configFile == "" {
		config.Verbose = verbose
	}
	if flags.Changed("debug") || configFile == "" {
		config.Debug = debug
	}

	return config, nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	h := newShutdownHandler(config.Verbose, config.Debug)
	c, err := crawler.New(
		crawler.WithConfig(config),
		crawler.WithShutdown(h),
	)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	return run(c, h)
}

func runResume(cmd *cobra.Command, args []string) error {
	h := newShutdownHandler(verbose, debug)

	opts := []crawler.Option{crawler.WithShutdown(h)}
	if cmd.Flags().Changed("verbose") {
		opts = append(opts, crawler.WithVerbose(verbose))
	}
	if cmd.Flags().Changed("debug") {
		opts = append(opts, crawler.WithDebug(debug))
	}

	c, err := crawler.Resume(stateFile, opts...)
	if err != nil {
		return fmt.Errorf("failed to resume: %w", err)
	}

	fmt.Printf("Resuming crawl from %s\n", stateFile)
	return run(c, h)
}

// run starts the crawl, listening for signals until it returns.
func run(c *crawler.Crawler, h *shutdown.Handler) error {
	h.Listen()

	_, err := c.Start(h.Context())
	for _, cbErr := range h.Shutdown() {
		fmt.Fprintf(os.Stderr, "Shutdown: %v\n", cbErr)
	}

	if err != nil {
		if errs.IsFatal(err) {
			return fmt.Errorf("crawl aborted: %w", err)
		}
		return fmt.Errorf("crawl failed: %w", err)
	}
	return nil
}

func newShutdownHandler(verbose, debug bool) *shutdown.Handler {
	cfg := shutdown.DefaultConfig()
	cfg.Logger = logger.ForFlags(verbose, debug, "shutdown")
	cfg.OnForce = func() {
		fmt.Fprintln(os.Stderr, "\nForced exit")
		os.Exit(130)
	}
	return shutdown.New(cfg)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cp, err := crawler.LoadCheckpoint(stateFile)
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}
	if cp == nil {
		fmt.Printf("No checkpoint in %s\n", stateFile)
		return nil
	}

	printStatus(cp)
	return nil
}

func printStatus(cp *state.Checkpoint) {
	sum := cp.Summary()
	status := "interrupted"
	if cp.Complete {
		status = "complete"
	}

	fmt.Println()
	fmt.Printf("Target:       %s\n", cp.Target)
	fmt.Printf("Status:       %s\n", status)
	fmt.Printf("Started:      %s\n", cp.StartedAt.Format(time.RFC3339))
	fmt.Printf("Last saved:   %s\n", cp.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Visited:      %d\n", len(cp.VisitedURLs))
	fmt.Printf("Pending:      %d\n", len(cp.Pending))
	fmt.Printf("Successful:   %d\n", sum.Successful)
	fmt.Printf("With content: %d\n", sum.WithContent)
	fmt.Printf("Errors:       %d\n", sum.Errors)
	fmt.Println()

	if !cp.Complete && len(cp.Pending) > 0 {
		fmt.Println("Next pages:")
		n := len(cp.Pending)
		if n > 5 {
			n = 5
		}
		for _, p := range cp.Pending[:n] {
			fmt.Printf("  [depth %d] %s\n", p.Depth, p.URL)
		}
		if len(cp.Pending) > 5 {
			fmt.Printf("  ... and %d more\n", len(cp.Pending)-5)
		}
		fmt.Println()
	}
}
