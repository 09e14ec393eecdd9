package main

import (
	"LogSearch/internal"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "logsearch",
		Usage:     "Search patterns in log files and archives",
		ArgsUsage: "[root...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML file with defaults for any of the flags below",
			},
			&cli.StringFlag{
				Name:  "pattern-file",
				Usage: "Path to text file with patterns: plain lines, 'plain:i:' for case-insensitive, or 're:<regex>'",
			},
			&cli.StringSliceFlag{
				Name:  "whitelist",
				Usage: "Only scan these extensions (comma separated, e.g. txt,log,json). Use without dot.",
			},
			&cli.StringSliceFlag{
				Name:  "blacklist",
				Usage: "Skip these extensions (comma separated). If whitelist is set, blacklist is ignored.",
			},
			&cli.StringSliceFlag{
				Name:  "exclude-dir",
				Usage: "Directory names never descended into (e.g. .git,node_modules)",
			},
			&cli.BoolFlag{
				Name:  "skip-hidden",
				Usage: "Skip dot files and dot directories",
			},
			&cli.StringFlag{
				Name:  "created-after",
				Usage: "Only files created at or after this time (" + internal.TimeLayout + ", local time)",
			},
			&cli.StringFlag{
				Name:  "modified-before",
				Usage: "Only files modified at or before this time (" + internal.TimeLayout + ", local time)",
			},
			&cli.StringFlag{
				Name:  "entry-modified-before",
				Usage: "Only archive entries modified before this time (" + internal.TimeLayout + ", local time)",
			},
			&cli.StringFlag{
				Name:  "logfile",
				Usage: "Write logs into file instead of stderr",
			},
			&cli.IntFlag{
				Name:  "threads",
				Usage: "Concurrent file workers (default scales with CPU)",
			},
			&cli.BoolFlag{
				Name:  "archives",
				Usage: "Also scan archives (.zip,.tar,.gz,.bz2,.xz,.rar,.7z,...)",
			},
			&cli.BoolFlag{
				Name:  "stop-when-found",
				Usage: "Report only the first matching line of each file or archive entry",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "stop-archive",
				Usage: "With --stop-when-found, stop a whole archive on its first match instead of the current entry",
			},
			&cli.BoolFlag{
				Name:  "first-match",
				Usage: "Stop the whole scan after the first match anywhere",
			},
			&cli.StringFlag{
				Name:  "extract-path",
				Usage: "Copy matched archive entries into this folder",
			},
			&cli.DurationFlag{
				Name:  "regex-timeout",
				Usage: "Per-line timeout for re: patterns; a timed out line does not match",
				Value: internal.DefaultRegexTimeout,
			},
			&cli.IntFlag{
				Name:  "depth",
				Usage: "Max directory depth (0 - unlimited)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Global timeout for scan (e.g. 10m, 1h)",
			},
			&cli.BoolFlag{
				Name:  "fail-fast",
				Usage: "Stop immediately on any error",
			},
			&cli.StringFlag{
				Name:  "save-matches-file",
				Usage: "Append all matched lines into a single file",
			},
			&cli.StringFlag{
				Name:  "save-matches-folder",
				Usage: "Create per-pattern files with matched lines inside this folder",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "Show a progress spinner on stderr (terminals only)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg := &internal.Config{}
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = internal.LoadConfig(path); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}

	internal.InitLogger(pickString(c, "logfile", cfg.LogFile), pickString(c, "log-level", cfg.LogLevel))
	logrus.Info("LogSearch started")

	// ctx with timeout + OS signals
	base := context.Background()
	var cancel context.CancelFunc
	if t := pickDuration(c, "timeout", cfg.Timeout); t > 0 {
		base, cancel = context.WithTimeout(base, t)
	} else {
		base, cancel = context.WithCancel(base)
	}
	defer cancel()

	ctx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := buildOptions(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	opts.Prepare()
	if err := opts.Validate(); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	patterns, err := internal.LoadPatterns(opts.PatternFile, opts.RegexTimeout)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if len(patterns) == 0 {
		return cli.Exit("pattern file has no patterns", 1)
	}

	sink, err := internal.NewResultSink(opts, patterns, os.Stdout)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer sink.Close()

	var stats internal.AppStats
	stats.Start()
	if pickBool(c, "progress", cfg.Progress) && isatty.IsTerminal(os.Stderr.Fd()) {
		stopBar := showProgress(&stats)
		defer stopBar()
	} else {
		opts.StatsInterval = 2 * time.Second
	}

	scanner := internal.NewFileScanner(&stats)
	scanErr := scanner.ScanWith(ctx, opts, internal.AnyOf(patterns), sink.Write)
	if scanErr != nil {
		logrus.WithError(scanErr).Error("Scan failed")
	}
	if ctx.Err() != nil {
		logrus.Warn("Scan cancelled")
	}

	fmt.Fprintf(os.Stderr,
		"\n======= Scan finished in %s =======\nTotal files scanned: %d\nTotal matches found: %d\nErrors: %d\nExtracted: %d (failed %d)\n",
		stats.Elapsed(), stats.FilesProcessed.Load(), stats.Matches.Load(), stats.Errors.Load(),
		stats.Extracted.Load(), stats.ExtractErrors.Load(),
	)
	return scanExit(ctx, scanErr)
}

// scanExit turns a scan failure into exit status 1. A cancelled scan exits cleanly.
func scanExit(ctx context.Context, err error) error {
	if err != nil && ctx.Err() == nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

func buildOptions(c *cli.Context, cfg *internal.Config) (internal.ScanOptions, error) {
	opts := internal.ScanOptions{
		PatternFile:                pickString(c, "pattern-file", cfg.PatternFile),
		Threads:                    pickInt(c, "threads", cfg.Threads),
		Whitelist:                  pickSlice(c, "whitelist", cfg.Whitelist),
		Blacklist:                  pickSlice(c, "blacklist", cfg.Blacklist),
		ExcludeDirs:                pickSlice(c, "exclude-dir", cfg.ExcludeDirs),
		Depth:                      pickInt(c, "depth", cfg.Depth),
		Archives:                   pickBool(c, "archives", cfg.Archives),
		SkipHidden:                 pickBool(c, "skip-hidden", cfg.SkipHidden),
		StopWhenFound:              c.Bool("stop-when-found"),
		StopArchive:                pickBool(c, "stop-archive", cfg.StopArchive),
		FirstMatch:                 pickBool(c, "first-match", cfg.FirstMatch),
		ExtractPath:                pickString(c, "extract-path", cfg.ExtractPath),
		RegexTimeout:               pickDuration(c, "regex-timeout", cfg.RegexTimeout),
		FailFast:                   pickBool(c, "fail-fast", cfg.FailFast),
		SaveMatchesFile:            pickString(c, "save-matches-file", cfg.SaveMatchesFile),
		SaveMatchesByPatternFolder: pickString(c, "save-matches-folder", cfg.SaveMatchesDir),
	}
	if !c.IsSet("stop-when-found") && cfg.StopWhenFound != nil {
		opts.StopWhenFound = *cfg.StopWhenFound
	}

	var err error
	if opts.CreatedAfter, err = internal.ParseLocalTime(pickString(c, "created-after", cfg.CreatedAfter)); err != nil {
		return opts, err
	}
	if opts.ModifiedBefore, err = internal.ParseLocalTime(pickString(c, "modified-before", cfg.ModifiedBefore)); err != nil {
		return opts, err
	}
	if opts.EntryModifiedBefore, err = internal.ParseLocalTime(pickString(c, "entry-modified-before", cfg.EntryModifiedBefore)); err != nil {
		return opts, err
	}

	// roots
	roots := c.Args().Slice()
	if len(roots) == 0 {
		opts.Roots = internal.DetectRoots(runtime.GOOS)
		logrus.Infof("No search paths provided, using auto roots: %v", opts.Roots)
	} else {
		for _, r := range roots {
			if st, err := os.Stat(r); err == nil && st.IsDir() {
				opts.Roots = append(opts.Roots, r)
			} else {
				logrus.Warnf("Skip: not a dir or inaccessible: %s", r)
			}
		}
		if len(opts.Roots) == 0 {
			return opts, fmt.Errorf("no valid search paths")
		}
	}
	return opts, nil
}

// showProgress renders a spinner fed from stats until the returned func is called.
func showProgress(stats *internal.AppStats) func() {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("scanning"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				_ = bar.Finish()
				return
			case <-ticker.C:
				bar.Describe(fmt.Sprintf("found=%d matches=%d errors=%d",
					stats.FilesFound.Load(), stats.Matches.Load(), stats.Errors.Load()))
				_ = bar.Set64(stats.FilesProcessed.Load())
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// pick* prefer an explicitly set flag, then the config value, then the flag default.

func pickString(c *cli.Context, name, cfg string) string {
	if !c.IsSet(name) && cfg != "" {
		return cfg
	}
	return c.String(name)
}

func pickInt(c *cli.Context, name string, cfg int) int {
	if !c.IsSet(name) && cfg != 0 {
		return cfg
	}
	return c.Int(name)
}

func pickBool(c *cli.Context, name string, cfg bool) bool {
	if !c.IsSet(name) && cfg {
		return true
	}
	return c.Bool(name)
}

func pickDuration(c *cli.Context, name string, cfg time.Duration) time.Duration {
	if !c.IsSet(name) && cfg != 0 {
		return cfg
	}
	return c.Duration(name)
}

func pickSlice(c *cli.Context, name string, cfg []string) []string {
	if !c.IsSet(name) && len(cfg) > 0 {
		return cfg
	}
	return c.StringSlice(name)
}
