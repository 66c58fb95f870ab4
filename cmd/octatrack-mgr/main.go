package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/davidferlay/octatrack-manager/internal/cache"
	"github.com/davidferlay/octatrack-manager/internal/config"
	"github.com/davidferlay/octatrack-manager/internal/loader"
	"github.com/davidferlay/octatrack-manager/internal/model"
	"github.com/davidferlay/octatrack-manager/internal/provider"
)

func main() {
	// Command line flags
	var (
		projectFlag    = flag.String("project", "", "Path to an Octatrack project directory")
		configFlag     = flag.String("config", "", "Path to config file")
		refreshFlag    = flag.Bool("refresh", false, "Reload from the card even when cached")
		noCacheFlag    = flag.Bool("no-cache", false, "Disable the persistent cache for this run")
		cacheStatsFlag = flag.Bool("cache-stats", false, "Print cache statistics and exit")
		clearCacheFlag = flag.Bool("clear-cache", false, "Remove cached data (all, or only the given project path) and exit")
		verboseFlag    = flag.Bool("verbose", false, "Show verbose output")
	)

	flag.Parse()

	// Load config
	settings := config.DefaultSettings()
	if *configFlag != "" {
		var err error
		settings, err = config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *noCacheFlag {
		settings.CacheEnabled = false
	}
	verbose := *verboseFlag || settings.Verbose

	// Get project path
	path := *projectFlag
	if path == "" && flag.NArg() > 0 {
		path = flag.Arg(0)
	}
	if path == "" && !*cacheStatsFlag && !*clearCacheFlag {
		fmt.Println("Octatrack Manager - Browse Octatrack projects")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  octatrack-mgr -project <PATH> [options]")
		fmt.Println("  octatrack-mgr <PATH> [options]")
		fmt.Println()
		fmt.Println("For interactive mode, use: octatrack-tui")
		fmt.Println()
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Handle interrupts
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, cancelling...")
		cancel()
	}()

	// Open the cache
	var store *cache.Store
	if settings.CacheEnabled {
		var err error
		store, err = cache.Open(settings.CachePath, cache.Options{
			QuotaBytes: settings.CacheQuotaBytes,
			KeepRecent: settings.CacheKeepRecent,
			Logf: func(format string, args ...any) {
				if verbose {
					fmt.Fprintf(os.Stderr, "cache: "+format+"\n", args...)
				}
			},
		})
		if err != nil {
			// The tool must keep working with zero caching.
			fmt.Fprintf(os.Stderr, "Warning: cache unavailable: %v\n", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	if *cacheStatsFlag || *clearCacheFlag {
		runCacheCommand(ctx, store, *clearCacheFlag, path)
		return
	}

	// Create loader with progress callback
	p := provider.NewOctatool(settings.OctatoolPath, settings.OctatoolTimeout)
	ld := loader.New(p, store, loader.Options{
		MinBatch: settings.MinBatchSize,
		MaxBatch: settings.MaxBatchSize,
		OnEvent: func(event loader.Event) {
			if event.Level == loader.LevelVerbose && !verbose {
				return
			}

			prefix := ""
			switch event.Level {
			case loader.LevelError:
				prefix = "❌ "
			case loader.LevelWarning:
				prefix = "⚠️  "
			case loader.LevelSuccess:
				prefix = "✅ "
			case loader.LevelInfo:
				prefix = "ℹ️  "
			default:
				prefix = "   "
			}

			fmt.Println(prefix + event.Message)
		},
	})

	fmt.Println("🎛  Octatrack Manager")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	var snap loader.Snapshot
	var err error
	if *refreshFlag {
		snap, err = ld.Refresh(ctx, path)
	} else {
		snap, err = ld.Load(ctx, path)
	}
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nLoad cancelled.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error loading project: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	printSummary(snap)
}

func printSummary(snap loader.Snapshot) {
	meta := snap.Metadata
	fmt.Printf("✨ %s\n", snap.Path)
	if meta != nil {
		fmt.Printf("   Tempo: %.1f BPM, OS %s\n", meta.Tempo, meta.OSVersion)
		fmt.Printf("   Active bank: %s, pattern %d, part %d\n",
			meta.CurrentState.Bank.Letter(), meta.CurrentState.Pattern+1, meta.CurrentState.Part+1)
	}

	for idx := model.BankIndex(0); idx < model.NumBanks; idx++ {
		if bank := snap.Banks[idx]; bank != nil {
			name := bank.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Printf("   Bank %s: %s\n", idx.Letter(), name)
		}
	}
	if letters := snap.FailedLetters(); len(letters) > 0 {
		fmt.Printf("   Failed: %v\n", letters)
	}
}

func runCacheCommand(ctx context.Context, store *cache.Store, clear bool, path string) {
	if store == nil {
		fmt.Println("Cache is disabled or unavailable.")
		return
	}
	if clear {
		if path != "" {
			store.ClearProject(ctx, path)
			fmt.Printf("Cache cleared for %s.\n", path)
		} else {
			store.Clear(ctx)
			fmt.Println("Cache cleared.")
		}
		return
	}

	stats := store.Stats(ctx)
	fmt.Printf("Projects: %d\n", stats.ProjectCount)
	fmt.Printf("Banks:    %d\n", stats.BankCount)
	fmt.Printf("Stored:   %.2f MB\n", float64(stats.StoredBytes)/1024/1024)
	if !stats.Oldest.IsZero() {
		fmt.Printf("Oldest:   %s\n", stats.Oldest.Format("2006-01-02 15:04:05"))
		fmt.Printf("Newest:   %s\n", stats.Newest.Format("2006-01-02 15:04:05"))
	}
	for _, path := range store.AllPaths(ctx) {
		fmt.Printf("  %s\n", path)
	}
}
