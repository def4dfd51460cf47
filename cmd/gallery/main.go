// Command gallery is the CLI front end: serve the API, ingest media
// from the filesystem, or search the indexed gallery.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"semanticgallery/api"
	"semanticgallery/app"
	"semanticgallery/config"
	"semanticgallery/ingest"
	"semanticgallery/queue"
	"semanticgallery/search"
	"semanticgallery/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("APP_DEBUG") != "" {
		log.SetLevel(logrus.DebugLevel)
	}

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	switch os.Args[1] {
	case "serve":
		runServe(cfg, log, os.Args[2:])
	case "ingest":
		runIngest(cfg, log, os.Args[2:])
	case "search":
		runSearch(cfg, log, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: gallery <command> [options]

Commands:
  serve     Start the API server and ingestion workers
  ingest    Ingest media files from a path
  search    Search indexed media by text query
`)
}

func runServe(cfg *config.Config, log *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	host := fs.String("host", cfg.Server.Host, "listen host")
	port := fs.Int("port", cfg.Server.Port, "listen port")
	fs.Parse(args)

	state, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initializing application")
	}
	defer state.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := queue.NewClient(ctx, cfg.Queue, log)
	if err != nil {
		log.WithError(err).Fatal("connecting to queue")
	}
	defer q.Close()

	pool := worker.NewPool(q, state.Ingestor, cfg.Queue.WorkerCount, log)
	pool.Start(ctx)

	srv := api.NewServer(state.Searcher, q, log)
	go func() {
		addr := fmt.Sprintf("%s:%d", *host, *port)
		if err := srv.ListenAndServe(addr); err != nil {
			log.WithError(err).Fatal("api server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	cancel()
	pool.Stop()
}

func runIngest(cfg *config.Config, log *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	recursive := fs.Bool("recursive", false, "recurse into subdirectories")
	maxDepth := fs.Int("max-depth", ingest.DefaultMaxDepth, "maximum recursion depth")
	concurrency := fs.Int("concurrency", 4, "files processed in parallel")
	yes := fs.Bool("yes", false, "skip the batch confirmation prompt")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "ingest: path argument required")
		os.Exit(1)
	}
	path := fs.Arg(0)

	state, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initializing application")
	}
	defer state.Close()

	opts := ingest.Options{
		Recursive:   *recursive,
		MaxDepth:    *maxDepth,
		Concurrency: *concurrency,
		Progress: func(done, total int, _ string, _ error) {
			fmt.Printf("\rProgress: %d/%d", done, total)
			if done == total {
				fmt.Println()
			}
		},
	}
	if !*yes {
		opts.Confirm = confirmBatch
	}

	result, err := state.Ingestor.Ingest(context.Background(), path, opts)
	if err == ingest.ErrDeclined {
		fmt.Println("Aborted.")
		return
	}
	if err != nil {
		log.WithError(err).Fatal("ingestion failed")
	}

	fmt.Printf("Ingested %d/%d files (%d failed) in %s\n",
		result.Succeeded, result.Total, result.Failed, result.Elapsed.Round(10*time.Millisecond))
}

// confirmBatch asks before a multi-file batch is processed.
func confirmBatch(candidates int) bool {
	fmt.Printf("About to ingest %d files. Continue? [y/N] ", candidates)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func runSearch(cfg *config.Config, log *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	limit := fs.Int("limit", search.DefaultLimit, "maximum number of results")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "search: query argument required")
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")

	state, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initializing application")
	}
	defer state.Close()

	results, err := state.Searcher.Search(context.Background(), query, *limit)
	if err != nil {
		log.WithError(err).Fatal("search failed")
	}

	if len(results) == 0 {
		fmt.Printf("No results found for query: %q\n", query)
		return
	}

	fmt.Printf("Search results for: %q\n", query)
	fmt.Println(strings.Repeat("-", 50))
	for i, r := range results {
		fmt.Printf("%d. %s (ID: %s)\n   Path: %s\n   Similarity: %.2f%%\n",
			i+1, r.Filename, r.ID, r.FilePath, r.Similarity*100)
	}
}
