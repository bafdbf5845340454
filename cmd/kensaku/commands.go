package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/cli"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/retrieval"
	"github.com/hyperjump/kensaku/internal/server"
	"github.com/hyperjump/kensaku/internal/watcher"
	"github.com/hyperjump/kensaku/pkg/utils"
)

const defaultServerURL = "http://localhost:8080"

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "kensaku",
		Short: "kensaku - local vector retrieval engine",
		Long: `kensaku chunks documents, embeds the chunks and answers similarity queries over them
with exact inner-product search. It runs as an HTTP server or as one-shot commands.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(opts.configPath)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newIngestCmd(opts),
		newSearchCmd(opts),
		newAskCmd(opts),
		newStatusCmd(opts),
		newRebuildCmd(opts),
		newWatchCmd(),
		newVersionCmd(),
	)
	return root
}

// withService loads config, opens the service and calls fn. The index is persisted after fn
// when persist is set and fn succeeded.
func withService(opts *options, persist bool, fn func(ctx context.Context, cfg *config.Config, svc *retrieval.Service) error) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || opts.debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	svc, err := openService(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logger.Warn("close failed", zap.Error(cerr))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := fn(ctx, cfg, svc); err != nil {
		return err
	}
	if persist {
		if err := svc.Persist(); err != nil {
			return fmt.Errorf("persist index: %w", err)
		}
	}
	return nil
}

// buildQuery joins positional args so multi-word queries work with or without quotes.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		Short:   "Start the HTTP server and the inbox watcher",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
}

func runServe(opts *options) error {
	cfg, configPath, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || opts.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("config loaded",
		zap.String("config_path", configPath),
		zap.Bool("debug", debugMode))

	svc, err := openService(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchOpts := []watcher.Option{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watch := watcher.New(cfg.Watch, svc, watchOpts...)
	if err := watch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watch.Stop()
	go watch.SyncExisting()

	srv := server.NewServer(svc, cfg, logger, server.WithWatch(watch, configPath))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
	watch.Stop()
	if err := svc.Persist(); err != nil {
		logger.Error("vector index persist failed", zap.Error(err))
		return err
	}
	return nil
}

func newIngestCmd(opts *options) *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "ingest <file-or-directory>",
		Short: "Ingest a file or every supported file in a directory",
		Long: `Ingest extracts text from the file, chunks and embeds it, and records the document.
Files already ingested with the same modification time and size are skipped. Directories use
the watch.extensions setting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withService(opts, true, func(ctx context.Context, cfg *config.Config, svc *retrieval.Service) error {
				path := args[0]
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("failed to stat path: %w", err)
				}
				if info.IsDir() {
					n, err := svc.IngestDirectory(ctx, path, cfg.Watch.Extensions, recursive)
					if err != nil {
						return fmt.Errorf("ingesting directory failed: %w", err)
					}
					fmt.Fprintf(out, "Ingested %d file(s) from %s\n", n, path)
					return nil
				}
				ingested, err := svc.IngestFile(ctx, path, nil)
				if err != nil {
					return fmt.Errorf("ingest failed: %w", err)
				}
				abs, _ := filepath.Abs(path)
				if !ingested {
					fmt.Fprintf(out, "Unchanged, skipped: %s\n", abs)
					return nil
				}
				fmt.Fprintf(out, "Document ingested: %s\n", abs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "descend into subdirectories")
	return cmd
}

type queryFlags struct {
	serverURL string
	topK      int
	output    string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.serverURL, "server", defaultServerURL, `server URL (use --server="" to open the index directly)`)
	cmd.Flags().IntVarP(&f.topK, "top-k", "k", 0, "number of results (default from config)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "output format: text, compact, or json")
}

func newSearchCmd(opts *options) *cobra.Command {
	flags := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Return the chunks most similar to the query",
		Example: `  kensaku search machine learning
  kensaku search --top-k 10 --output json "neural networks"
  kensaku search --server="" what is ai     # without a running server`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := buildQuery(args)
			format, err := cli.ParseOutputFormat(flags.output)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.serverURL != "" {
				resp, err := cli.NewClient(flags.serverURL).Search(cmd.Context(), query, flags.topK)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return cli.WriteSearchResults(out, resp, format)
			}
			return withService(opts, false, func(ctx context.Context, cfg *config.Config, svc *retrieval.Service) error {
				req := models.SearchRequest{Query: query, TopK: flags.topK}
				if err := req.Validate(cfg.Search.DefaultTopK, cfg.Search.MaxTopK); err != nil {
					return err
				}
				start := time.Now()
				ranked, queryVec, err := svc.Search(ctx, req.Query, req.TopK)
				if err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return cli.WriteSearchResults(out, &models.SearchResponse{
					Query:          req.Query,
					Results:        retrieval.SearchResults(retrieval.Relevant(ranked)),
					QueryEmbedding: queryVec,
					QueryTime:      time.Since(start).Milliseconds(),
				}, format)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newAskCmd(opts *options) *cobra.Command {
	flags := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the most similar chunks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := buildQuery(args)
			format, err := cli.ParseOutputFormat(flags.output)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flags.serverURL != "" {
				resp, err := cli.NewClient(flags.serverURL).Query(cmd.Context(), question, flags.topK)
				if err != nil {
					return fmt.Errorf("query failed: %w", err)
				}
				return cli.WriteAnswer(out, resp, format)
			}
			return withService(opts, false, func(ctx context.Context, cfg *config.Config, svc *retrieval.Service) error {
				req := models.SearchRequest{Query: question, TopK: flags.topK}
				if err := req.Validate(cfg.Search.DefaultTopK, cfg.Search.MaxTopK); err != nil {
					return err
				}
				ans, err := svc.Answer(ctx, req.Query, req.TopK)
				if err != nil {
					return fmt.Errorf("query failed: %w", err)
				}
				return cli.WriteAnswer(out, &models.QueryResponse{
					Query:          req.Query,
					Answer:         ans.Text,
					Sources:        retrieval.SearchResults(ans.Sources),
					QueryEmbedding: ans.QueryEmbedding,
				}, format)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	var serverURL, output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and document registry status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if serverURL != "" {
				st, err := cli.NewClient(serverURL).Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("status failed: %w", err)
				}
				return cli.WriteStatus(out, st, format)
			}
			return withService(opts, false, func(ctx context.Context, cfg *config.Config, svc *retrieval.Service) error {
				st, err := svc.Status(ctx, diskPaths(cfg)...)
				if err != nil {
					return fmt.Errorf("status failed: %w", err)
				}
				return cli.WriteStatus(out, st, format)
			})
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, `server URL (use --server="" to open the index directly)`)
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func newRebuildCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Re-embed every completed document into a fresh index",
		Long: `Rebuild empties the vector index and replays every COMPLETED document from the registry.
Run it after changing the embedder or index type. The server must not be running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return withService(opts, true, func(ctx context.Context, cfg *config.Config, svc *retrieval.Service) error {
				n, err := svc.Rebuild(ctx)
				if err != nil {
					return fmt.Errorf("rebuild failed: %w", err)
				}
				fmt.Fprintf(out, "Rebuilt index from %d document(s), %d vectors\n", n, svc.Index().TotalVectors())
				return nil
			})
		},
	}
}

func newWatchCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage the directories watched by a running server",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL, "server URL")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <path>",
			Short: "Add a directory to watch and ingest its existing files",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				if err := cli.NewClient(serverURL).AddWatchDirectory(cmd.Context(), path); err != nil {
					return fmt.Errorf("add failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added: %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <path>",
			Short: "Stop watching a directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				if err := cli.NewClient(serverURL).RemoveWatchDirectory(cmd.Context(), path); err != nil {
					return fmt.Errorf("remove failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List watched directories",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dirs, err := cli.NewClient(serverURL).WatchDirectories(cmd.Context())
				if err != nil {
					return fmt.Errorf("list failed: %w", err)
				}
				for _, d := range dirs {
					fmt.Fprintln(cmd.OutOrStdout(), d)
				}
				return nil
			},
		},
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kensaku version %s\n", version)
		},
	}
}
