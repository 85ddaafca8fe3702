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

	"github.com/lkirch/sciencesage/pkg/client"
	"github.com/lkirch/sciencesage/pkg/config"
	"github.com/lkirch/sciencesage/pkg/metrics"
	"github.com/lkirch/sciencesage/rag"
	"github.com/lkirch/sciencesage/rag/eval"
	"github.com/lkirch/sciencesage/rag/sources"
	"github.com/mudler/xlog"
	"github.com/spf13/cobra"
)

// sources are checked this often, and re-ingested when their interval elapsed
const defaultSourceTick = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		xlog.Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sciencesage",
		Short: "Retrieval-augmented answers about space science",
		Long: `ScienceSage answers space science questions from an indexed corpus, at the
reader's level, and evaluates how well retrieval finds the passages that answer them.

Configuration is read from the environment and from a .env file.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newEvalCmd(),
		newSummarizeCmd(),
		newGroundTruthCmd(),
	)
	return rootCmd
}

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (default LISTEN_ADDRESS)")
	return cmd
}

func serve(ctx context.Context, listen string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.ListenAddress = listen
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	m := metrics.New()
	pipeline, err := b.pipeline(ctx, m)
	if err != nil {
		return err
	}

	if len(cfg.Sources) > 0 {
		sm := rag.NewSourceManager(b.ingester())
		for _, source := range cfg.Sources {
			if err := sm.AddSource(source.URL, source.Topics, cfg.SourceUpdateInterval); err != nil {
				return err
			}
		}
		sm.Start(ctx, min(cfg.SourceUpdateInterval, defaultSourceTick))
	}

	return startAPI(ctx, cfg.ListenAddress, pipeline, cfg.Topics, m)
}

type ingestOptions struct {
	reset  bool
	topics []string
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <chunks.jsonl|file|directory|url>...",
		Short: "Embed and index chunk files, documents, pages or sitemaps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ingest(cmd.Context(), args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "empty the collection first")
	cmd.Flags().StringSliceVar(&opts.topics, "topics", nil, "topics for raw documents")
	return cmd
}

func ingest(ctx context.Context, args []string, opts ingestOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if opts.reset {
		if err := b.index.Reset(ctx); err != nil {
			return err
		}
		xlog.Info("Collection reset", "collection", cfg.Index.Collection)
	}

	docTopics := []string{}
	for _, t := range opts.topics {
		if t = strings.TrimSpace(t); t != "" {
			docTopics = append(docTopics, t)
		}
	}

	ingester := b.ingester()
	total := 0
	for _, source := range args {
		var stored int
		if strings.EqualFold(filepath.Ext(source), ".jsonl") {
			passages, skipped, err := sources.LoadChunks(source)
			if err != nil {
				return err
			}
			xlog.Info("Loaded chunks", "file", source, "passages", len(passages), "skipped", skipped)
			stored, err = ingester.IngestPassages(ctx, passages)
			if err != nil {
				return err
			}
		} else {
			docs, err := sources.SourceRouter(source)
			if err != nil {
				return err
			}
			stored, err = ingester.IngestDocuments(ctx, docs, docTopics)
			if err != nil {
				return err
			}
		}
		total += stored
	}

	xlog.Info("Ingestion complete", "passages", total)
	return nil
}

type evalOptions struct {
	dataset  string
	k        int
	out      string
	summary  string
	mode     string
	workers  int
	answers  bool
	endpoint string
	replay   string
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate retrieval against a ground-truth dataset",
		Long: `Runs every dataset question through a retriever and appends one scored row per
question to the results log, then summarizes the whole log.

Modes:
  live    the local pipeline, using the configured backends
  http    a running API at --endpoint
  replay  the retrievals recorded in a previous results log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return evaluate(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.dataset, "dataset", "", "ground-truth JSONL dataset")
	cmd.Flags().IntVar(&opts.k, "k", 0, "rank cutoff (default EVAL_K)")
	cmd.Flags().StringVar(&opts.out, "out", "eval_results.jsonl", "results log, appended to")
	cmd.Flags().StringVar(&opts.summary, "summary", "eval_summary.json", "summary file")
	cmd.Flags().StringVar(&opts.mode, "mode", "live", "retrieval source: live, http or replay")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "concurrent queries (default EVAL_WORKERS)")
	cmd.Flags().BoolVar(&opts.answers, "answers", false, "also generate answers and record exact matches")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "http://localhost:8080", "API address for --mode http")
	cmd.Flags().StringVar(&opts.replay, "replay", "", "results log to replay for --mode replay")
	cmd.MarkFlagRequired("dataset")
	return cmd
}

func evaluate(ctx context.Context, opts evalOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.k <= 0 {
		opts.k = cfg.Eval.K
	}
	if opts.workers <= 0 {
		opts.workers = cfg.Eval.Workers
	}

	records, skipped, err := eval.LoadDataset(opts.dataset)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no usable records in %s (%d skipped)", opts.dataset, skipped)
	}

	var retriever eval.Retriever
	switch opts.mode {
	case "live":
		b, err := openBackends(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.Close()
		pipeline, err := b.pipeline(ctx, nil)
		if err != nil {
			return err
		}
		retriever = pipeline
	case "http":
		c := client.NewClient(opts.endpoint)
		if !c.Healthy(ctx) {
			return fmt.Errorf("API at %s is not reachable", opts.endpoint)
		}
		retriever = c
	case "replay":
		if opts.replay == "" {
			return fmt.Errorf("--replay is required with --mode replay")
		}
		replay, err := eval.LoadReplayRetriever(opts.replay)
		if err != nil {
			return err
		}
		if replay.Len() == 0 {
			return fmt.Errorf("no recorded retrievals in %s", opts.replay)
		}
		xlog.Info("Replaying recorded retrievals", "file", opts.replay, "queries", replay.Len())
		retriever = replay
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}

	writer, err := eval.OpenResultLog(opts.out)
	if err != nil {
		return err
	}
	defer writer.Close()

	harness := eval.NewHarness(retriever, eval.Options{K: opts.k, Workers: opts.workers, Answers: opts.answers})
	if _, err := harness.Run(ctx, records, writer); err != nil {
		return err
	}

	return writeSummary(opts.out, opts.summary, skipped)
}

func newSummarizeCmd() *cobra.Command {
	var in, out string

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize an evaluation results log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeSummary(in, out, 0)
		},
	}
	cmd.Flags().StringVar(&in, "in", "eval_results.jsonl", "results log")
	cmd.Flags().StringVar(&out, "out", "eval_summary.json", "summary file")
	return cmd
}

// writeSummary summarizes the whole results log. skipped is the number of dataset rows of
// the current run that could not be evaluated.
func writeSummary(resultsPath, summaryPath string, skipped int) error {
	results, err := eval.LoadResults(resultsPath)
	if err != nil {
		return err
	}
	summary := eval.Summarize(results)
	summary.Skipped = skipped
	if err := eval.WriteSummary(summaryPath, summary); err != nil {
		return err
	}
	summary.Print(os.Stdout)
	xlog.Info("Summary written", "file", summaryPath, "rows", summary.Rows, "skipped", summary.Skipped)
	return nil
}

type groundTruthOptions struct {
	chunks  string
	out     string
	samples int
	seed    uint64
}

func newGroundTruthCmd() *cobra.Command {
	var opts groundTruthOptions

	cmd := &cobra.Command{
		Use:   "groundtruth",
		Short: "Generate a ground-truth dataset from a chunk file",
		Long: `Samples one chunk per topic plus --samples more, asks the chat model for one
question per explanation level about each, and writes rows that eval reads as a dataset.
The output file is replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return groundTruth(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.chunks, "chunks", "", "chunk JSONL file")
	cmd.Flags().StringVar(&opts.out, "out", "ground_truth.jsonl", "dataset to write")
	cmd.Flags().IntVar(&opts.samples, "samples", eval.DefaultGroundTruthSamples, "chunks drawn after one per topic")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 42, "sampling seed")
	cmd.MarkFlagRequired("chunks")
	return cmd
}

func groundTruth(ctx context.Context, opts groundTruthOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	passages, skipped, err := sources.LoadChunks(opts.chunks)
	if err != nil {
		return err
	}
	if len(passages) == 0 {
		return fmt.Errorf("no usable chunks in %s (%d skipped)", opts.chunks, skipped)
	}

	b := &backends{cfg: cfg}
	builder := eval.NewGroundTruthBuilder(b.completer(), eval.GroundTruthOptions{Samples: opts.samples, Seed: opts.seed})
	rows, err := builder.Build(ctx, passages)
	if err != nil {
		return err
	}
	if err := eval.WriteGroundTruth(opts.out, rows); err != nil {
		return err
	}
	xlog.Info("Ground truth written", "file", opts.out, "rows", len(rows))
	return nil
}
