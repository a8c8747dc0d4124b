package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parkops/groundsman/pkg/config"
	"github.com/parkops/groundsman/pkg/domain"
	"github.com/parkops/groundsman/pkg/encoder"
	"github.com/parkops/groundsman/pkg/executor"
	"github.com/parkops/groundsman/pkg/intent"
	"github.com/parkops/groundsman/pkg/logging"
	"github.com/parkops/groundsman/pkg/pipeline"
	"github.com/parkops/groundsman/pkg/plan"
	"github.com/parkops/groundsman/pkg/slots"
	"github.com/parkops/groundsman/pkg/tools/clarify"
	"github.com/parkops/groundsman/pkg/tools/retrieve"
	"github.com/parkops/groundsman/pkg/tools/summarize"
	"github.com/parkops/groundsman/pkg/tools/tabular"
	"github.com/parkops/groundsman/pkg/tools/vision"
)

var manifestFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "groundsman",
		Short: "Maintenance query assistant for park grounds crews",
		Long: `Groundsman answers natural-language questions from park maintenance
	workers. It classifies each question against prototype examples, extracts
	dates and park names, routes to the right tools (knowledge base, labor
	records, image assessment), and composes a grounded answer.`,
	}

	rootCmd.PersistentFlags().StringVar(&manifestFlag, "manifest", "", "path to intents manifest (default: built-in)")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(intentsCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(indexCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func askCmd() *cobra.Command {
	var imageFlag string
	var evidenceFlag string
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a maintenance question",
		Long: `Classifies the question, plans the tool calls, runs them, and prints
	the composed answer.

	Attach a photo with --image for visual assessments. Use --evidence-dir
	to persist a full run record for auditing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, m, logger, err := loadAll()
			if err != nil {
				return err
			}
			defer logger.Sync()

			enc, err := buildEncoder(ctx, cfg)
			if err != nil {
				return err
			}
			store, err := intent.NewStore(ctx, m.Intents, enc)
			if err != nil {
				return fmt.Errorf("embed intent prototypes: %w", err)
			}

			registry, cleanup, err := buildRegistry(cfg, enc, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			runner, err := pipeline.New(store, enc, m, registry, logger, pipeline.Options{
				EvidenceDir: evidenceFlag,
			})
			if err != nil {
				return err
			}

			outcome, err := runner.Run(ctx, plan.Query{Text: args[0], ImageRef: imageFlag})
			if err != nil {
				return err
			}

			if jsonFlag {
				return json.NewEncoder(os.Stdout).Encode(outcome.Answer)
			}

			fmt.Println(outcome.Answer.Text)
			if outcome.Answer.ChartHint != "" {
				fmt.Fprintf(os.Stderr, "chart hint: %s\n", outcome.Answer.ChartHint)
			}
			for _, f := range outcome.Answer.Failures {
				fmt.Fprintf(os.Stderr, "step failed: %s\n", f)
			}
			if outcome.RunID != "" {
				fmt.Fprintf(os.Stderr, "run: %s\n", outcome.RunID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&imageFlag, "image", "", "path to an attached photo")
	cmd.Flags().StringVar(&evidenceFlag, "evidence-dir", "", "persist run records under this directory")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the answer as JSON")

	return cmd
}

func planCmd() *cobra.Command {
	var imageFlag string

	cmd := &cobra.Command{
		Use:   "plan [question]",
		Short: "Show the route plan for a question without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, m, logger, err := loadAll()
			if err != nil {
				return err
			}
			defer logger.Sync()

			enc, err := buildEncoder(ctx, cfg)
			if err != nil {
				return err
			}
			store, err := intent.NewStore(ctx, m.Intents, enc)
			if err != nil {
				return fmt.Errorf("embed intent prototypes: %w", err)
			}

			classifier := intent.NewClassifier(store, enc, m.Pipeline, logger)
			result, err := classifier.Classify(ctx, args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "classifier unavailable: %v\n", err)
				result = nil
			}

			sl := slots.NewExtractor(m.Gazetteer).Extract(args[0])
			selector, err := domain.NewSelector(m)
			if err != nil {
				return err
			}
			sel := selector.Select(args[0], sl)

			p, err := plan.NewBuilder(store, m, logger).Build(
				plan.Query{Text: args[0], ImageRef: imageFlag}, result, sl, sel)
			if err != nil {
				return err
			}

			out := struct {
				Classification *intent.Result   `json:"classification,omitempty"`
				Slots          slots.Slots      `json:"slots"`
				Selection      domain.Selection `json:"selection"`
				Plan           *plan.Plan       `json:"plan"`
			}{result, sl, sel, p}

			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&imageFlag, "image", "", "path to an attached photo")
	return cmd
}

func intentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "intents",
		Short: "List configured intents and their prototypes",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INTENT\tPRIORITY\tNEEDS IMAGE\tPROTOTYPES")

			var labels []string
			for label := range m.Intents {
				labels = append(labels, label)
			}
			sort.Strings(labels)

			for _, label := range labels {
				def := m.Intents[label]
				fmt.Fprintf(w, "%s\t%d\t%v\t%d\n", label, def.Priority, def.NeedsImage, len(def.Prototypes))
			}

			fmt.Fprintln(w)
			fmt.Fprintf(w, "FALLBACK\t%s\t\t\n", m.Fallback)
			return w.Flush()
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [manifest.yaml]",
		Short: "Validate an intents manifest",
		Long:  "Validates the manifest YAML without running anything.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := config.LoadManifest(args[0])
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return err
			}
			fmt.Println("Manifest is valid.")
			return nil
		},
	}
}

func indexCmd() *cobra.Command {
	var docsFlag string
	var outFlag string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the knowledge-base index from a document directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, _, logger, err := loadAll()
			if err != nil {
				return err
			}
			defer logger.Sync()

			docs := docsFlag
			if docs == "" {
				docs = cfg.Retrieval.DocDir
			}
			out := outFlag
			if out == "" {
				out = cfg.Retrieval.IndexPath
			}

			enc, err := buildEncoder(ctx, cfg)
			if err != nil {
				return err
			}
			idx, err := retrieve.OpenIndex(out, enc, logger)
			if err != nil {
				return err
			}
			defer idx.Close()

			n, err := idx.BuildFromDir(ctx, docs)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Indexed %d chunks from %s into %s\n", n, docs, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&docsFlag, "docs", "", "document directory (default from config)")
	cmd.Flags().StringVar(&outFlag, "out", "", "index file path (default from config)")
	return cmd
}

func loadAll() (*config.Config, *config.Manifest, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	m, err := loadManifestWith(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	return cfg, m, logger, nil
}

func loadManifest() (*config.Manifest, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return loadManifestWith(cfg)
}

func loadManifestWith(cfg *config.Config) (*config.Manifest, error) {
	path := manifestFlag
	if path == "" {
		path = cfg.ManifestPath
	}
	if path == "" {
		return config.DefaultManifest(), nil
	}
	m, err := config.LoadManifest(path)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return m, nil
}

func buildEncoder(ctx context.Context, cfg *config.Config) (encoder.Engine, error) {
	switch strings.ToLower(cfg.Encoder.Provider) {
	case "genai":
		return encoder.NewGenAIEngine(ctx, cfg.Encoder.GenAIAPIKey, cfg.Encoder.GenAIModel)
	default:
		return encoder.NewOpenAIEngine(cfg.Encoder.OpenAIAPIKey, cfg.Encoder.OpenAIBaseURL, cfg.Encoder.OpenAIModel)
	}
}

// buildRegistry wires every tool with a configured backend. Tools whose
// backend is not configured are simply absent; steps that need them fail
// individually instead of blocking the whole command.
func buildRegistry(cfg *config.Config, enc encoder.Engine, logger *zap.Logger) (*executor.Registry, func(), error) {
	var tools []executor.Tool
	var closers []func()

	if _, err := os.Stat(cfg.Retrieval.IndexPath); err == nil {
		idx, err := retrieve.OpenIndex(cfg.Retrieval.IndexPath, enc, logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { idx.Close() })
		tools = append(tools, retrieve.NewTool(idx))
	} else {
		logger.Warn("knowledge-base index not found, retrieval disabled",
			zap.String("path", cfg.Retrieval.IndexPath))
	}

	if cfg.Database.DSN != "" {
		tab, err := tabular.Open(cfg.Database.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { tab.Close() })
		tools = append(tools, tab)
	}

	if cfg.Vision.GenAIAPIKey != "" {
		vt, err := vision.New(cfg.Vision.GenAIAPIKey, cfg.Vision.Model, logger)
		if err != nil {
			return nil, nil, err
		}
		tools = append(tools, vt)
	}

	gen, err := buildGenerator(cfg)
	if err != nil {
		return nil, nil, err
	}
	tools = append(tools, summarize.NewTool(gen, logger))
	tools = append(tools, clarify.NewTool())

	registry, err := executor.NewRegistry(tools...)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	return registry, cleanup, nil
}

func buildGenerator(cfg *config.Config) (summarize.Generator, error) {
	if strings.ToLower(cfg.Summarizer.Provider) == "anthropic" {
		return summarize.NewAnthropicGenerator(cfg.Summarizer.AnthropicAPIKey, cfg.Summarizer.Model)
	}
	return summarize.NewOpenAIGenerator(cfg.Summarizer.APIKey, cfg.Summarizer.BaseURL, cfg.Summarizer.Model), nil
}
