package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/KaramelBytes/statm8/internal/pipeline"
	"github.com/KaramelBytes/statm8/internal/publish"
)

var (
	genComments   string
	genMaxRetries int
	genStream     bool
	genProvider   string
	genModel      string
	genOllamaHost string
	genUID        string
	genCSVID      string
)

var generateCmd = &cobra.Command{
	Use:   "generate <file>",
	Short: "Generate, run and repair EDA code blocks for a CSV dataset",
	Long: `Profiles the dataset, asks the model for analysis code blocks and runs each
block locally, regenerating failing blocks up to --max-retries times.

Without --stream the aggregate result is printed as JSON once all blocks are
done. With --stream every progress event is printed as one JSON line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Flag variables are package state; only honor values provided in THIS run.
		provided := map[string]bool{}
		cmd.Flags().Visit(func(fl *pflag.Flag) {
			provided[fl.Name] = true
		})
		var maxRetries *int
		if provided["max-retries"] {
			if genMaxRetries < 0 {
				return fmt.Errorf("--max-retries must be >= 0, got %d", genMaxRetries)
			}
			v := genMaxRetries
			maxRetries = &v
		}

		c, err := requireConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(c)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := newPipeline(c, pipelineOptions{
			Provider:   genProvider,
			Model:      genModel,
			OllamaHost: genOllamaHost,
		}, logger)
		if err != nil {
			return err
		}
		rec, closeRec, err := newRecorder(ctx, c, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeRec(); err != nil {
				logger.Warn("close publishers", zap.Error(err))
			}
		}()

		req := pipeline.Request{
			FilePath:   args[0],
			Comments:   genComments,
			MaxRetries: maxRetries,
			RequestID:  uuid.NewString(),
		}
		req.OnBlockDone = rec.Hook(publish.Meta{
			RequestID: req.RequestID,
			UID:       genUID,
			CSVID:     genCSVID,
			FilePath:  req.FilePath,
		})
		return runGenerate(ctx, p, req, generateOutput{
			Stream: genStream,
			Out:    cmd.OutOrStdout(),
			Status: cmd.ErrOrStderr(),
		})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&genComments, "comments", "c", "", "extra instructions for the model (focus areas, columns of interest)")
	generateCmd.Flags().IntVar(&genMaxRetries, "max-retries", pipeline.DefaultMaxRetries, "regenerations allowed per failing block (overrides max_retries)")
	generateCmd.Flags().BoolVar(&genStream, "stream", false, "print progress events as JSON lines")
	generateCmd.Flags().StringVar(&genProvider, "provider", "", "model provider: openrouter|groq|openai|ollama (overrides default_provider)")
	generateCmd.Flags().StringVar(&genModel, "model", "", "model name (overrides default_model)")
	generateCmd.Flags().StringVar(&genOllamaHost, "ollama-host", "", "Ollama host when --provider=ollama")
	generateCmd.Flags().StringVar(&genUID, "uid", "", "user id attached to published block events")
	generateCmd.Flags().StringVar(&genCSVID, "csv-id", "", "dataset id attached to published block events")
}

// edaRunner is the part of *pipeline.Pipeline the command drives.
type edaRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Stream(ctx context.Context, req pipeline.Request, emit pipeline.EmitFunc) error
}

type generateOutput struct {
	Stream bool
	// Out receives JSON; Status receives human-readable progress.
	Out    io.Writer
	Status io.Writer
}

func runGenerate(ctx context.Context, p edaRunner, req pipeline.Request, o generateOutput) error {
	if o.Stream {
		enc := json.NewEncoder(o.Out)
		var succeeded, failed int
		err := p.Stream(ctx, req, func(ev pipeline.Event) error {
			switch {
			case ev.BlockID <= 0:
			case ev.Status == pipeline.StatusSuccess:
				succeeded++
			case ev.Status == pipeline.StatusError:
				failed++
			}
			return enc.Encode(ev)
		})
		if err != nil {
			return err
		}
		printSummary(o.Status, succeeded, failed)
		return nil
	}

	res, err := p.Run(ctx, req)
	if err != nil {
		return err
	}
	if err := writeJSON(o.Out, res); err != nil {
		return err
	}
	var succeeded, failed int
	for _, b := range res.Blocks {
		if b.Status == pipeline.StatusSuccess {
			succeeded++
		} else {
			failed++
		}
	}
	printSummary(o.Status, succeeded, failed)
	return nil
}

func printSummary(w io.Writer, succeeded, failed int) {
	total := succeeded + failed
	switch {
	case total == 0:
		fmt.Fprintln(w, "✗ The model returned no code blocks")
	case failed == 0:
		fmt.Fprintf(w, "✓ %d/%d blocks succeeded\n", succeeded, total)
	case succeeded == 0:
		fmt.Fprintf(w, "✗ All %d blocks failed\n", total)
	default:
		fmt.Fprintf(w, "⚠ %d/%d blocks succeeded, %d failed\n", succeeded, total, failed)
	}
}
