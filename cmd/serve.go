package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/statm8/internal/server"
)

var (
	serveAddr       string
	serveProvider   string
	serveModel      string
	serveOllamaHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (upload, generate, stream, list plots)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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
			Provider:   serveProvider,
			Model:      serveModel,
			OllamaHost: serveOllamaHost,
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

		addr := c.ListenAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}
		srv := server.New(server.Config{
			Addr:       addr,
			UploadDir:  c.UploadDir,
			OutputRoot: c.OutputRoot,
			Profile:    profileOptions(c),
		}, p, rec, logger.Named("server"))

		fmt.Fprintf(cmd.ErrOrStderr(), "✓ statm8 listening on %s\n", addr)
		if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8000", "listen address (overrides listen_addr)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "model provider: openrouter|groq|openai|ollama (overrides default_provider)")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "model name (overrides default_model)")
	serveCmd.Flags().StringVar(&serveOllamaHost, "ollama-host", "", "Ollama host when --provider=ollama")
}
