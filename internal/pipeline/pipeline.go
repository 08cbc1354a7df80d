// Package pipeline drives the generate, execute and regenerate loop over a
// dataset and reports results either as one aggregate or as a stream of events.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/statm8/internal/analysis"
	"github.com/KaramelBytes/statm8/internal/codegen"
	"github.com/KaramelBytes/statm8/internal/executor"
	"github.com/KaramelBytes/statm8/internal/utils"
)

// DefaultMaxRetries is the number of regenerations allowed per block.
const DefaultMaxRetries = 2

// Generator produces and repairs analysis code. *codegen.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, p *analysis.DatasetProfile, filePath, outputDir, comments string) ([]codegen.Block, error)
	Regenerate(ctx context.Context, in codegen.RegenerateInput) (string, error)
}

// Executor runs one block. *executor.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, code, filePath, outputDir string) (*executor.Result, error)
}

// Config holds pipeline defaults.
type Config struct {
	// OutputRoot is the parent of per-dataset artifact directories.
	OutputRoot string
	// MaxRetries applies when a request does not set its own. Negative
	// selects DefaultMaxRetries.
	MaxRetries int
	// Profile controls the dataset profile handed to the generator.
	Profile analysis.Options
}

// Request is one pipeline invocation.
type Request struct {
	FilePath string
	Comments string
	// MaxRetries overrides Config.MaxRetries when non-nil.
	MaxRetries *int
	// RequestID is attached to log lines.
	RequestID string
	// OnBlockDone, when set, is called once per block after it reaches a
	// terminal state (and after its stream event was emitted).
	OnBlockDone func(ctx context.Context, outputDir string, b CodeBlock)
}

// Pipeline wires a Generator and an Executor. It is safe for concurrent use
// as long as concurrent requests target distinct datasets.
type Pipeline struct {
	gen    Generator
	exec   Executor
	cfg    Config
	logger *zap.Logger
}

// New returns a Pipeline. A nil logger disables logging.
func New(gen Generator, exec Executor, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.OutputRoot == "" {
		cfg.OutputRoot = filepath.Join("outputs", "plots")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.Profile.SampleRows <= 0 && cfg.Profile.SampleValues <= 0 {
		cfg.Profile = analysis.DefaultOptions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{gen: gen, exec: exec, cfg: cfg, logger: logger}
}

// Validate checks that filePath names an existing CSV file.
func Validate(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrFileNotFound, filePath)
	}
	if !strings.EqualFold(filepath.Ext(filePath), ".csv") {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, filePath)
	}
	return nil
}

// OutputDir returns the artifact directory used for filePath.
func (p *Pipeline) OutputDir(filePath string) string {
	return utils.OutputDirFor(p.cfg.OutputRoot, filePath)
}

func (p *Pipeline) maxRetries(req Request) int {
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		return *req.MaxRetries
	}
	return p.cfg.MaxRetries
}

// generate profiles the dataset and converts generated blocks to pending CodeBlocks.
func (p *Pipeline) generate(ctx context.Context, req Request, outputDir string) ([]CodeBlock, error) {
	prof, err := analysis.ProfileFile(req.FilePath, p.cfg.Profile)
	if err != nil {
		return nil, &GenerationError{Err: fmt.Errorf("profile dataset: %w", err)}
	}
	gen, err := p.gen.Generate(ctx, prof, req.FilePath, outputDir, req.Comments)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &GenerationError{Err: err}
	}
	blocks := make([]CodeBlock, len(gen))
	for i, g := range gen {
		blocks[i] = CodeBlock{
			ID:             g.ID,
			Description:    g.Description,
			Code:           g.Code,
			Status:         StatusPending,
			PlotsGenerated: []string{},
		}
	}
	return blocks, nil
}
