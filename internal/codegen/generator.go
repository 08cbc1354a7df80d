package codegen

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/KaramelBytes/statm8/internal/ai"
	"github.com/KaramelBytes/statm8/internal/analysis"
	"github.com/KaramelBytes/statm8/internal/utils"
)

// Config tunes the model calls made by a Generator.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// PromptSampleRows is how many sample rows are embedded in the generation prompt.
	PromptSampleRows int
	// MaxPromptTokens caps the estimated prompt size; 0 derives it from the model's context window.
	MaxPromptTokens int
}

// Generator obtains analysis code from a chat model.
type Generator struct {
	rt     ai.Runtime
	cfg    Config
	logger *zap.Logger
}

// New returns a Generator using rt. A nil logger disables logging.
func New(rt ai.Runtime, cfg Config, logger *zap.Logger) *Generator {
	if cfg.PromptSampleRows <= 0 {
		cfg.PromptSampleRows = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{rt: rt, cfg: cfg, logger: logger}
}

// Generate makes a single model call for the dataset and parses the response into
// blocks. Zero blocks is a valid result. Model failures are returned unretried.
func (g *Generator) Generate(ctx context.Context, p *analysis.DatasetProfile, filePath, outputDir, comments string) ([]Block, error) {
	msgs, err := g.generationMessages(p, filePath, outputDir, comments)
	if err != nil {
		return nil, err
	}
	content, err := g.call(ctx, "generate", msgs)
	if err != nil {
		return nil, fmt.Errorf("generate code blocks: %w", err)
	}
	blocks := ParseBlocks(content, filePath, outputDir)
	g.logger.Info("generated code blocks", zap.String("file_path", filePath), zap.Int("blocks", len(blocks)))
	return blocks, nil
}

// RegenerateInput describes a failed block to be rewritten.
type RegenerateInput struct {
	FilePath     string
	OutputDir    string
	ErrorText    string
	PreviousCode string
	Description  string
}

// Regenerate asks the model for a full replacement of a failing block and returns
// the fence-cleaned code. The result is not validated.
func (g *Generator) Regenerate(ctx context.Context, in RegenerateInput) (string, error) {
	msgs, err := RegenerationPrompt.Render(map[string]string{
		"file_path":     in.FilePath,
		"output_dir":    in.OutputDir,
		"description":   in.Description,
		"previous_code": in.PreviousCode,
		"error_msg":     in.ErrorText,
	})
	if err != nil {
		return "", err
	}
	content, err := g.call(ctx, "regenerate", msgs)
	if err != nil {
		return "", fmt.Errorf("regenerate code block: %w", err)
	}
	return CleanCode(content), nil
}

func (g *Generator) generationMessages(p *analysis.DatasetProfile, filePath, outputDir, comments string) ([]ai.Message, error) {
	columns, err := p.PromptColumns()
	if err != nil {
		return nil, err
	}
	render := func(columns, rows string) ([]ai.Message, int, error) {
		msgs, err := GenerationPrompt.Render(map[string]string{
			"file_path":        filePath,
			"total_rows":       strconv.Itoa(p.TotalRows),
			"total_columns":    strconv.Itoa(p.TotalColumns),
			"columns_info":     columns,
			"sample_rows":      rows,
			"output_dir":       outputDir,
			"comments_section": commentsSection(comments),
		})
		if err != nil {
			return nil, 0, err
		}
		return msgs, utils.CountTokens(msgs[0].Content) + utils.CountTokens(msgs[1].Content), nil
	}

	budget := g.promptBudget()
	// Drop sample rows until the prompt fits the budget.
	for n := g.cfg.PromptSampleRows; ; n-- {
		rows, err := p.PromptSampleRows(n)
		if err != nil {
			return nil, err
		}
		msgs, tokens, err := render(columns, rows)
		if err != nil {
			return nil, err
		}
		if budget > 0 && tokens > budget && n > 0 {
			continue
		}
		if budget > 0 && tokens > budget {
			// Only the column details shrink: the instructions, the output
			// directory and the user's comments must reach the model intact.
			keep := utils.CountTokens(columns) - (tokens - budget)
			columns = utils.TruncateToTokenLimit(columns, keep) + "\n... (column details truncated)"
			if msgs, _, err = render(columns, rows); err != nil {
				return nil, err
			}
			g.logger.Warn("column details truncated to fit prompt budget",
				zap.Int("estimated_tokens", tokens), zap.Int("budget", budget))
		}
		g.logger.Debug("generation prompt",
			zap.Int("sample_rows", n),
			zap.Any("token_breakdown", utils.TokenBreakdown(map[string]string{
				"columns_info": columns,
				"sample_rows":  rows,
				"comments":     comments,
			})))
		return msgs, nil
	}
}

func (g *Generator) promptBudget() int {
	if g.cfg.MaxPromptTokens > 0 {
		return g.cfg.MaxPromptTokens
	}
	if mi, ok := ai.LookupModel(g.cfg.Model); ok && mi.ContextTokens > 0 {
		return mi.ContextTokens - g.cfg.MaxTokens
	}
	return 0
}

func (g *Generator) call(ctx context.Context, op string, msgs []ai.Message) (string, error) {
	resp, err := g.rt.Generate(ctx, ai.GenerateRequest{
		Model:       g.cfg.Model,
		Messages:    msgs,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("model", g.cfg.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	}
	if resp.RequestID != "" {
		fields = append(fields, zap.String("provider_request_id", resp.RequestID))
	}
	if cost, ok := ai.EstimateCostUSD(g.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens); ok {
		fields = append(fields, zap.Float64("est_cost_usd", cost))
	}
	g.logger.Debug("model call completed", fields...)
	return resp.Content(), nil
}
