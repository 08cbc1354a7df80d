package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/KaramelBytes/statm8/internal/codegen"
	"github.com/KaramelBytes/statm8/internal/executor"
)

// RunBlock executes b, regenerating its code after each failure until it
// succeeds or maxRetries regenerations have been spent. b always ends in a
// terminal state unless ctx is canceled, in which case ctx.Err() is returned.
func (p *Pipeline) RunBlock(ctx context.Context, b *CodeBlock, filePath, outputDir string, maxRetries int) error {
	return p.runBlock(ctx, b, filePath, outputDir, maxRetries, "")
}

func (p *Pipeline) runBlock(ctx context.Context, b *CodeBlock, filePath, outputDir string, maxRetries int, requestID string) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	log := p.logger.With(zap.Int("block_id", b.ID))
	if requestID != "" {
		log = log.With(zap.String("request_id", requestID))
	}

	for attempt := 0; ; attempt++ {
		b.Status = StatusExecuting
		res, err := p.exec.Execute(ctx, b.Code, filePath, outputDir)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res = &executor.Result{Error: err.Error()}
		}

		if !res.Failed() {
			b.Status = StatusSuccess
			b.Error = ""
			b.Output = res.Output
			if attempt > 0 {
				b.Output = fmt.Sprintf("[Regenerated after %d attempt(s)]\n", attempt) + b.Output
			}
			b.PlotsGenerated = res.Artifacts
			if b.PlotsGenerated == nil {
				b.PlotsGenerated = []string{}
			}
			secs := roundSeconds(res.Duration.Seconds())
			b.ExecutionTime = &secs
			return nil
		}

		log.Warn("block execution failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries+1))

		if attempt >= maxRetries {
			b.Status = StatusError
			b.Error = fmt.Sprintf("Failed after %d attempts.\n\nFinal error:\n%s", maxRetries+1, res.Error)
			b.Output = res.Output
			b.PlotsGenerated = []string{}
			b.ExecutionTime = nil
			return nil
		}

		code, err := p.gen.Regenerate(ctx, codegen.RegenerateInput{
			FilePath:     filePath,
			OutputDir:    outputDir,
			ErrorText:    res.Error,
			PreviousCode: b.Code,
			Description:  b.Description,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The attempt is still spent; the next try reruns the same code.
			log.Error("block regeneration failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		b.Code = code
	}
}
