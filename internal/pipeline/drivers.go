package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Result is the aggregate outcome of Run.
type Result struct {
	FilePath      string      `json:"file_path"`
	OutputDir     string      `json:"output_dir"`
	TotalBlocks   int         `json:"total_blocks"`
	Blocks        []CodeBlock `json:"blocks"`
	OverallStatus string      `json:"overall_status"`
}

// Event is one streamed progress update.
type Event struct {
	BlockID        int      `json:"block_id"`
	Description    string   `json:"description"`
	Code           string   `json:"code"`
	Status         Status   `json:"status"`
	Output         string   `json:"output,omitempty"`
	Error          string   `json:"error,omitempty"`
	PlotsGenerated []string `json:"plots_generated"`
}

// Synthetic event ids and labels.
const (
	GeneratingBlockID     = 0
	ErrorBlockID          = -1
	GeneratingDescription = "Generating EDA code blocks..."
	ErrorDescription      = "Error occurred"
)

// EmitFunc receives stream events in order. A non-nil return stops the stream.
type EmitFunc func(Event) error

// Run validates the request, generates all blocks and runs them in id order.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := Validate(req.FilePath); err != nil {
		return nil, err
	}
	outputDir := p.OutputDir(req.FilePath)
	start := time.Now()

	blocks, err := p.generate(ctx, req, outputDir)
	if err != nil {
		return nil, err
	}
	retries := p.maxRetries(req)
	for i := range blocks {
		if err := p.runBlock(ctx, &blocks[i], req.FilePath, outputDir, retries, req.RequestID); err != nil {
			return nil, err
		}
		if req.OnBlockDone != nil && blocks[i].Terminal() {
			req.OnBlockDone(ctx, outputDir, blocks[i])
		}
	}

	res := &Result{
		FilePath:      req.FilePath,
		OutputDir:     outputDir,
		TotalBlocks:   len(blocks),
		Blocks:        blocks,
		OverallStatus: OverallStatus(blocks),
	}
	p.logger.Info("pipeline completed",
		zap.String("request_id", req.RequestID),
		zap.String("file_path", req.FilePath),
		zap.Int("total_blocks", res.TotalBlocks),
		zap.String("overall_status", res.OverallStatus),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// Stream validates the request and then emits a generating event, followed by
// an executing and a terminal event per block. Validation errors are returned
// before any event is emitted. Any later failure other than cancellation or an
// emit error is reported as a single error event with block id -1, and is also
// returned.
func (p *Pipeline) Stream(ctx context.Context, req Request, emit EmitFunc) error {
	if err := Validate(req.FilePath); err != nil {
		return err
	}
	outputDir := p.OutputDir(req.FilePath)

	err := p.stream(ctx, req, outputDir, emit)
	var emitErr *emitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &emitErr):
		return emitErr.err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	p.logger.Error("streaming pipeline failed", zap.String("request_id", req.RequestID), zap.Error(err))
	if e := emit(Event{
		BlockID:        ErrorBlockID,
		Description:    ErrorDescription,
		Status:         StatusError,
		Error:          err.Error(),
		PlotsGenerated: []string{},
	}); e != nil {
		return e
	}
	return err
}

type emitError struct{ err error }

func (e *emitError) Error() string { return e.err.Error() }

func (p *Pipeline) stream(ctx context.Context, req Request, outputDir string, emit EmitFunc) error {
	send := func(ev Event) error {
		if err := emit(ev); err != nil {
			return &emitError{err: err}
		}
		return nil
	}
	if err := send(Event{
		BlockID:        GeneratingBlockID,
		Description:    GeneratingDescription,
		Status:         StatusGenerating,
		PlotsGenerated: []string{},
	}); err != nil {
		return err
	}

	blocks, err := p.generate(ctx, req, outputDir)
	if err != nil {
		return err
	}
	retries := p.maxRetries(req)
	for i := range blocks {
		b := &blocks[i]
		if err := send(Event{
			BlockID:        b.ID,
			Description:    b.Description,
			Code:           b.Code,
			Status:         StatusExecuting,
			PlotsGenerated: []string{},
		}); err != nil {
			return err
		}
		if err := p.runBlock(ctx, b, req.FilePath, outputDir, retries, req.RequestID); err != nil {
			return err
		}
		if err := send(blockEvent(b)); err != nil {
			return err
		}
		if req.OnBlockDone != nil && b.Terminal() {
			req.OnBlockDone(ctx, outputDir, *b)
		}
	}
	p.logger.Info("streaming pipeline completed",
		zap.String("request_id", req.RequestID),
		zap.String("file_path", req.FilePath),
		zap.Int("total_blocks", len(blocks)),
		zap.String("overall_status", OverallStatus(blocks)))
	return nil
}

func blockEvent(b *CodeBlock) Event {
	return Event{
		BlockID:        b.ID,
		Description:    b.Description,
		Code:           b.Code,
		Status:         b.Status,
		Output:         b.Output,
		Error:          b.Error,
		PlotsGenerated: b.PlotsGenerated,
	}
}
