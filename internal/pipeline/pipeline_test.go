package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/statm8/internal/analysis"
	"github.com/KaramelBytes/statm8/internal/codegen"
	"github.com/KaramelBytes/statm8/internal/executor"
)

type fakeGenerator struct {
	blocks    []codegen.Block
	genErr    error
	regenCode string
	regenErr  error

	mu         sync.Mutex
	regenCalls []codegen.RegenerateInput
	comments   string
}

func (g *fakeGenerator) Generate(_ context.Context, p *analysis.DatasetProfile, _, _, comments string) ([]codegen.Block, error) {
	g.comments = comments
	if g.genErr != nil {
		return nil, g.genErr
	}
	return g.blocks, nil
}

func (g *fakeGenerator) Regenerate(_ context.Context, in codegen.RegenerateInput) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.regenCalls = append(g.regenCalls, in)
	if g.regenErr != nil {
		return "", g.regenErr
	}
	return g.regenCode, nil
}

// fakeExecutor fails any code containing "boom" and records every run.
type fakeExecutor struct {
	mu    sync.Mutex
	codes []string
	err   error
}

func (e *fakeExecutor) Execute(ctx context.Context, code, _, _ string) (*executor.Result, error) {
	e.mu.Lock()
	e.codes = append(e.codes, code)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.Contains(code, "boom") {
		return &executor.Result{Output: "partial\n", Error: "NameError: boom\n\nTraceback ..."}, nil
	}
	return &executor.Result{
		Output:    "ok: " + code + "\n",
		Artifacts: []string{"plot.png"},
		Duration:  1234567 * time.Microsecond,
	}, nil
}

func (e *fakeExecutor) runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.codes)
}

func writeCSV(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "iris.csv")
	require.NoError(t, os.WriteFile(p, []byte("a,b\n1,x\n2,y\n"), 0o644))
	return p
}

func newTestPipeline(t *testing.T, gen Generator, exec Executor) *Pipeline {
	t.Helper()
	return New(gen, exec, Config{OutputRoot: filepath.Join(t.TempDir(), "plots"), MaxRetries: DefaultMaxRetries}, nil)
}

func intPtr(v int) *int { return &v }

func TestRunBlockSucceedsFirstTry(t *testing.T) {
	exec := &fakeExecutor{}
	p := newTestPipeline(t, &fakeGenerator{}, exec)
	b := &CodeBlock{ID: 1, Description: "hist", Code: "plot()", Status: StatusPending}
	assert.False(t, b.Terminal())

	require.NoError(t, p.RunBlock(context.Background(), b, "d.csv", "out", 2))
	assert.True(t, b.Terminal())
	assert.Equal(t, StatusSuccess, b.Status)
	assert.Equal(t, "ok: plot()\n", b.Output)
	assert.Equal(t, []string{"plot.png"}, b.PlotsGenerated)
	require.NotNil(t, b.ExecutionTime)
	assert.Equal(t, 1.23, *b.ExecutionTime)
	assert.Equal(t, 1, exec.runs())
}

func TestRunBlockFailOnceThenSucceed(t *testing.T) {
	exec := &fakeExecutor{}
	gen := &fakeGenerator{regenCode: "fixed()"}
	p := newTestPipeline(t, gen, exec)
	b := &CodeBlock{ID: 3, Description: "corr", Code: "boom()"}

	require.NoError(t, p.RunBlock(context.Background(), b, "d.csv", "out", 2))
	assert.Equal(t, StatusSuccess, b.Status)
	assert.Equal(t, "[Regenerated after 1 attempt(s)]\nok: fixed()\n", b.Output)
	assert.Equal(t, "fixed()", b.Code)
	assert.Equal(t, 3, b.ID)
	assert.Equal(t, "corr", b.Description)
	assert.Equal(t, 2, exec.runs())

	require.Len(t, gen.regenCalls, 1)
	in := gen.regenCalls[0]
	assert.Equal(t, "boom()", in.PreviousCode)
	assert.Equal(t, "corr", in.Description)
	assert.Contains(t, in.ErrorText, "NameError: boom")
}

func TestRunBlockPermanentFailureUsesRPlusOneAttempts(t *testing.T) {
	for _, r := range []int{0, 1, 2, 4} {
		exec := &fakeExecutor{}
		gen := &fakeGenerator{regenCode: "boom again"}
		p := newTestPipeline(t, gen, exec)
		b := &CodeBlock{ID: 1, Description: "d", Code: "boom"}

		require.NoError(t, p.RunBlock(context.Background(), b, "d.csv", "out", r))
		assert.True(t, b.Terminal())
		assert.Equal(t, StatusError, b.Status)
		assert.Equal(t, r+1, exec.runs(), "max_retries=%d", r)
		assert.Len(t, gen.regenCalls, r)
		assert.True(t, strings.HasPrefix(b.Error, "Failed after "))
		assert.Contains(t, b.Error, "attempts.\n\nFinal error:\nNameError: boom")
		assert.Equal(t, "partial\n", b.Output)
		assert.Nil(t, b.ExecutionTime)
	}
}

func TestRunBlockRegenerationFailureConsumesAttempt(t *testing.T) {
	exec := &fakeExecutor{}
	gen := &fakeGenerator{regenErr: errors.New("model down")}
	p := newTestPipeline(t, gen, exec)
	b := &CodeBlock{ID: 1, Description: "d", Code: "boom"}

	require.NoError(t, p.RunBlock(context.Background(), b, "d.csv", "out", 2))
	assert.Equal(t, StatusError, b.Status)
	assert.Equal(t, 3, exec.runs())
	assert.Equal(t, "boom", b.Code)
	assert.True(t, strings.HasPrefix(b.Error, "Failed after 3 attempts."))
}

func TestRunBlockExecutorErrorBecomesBlockError(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("disk full")}
	p := newTestPipeline(t, &fakeGenerator{regenCode: "x"}, exec)
	b := &CodeBlock{ID: 1, Code: "x"}

	require.NoError(t, p.RunBlock(context.Background(), b, "d.csv", "out", 0))
	assert.Equal(t, StatusError, b.Status)
	assert.Contains(t, b.Error, "disk full")
}

func TestRunBlockCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestPipeline(t, &fakeGenerator{}, &fakeExecutor{})
	b := &CodeBlock{ID: 1, Code: "x"}
	assert.ErrorIs(t, p.RunBlock(ctx, b, "d.csv", "out", 2), context.Canceled)
}

func TestOverallStatus(t *testing.T) {
	s := CodeBlock{Status: StatusSuccess}
	e := CodeBlock{Status: StatusError}
	cases := []struct {
		name   string
		blocks []CodeBlock
		want   string
	}{
		{"none", nil, OverallFailed},
		{"all success", []CodeBlock{s, s}, OverallCompleted},
		{"mixed", []CodeBlock{s, e, s}, OverallPartialSuccess},
		{"all error", []CodeBlock{e, e}, OverallFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, OverallStatus(tc.blocks))
		})
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	assert.ErrorIs(t, Validate(filepath.Join(dir, "missing.csv")), ErrFileNotFound)
	assert.ErrorIs(t, Validate(dir), ErrFileNotFound)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	assert.ErrorIs(t, Validate(txt), ErrUnsupportedType)

	upper := filepath.Join(dir, "DATA.CSV")
	require.NoError(t, os.WriteFile(upper, []byte("a\n1\n"), 0o644))
	assert.NoError(t, Validate(upper))
}

func TestRunAggregates(t *testing.T) {
	gen := &fakeGenerator{
		blocks: []codegen.Block{
			{ID: 1, Description: "one", Code: "a()"},
			{ID: 2, Description: "two", Code: "boom"},
			{ID: 3, Description: "three", Code: "c()"},
		},
		regenCode: "boom still",
	}
	exec := &fakeExecutor{}
	p := newTestPipeline(t, gen, exec)
	file := writeCSV(t)

	var done []int
	res, err := p.Run(context.Background(), Request{
		FilePath:   file,
		Comments:   "focus on a",
		MaxRetries: intPtr(1),
		OnBlockDone: func(_ context.Context, _ string, b CodeBlock) {
			done = append(done, b.ID)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, file, res.FilePath)
	assert.Equal(t, "iris", filepath.Base(res.OutputDir))
	assert.Equal(t, 3, res.TotalBlocks)
	assert.Equal(t, OverallPartialSuccess, res.OverallStatus)
	assert.Equal(t, []int{1, 2, 3}, done)
	assert.Equal(t, "focus on a", gen.comments)
	assert.Equal(t, StatusError, res.Blocks[1].Status)
	assert.True(t, strings.HasPrefix(res.Blocks[1].Error, "Failed after 2 attempts."))
	assert.Equal(t, StatusSuccess, res.Blocks[2].Status)
	// 1 + 2 + 1 executions.
	assert.Equal(t, 4, exec.runs())
}

func TestRunZeroBlocksIsFailed(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{}, &fakeExecutor{})
	res, err := p.Run(context.Background(), Request{FilePath: writeCSV(t)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalBlocks)
	assert.Equal(t, OverallFailed, res.OverallStatus)
}

func TestRunGenerationFailure(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{genErr: errors.New("rate limited")}, &fakeExecutor{})
	_, err := p.Run(context.Background(), Request{FilePath: writeCSV(t)})
	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRunValidationFailure(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{}, &fakeExecutor{})
	_, err := p.Run(context.Background(), Request{FilePath: "nope.csv"})
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func collect(events *[]Event) EmitFunc {
	return func(ev Event) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestStreamEventSequence(t *testing.T) {
	gen := &fakeGenerator{
		blocks: []codegen.Block{
			{ID: 1, Description: "one", Code: "a()"},
			{ID: 2, Description: "two", Code: "boom"},
		},
		regenCode: "b()",
	}
	p := newTestPipeline(t, gen, &fakeExecutor{})
	var events []Event
	require.NoError(t, p.Stream(context.Background(), Request{FilePath: writeCSV(t)}, collect(&events)))

	require.Len(t, events, 5)
	assert.Equal(t, GeneratingBlockID, events[0].BlockID)
	assert.Equal(t, StatusGenerating, events[0].Status)
	assert.Equal(t, GeneratingDescription, events[0].Description)

	wantIDs := []int{1, 1, 2, 2}
	wantStatus := []Status{StatusExecuting, StatusSuccess, StatusExecuting, StatusSuccess}
	for i, ev := range events[1:] {
		assert.Equal(t, wantIDs[i], ev.BlockID)
		assert.Equal(t, wantStatus[i], ev.Status)
		assert.NotEmpty(t, ev.Code)
		assert.NotNil(t, ev.PlotsGenerated)
	}
	assert.Equal(t, "boom", events[3].Code)
	assert.Equal(t, "b()", events[4].Code)
	assert.True(t, strings.HasPrefix(events[4].Output, "[Regenerated after 1 attempt(s)]\n"))
}

func TestStreamGenerationFailureEmitsErrorEvent(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{genErr: errors.New("bad key")}, &fakeExecutor{})
	var events []Event
	err := p.Stream(context.Background(), Request{FilePath: writeCSV(t)}, collect(&events))
	require.Error(t, err)

	require.Len(t, events, 2)
	last := events[1]
	assert.Equal(t, ErrorBlockID, last.BlockID)
	assert.Equal(t, StatusError, last.Status)
	assert.Equal(t, ErrorDescription, last.Description)
	assert.Contains(t, last.Error, "bad key")
}

func TestStreamValidationEmitsNothing(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{}, &fakeExecutor{})
	var events []Event
	err := p.Stream(context.Background(), Request{FilePath: "missing.csv"}, collect(&events))
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.Empty(t, events)
}

func TestStreamStopsWhenEmitFails(t *testing.T) {
	gen := &fakeGenerator{blocks: []codegen.Block{{ID: 1, Code: "a()"}, {ID: 2, Code: "b()"}}}
	exec := &fakeExecutor{}
	p := newTestPipeline(t, gen, exec)
	gone := errors.New("client gone")
	n := 0
	err := p.Stream(context.Background(), Request{FilePath: writeCSV(t)}, func(Event) error {
		n++
		if n == 3 {
			return gone
		}
		return nil
	})
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 1, exec.runs())
}
