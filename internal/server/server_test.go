package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/statm8/internal/analysis"
	"github.com/KaramelBytes/statm8/internal/codegen"
	"github.com/KaramelBytes/statm8/internal/executor"
	"github.com/KaramelBytes/statm8/internal/pipeline"
	"github.com/KaramelBytes/statm8/internal/publish"
)

type stubGenerator struct {
	blocks []codegen.Block
	err    error
}

func (g *stubGenerator) Generate(context.Context, *analysis.DatasetProfile, string, string, string) ([]codegen.Block, error) {
	return g.blocks, g.err
}

func (g *stubGenerator) Regenerate(context.Context, codegen.RegenerateInput) (string, error) {
	return "print('fixed')", nil
}

// stubExecutor fails code containing "raise" and counts runs.
type stubExecutor struct {
	mu   sync.Mutex
	runs int
}

func (e *stubExecutor) Execute(_ context.Context, code, _, _ string) (*executor.Result, error) {
	e.mu.Lock()
	e.runs++
	e.mu.Unlock()
	if strings.Contains(code, "raise") {
		return &executor.Result{Error: "RuntimeError: nope"}, nil
	}
	return &executor.Result{Output: "done\n", Artifacts: []string{"a.png"}, Duration: 10 * time.Millisecond}, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []*publish.BlockCompletedEvent
}

func (p *capturePublisher) Publish(_ context.Context, e *publish.BlockCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type fixture struct {
	srv     *Server
	handler http.Handler
	exec    *stubExecutor
	pub     *capturePublisher
	csv     string
	dir     string
}

func newFixture(t *testing.T, gen *stubGenerator) *fixture {
	t.Helper()
	dir := t.TempDir()
	csv := filepath.Join(dir, "iris.csv")
	require.NoError(t, os.WriteFile(csv, []byte("a,b\n1,2\n3,4\n"), 0o644))

	exec := &stubExecutor{}
	out := filepath.Join(dir, "plots")
	p := pipeline.New(gen, exec, pipeline.Config{OutputRoot: out, MaxRetries: pipeline.DefaultMaxRetries}, nil)
	pub := &capturePublisher{}
	srv := New(Config{UploadDir: filepath.Join(dir, "uploads"), OutputRoot: out}, p, &publish.Recorder{Publisher: pub}, nil)
	return &fixture{srv: srv, handler: srv.Handler(), exec: exec, pub: pub, csv: csv, dir: dir}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

func twoBlocks() *stubGenerator {
	return &stubGenerator{blocks: []codegen.Block{
		{ID: 1, Description: "Histogram", Code: "print(1)"},
		{ID: 2, Description: "Broken", Code: "raise ValueError()"},
	}}
}

func TestRoot(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	rec := f.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome to Statm8 API")
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err, "request ids are uuids so they can be used as object key segments")
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-42")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "client-42", rec.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	req := httptest.NewRequest(http.MethodOptions, "/generate-eda", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Contains(t, []int{http.StatusOK, http.StatusNoContent}, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.True(t, strings.EqualFold("content-type", rec.Header().Get("Access-Control-Allow-Headers")))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, 0, f.exec.runs)
}

func TestCORSSimpleRequest(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://example.test")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://example.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGenerateSync(t *testing.T) {
	f := newFixture(t, twoBlocks())
	rec := f.do(t, http.MethodPost, "/generate-eda?max_retries=1", GenerateRequest{FilePath: f.csv, UID: "u1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.TotalBlocks)
	assert.Equal(t, pipeline.OverallCompleted, res.OverallStatus)
	assert.Equal(t, "iris", filepath.Base(res.OutputDir))
	assert.Equal(t, pipeline.StatusSuccess, res.Blocks[0].Status)
	assert.Equal(t, []string{"a.png"}, res.Blocks[0].PlotsGenerated)
	// Regenerated code succeeds on the second attempt.
	assert.Equal(t, pipeline.StatusSuccess, res.Blocks[1].Status)
	assert.True(t, strings.HasPrefix(res.Blocks[1].Output, "[Regenerated after 1 attempt(s)]\n"))

	require.Len(t, f.pub.events, 2)
	assert.Equal(t, "u1", f.pub.events[0].UID)
	assert.Equal(t, rec.Header().Get(RequestIDHeader), f.pub.events[0].RequestID)
}

func TestGenerateMaxRetriesZeroFromBody(t *testing.T) {
	f := newFixture(t, twoBlocks())
	zero := 0
	rec := f.do(t, http.MethodPost, "/generate-eda?max_retries=5", GenerateRequest{FilePath: f.csv, MaxRetries: &zero})
	require.Equal(t, http.StatusOK, rec.Code)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, pipeline.OverallPartialSuccess, res.OverallStatus)
	assert.Equal(t, pipeline.StatusSuccess, res.Blocks[0].Status)
	assert.Equal(t, pipeline.StatusError, res.Blocks[1].Status)
	assert.True(t, strings.HasPrefix(res.Blocks[1].Error, "Failed after 1 attempts.\n\nFinal error:\nRuntimeError: nope"))
	assert.Equal(t, 2, f.exec.runs)
}

func TestGenerateValidation(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	txt := filepath.Join(f.dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))

	cases := []struct {
		name   string
		target string
		body   any
		status int
		detail string
	}{
		{"missing file", "/generate-eda", GenerateRequest{FilePath: filepath.Join(f.dir, "nope.csv")}, http.StatusNotFound, "File not found: "},
		{"wrong type", "/generate-eda", GenerateRequest{FilePath: txt}, http.StatusBadRequest, "Only CSV files are supported"},
		{"no path", "/generate-eda", GenerateRequest{}, http.StatusUnprocessableEntity, "file_path is required"},
		{"bad retries", "/generate-eda?max_retries=x", GenerateRequest{FilePath: f.csv}, http.StatusUnprocessableEntity, "max_retries"},
		{"stream missing file", "/generate-eda-stream", GenerateRequest{FilePath: "nope.csv"}, http.StatusNotFound, "File not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tc.target, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, decodeDetail(t, rec), tc.detail)
		})
	}
}

func TestGenerateBadJSON(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	req := httptest.NewRequest(http.MethodPost, "/generate-eda", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateModelFailure(t *testing.T) {
	f := newFixture(t, &stubGenerator{err: errors.New("invalid api key")})
	rec := f.do(t, http.MethodPost, "/generate-eda", GenerateRequest{FilePath: f.csv})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error generating EDA: invalid api key", decodeDetail(t, rec))
}

func readEvents(t *testing.T, body string) []pipeline.Event {
	t.Helper()
	var events []pipeline.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected line %q", line)
		var ev pipeline.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestGenerateStream(t *testing.T) {
	f := newFixture(t, twoBlocks())
	rec := f.do(t, http.MethodPost, "/generate-eda-stream", GenerateRequest{FilePath: f.csv})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.True(t, strings.HasSuffix(rec.Body.String(), "\n\n"))

	events := readEvents(t, rec.Body.String())
	require.Len(t, events, 5)
	assert.Equal(t, 0, events[0].BlockID)
	assert.Equal(t, pipeline.StatusGenerating, events[0].Status)
	ids := []int{events[1].BlockID, events[2].BlockID, events[3].BlockID, events[4].BlockID}
	assert.Equal(t, []int{1, 1, 2, 2}, ids)
	assert.Equal(t, pipeline.StatusExecuting, events[3].Status)
	assert.Equal(t, "raise ValueError()", events[3].Code)
	assert.Equal(t, pipeline.StatusSuccess, events[4].Status)
}

func TestGenerateStreamModelFailure(t *testing.T) {
	f := newFixture(t, &stubGenerator{err: errors.New("upstream 503")})
	rec := f.do(t, http.MethodPost, "/generate-eda-stream", GenerateRequest{FilePath: f.csv})
	require.Equal(t, http.StatusOK, rec.Code)

	events := readEvents(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, pipeline.ErrorBlockID, events[1].BlockID)
	assert.Equal(t, "Error occurred", events[1].Description)
	assert.Contains(t, events[1].Error, "upstream 503")
}

func TestListPlots(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	dir := filepath.Join(f.dir, "plots", "iris")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range []string{"b.svg", "a.PNG", "notes.txt", "c.jpeg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}

	rec := f.do(t, http.MethodGet, "/list-plots?output_dir="+dir, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		OutputDir  string   `json:"output_dir"`
		TotalPlots int      `json:"total_plots"`
		Plots      []string `json:"plots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, dir, body.OutputDir)
	assert.Equal(t, 3, body.TotalPlots)
	assert.Equal(t, []string{"a.PNG", "b.svg", "c.jpeg"}, body.Plots)

	rec = f.do(t, http.MethodGet, "/list-plots?output_dir="+filepath.Join(f.dir, "missing"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Output directory does not exist")
}

func multipartUpload(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestAnalyzeUpload(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	body, ct := multipartUpload(t, "sales data.csv", "region,amount\nnorth,10\nsouth,\n")
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "csv", got["file_type"])
	assert.EqualValues(t, 2, got["total_rows"])
	assert.EqualValues(t, 2, got["total_columns"])
	path, _ := got["file_path"].(string)
	require.FileExists(t, path)
	assert.Equal(t, ".csv", filepath.Ext(path))
	assert.True(t, strings.HasPrefix(path, filepath.Join(f.dir, "uploads")))
	assert.Len(t, got["sample_rows"], 2)
}

func TestAnalyzeRejectsUnsupported(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	body, ct := multipartUpload(t, "book.xlsx", "x")
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only CSV and JSON files are supported", decodeDetail(t, rec))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, &stubGenerator{})
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("IPv4 loopback not available: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
