package publish

import (
	"context"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/statm8/internal/pipeline"
)

// Uploader stores a local file under key and returns a URL for it.
// artifactstore.Store satisfies it.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Meta identifies the request a block belongs to.
type Meta struct {
	RequestID string
	UID       string
	CSVID     string
	FilePath  string
}

// Recorder persists artifacts and publishes one event per terminal block.
// A zero Recorder is valid and does nothing.
type Recorder struct {
	Uploader  Uploader
	Publisher Publisher
	Logger    *zap.Logger
	// Timeout bounds uploading and publishing for one block (default 30s).
	Timeout time.Duration

	now func() time.Time
}

// Enabled reports whether recording has anywhere to go.
func (r *Recorder) Enabled() bool {
	return r != nil && (r.Uploader != nil || r.Publisher != nil)
}

// Hook adapts the recorder to pipeline.Request.OnBlockDone for one request.
func (r *Recorder) Hook(meta Meta) func(context.Context, string, pipeline.CodeBlock) {
	if !r.Enabled() {
		return nil
	}
	return func(ctx context.Context, outputDir string, b pipeline.CodeBlock) {
		r.Record(ctx, meta, outputDir, b)
	}
}

// Record uploads the block's artifacts and publishes its completion event.
// It keeps going after the caller's context is canceled, up to Timeout.
func (r *Recorder) Record(ctx context.Context, meta Meta, outputDir string, b pipeline.CodeBlock) {
	if !r.Enabled() {
		return
	}
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("request_id", meta.RequestID), zap.Int("block_id", b.ID))

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	urls := []string{}
	if r.Uploader != nil {
		for _, name := range b.PlotsGenerated {
			key := ArtifactKey(meta, outputDir, name)
			url, err := r.Uploader.Upload(ctx, filepath.Join(outputDir, name), key)
			if err != nil {
				log.Warn("artifact upload failed", zap.String("artifact", name), zap.Error(err))
				continue
			}
			urls = append(urls, url)
		}
	}

	if r.Publisher == nil {
		return
	}
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	plots := b.PlotsGenerated
	if plots == nil {
		plots = []string{}
	}
	event := &BlockCompletedEvent{
		EventID:        uuid.NewString(),
		EventType:      EventTypeBlockCompleted,
		RequestID:      meta.RequestID,
		UID:            meta.UID,
		CSVID:          meta.CSVID,
		FilePath:       meta.FilePath,
		BlockID:        b.ID,
		Description:    b.Description,
		Code:           b.Code,
		Status:         string(b.Status),
		PlotsGenerated: plots,
		ArtifactURLs:   urls,
		Timestamp:      now().UTC().Format(time.RFC3339),
	}
	if err := r.Publisher.Publish(ctx, event); err != nil {
		log.Warn("block event publish failed", zap.Error(err))
		return
	}
	log.Debug("block event published", zap.String("event_id", event.EventID))
}

// ArtifactKey is the object key for an artifact:
// <uid or "anonymous">/<dataset dir>/<request id>/<name>.
func ArtifactKey(meta Meta, outputDir, name string) string {
	owner := meta.UID
	if owner == "" {
		owner = "anonymous"
	}
	req := meta.RequestID
	if req == "" {
		req = "local"
	}
	return path.Join(owner, filepath.Base(outputDir), req, name)
}
