// Package publish notifies downstream systems when an analysis block finishes.
//
// Adapters (webhook, Redis) implement Publisher. A Recorder uploads a block's
// artifacts to an object store, builds the event and fans it out. Failures are
// logged and never surface to the pipeline.
package publish

import (
	"context"
	"errors"
)

// EventTypeBlockCompleted is the event_type of every published event.
const EventTypeBlockCompleted = "block_completed"

// BlockCompletedEvent is the payload published after a block reaches a terminal state.
type BlockCompletedEvent struct {
	EventID        string   `json:"event_id"`
	EventType      string   `json:"event_type"`
	RequestID      string   `json:"request_id"`
	UID            string   `json:"uid,omitempty"`
	CSVID          string   `json:"csv_id,omitempty"`
	FilePath       string   `json:"file_path"`
	BlockID        int      `json:"block_id"`
	Description    string   `json:"description"`
	Code           string   `json:"code"`
	Status         string   `json:"status"`
	PlotsGenerated []string `json:"plots_generated"`
	ArtifactURLs   []string `json:"artifact_urls"`
	Timestamp      string   `json:"timestamp"` // RFC 3339
}

// Publisher sends events to one downstream system.
type Publisher interface {
	// Publish must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *BlockCompletedEvent) error
	Close() error
}

// Multi fans an event out to every publisher. All publishers are attempted;
// their errors are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event *BlockCompletedEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Publisher = Multi(nil)
