package pipeline

import "math"

// Status is the lifecycle state of a block or stream event.
type Status string

const (
	StatusPending    Status = "pending"
	StatusExecuting  Status = "executing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusGenerating Status = "generating"
)

// Aggregate statuses reported by Run.
const (
	OverallCompleted      = "completed"
	OverallPartialSuccess = "partial_success"
	OverallFailed         = "failed"
)

// CodeBlock is one analysis unit moving through execute and regenerate.
// ID and Description never change; Code is replaced wholesale on regeneration.
type CodeBlock struct {
	ID             int      `json:"id"`
	Description    string   `json:"description"`
	Code           string   `json:"code"`
	Status         Status   `json:"status"`
	Output         string   `json:"output,omitempty"`
	Error          string   `json:"error,omitempty"`
	PlotsGenerated []string `json:"plots_generated"`
	// ExecutionTime is in seconds, rounded to two decimals. Set on success only.
	ExecutionTime *float64 `json:"execution_time,omitempty"`
}

// Terminal reports whether the block reached success or error.
func (b *CodeBlock) Terminal() bool {
	return b.Status == StatusSuccess || b.Status == StatusError
}

// OverallStatus aggregates terminal block statuses. Zero blocks is failed.
func OverallStatus(blocks []CodeBlock) string {
	var ok, failed int
	for _, b := range blocks {
		switch b.Status {
		case StatusSuccess:
			ok++
		case StatusError:
			failed++
		}
	}
	switch {
	case ok > 0 && failed == 0 && ok == len(blocks):
		return OverallCompleted
	case ok > 0 && failed > 0:
		return OverallPartialSuccess
	default:
		return OverallFailed
	}
}

func roundSeconds(s float64) float64 {
	return math.Round(s*100) / 100
}
