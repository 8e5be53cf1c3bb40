// Package processing runs document jobs for a session and reports progress.
package processing

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/doctools/backend/internal/models"
)

// Job is the input of one processing run.
type Job struct {
	SessionID string
	Tool      models.Tool
	Files     []models.StagedFile
}

// ProgressFunc receives the overall progress of a run as a percentage in [0,100].
type ProgressFunc func(percent float64)

// Engine turns a job into an output. Implementations must return promptly once
// ctx is cancelled. A non-nil error moves the session into the error state.
type Engine interface {
	Run(ctx context.Context, job Job, progress ProgressFunc) (*models.Output, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, job Job, progress ProgressFunc) (*models.Output, error)

// Run calls f.
func (f EngineFunc) Run(ctx context.Context, job Job, progress ProgressFunc) (*models.Output, error) {
	return f(ctx, job, progress)
}

// NewOutput describes the result of job as produced at completedAt.
func NewOutput(job Job, completedAt time.Time) *models.Output {
	return &models.Output{
		ToolID:      job.Tool.ID,
		Format:      job.Tool.OutputFormat,
		FileName:    OutputFileName(job),
		FileCount:   len(job.Files),
		CompletedAt: completedAt,
	}
}

// OutputFileName suggests a file name for the result, based on the first input.
func OutputFileName(job Job) string {
	base := "output"
	if len(job.Files) > 0 {
		name := job.Files[0].Name
		base = strings.TrimSuffix(name, filepath.Ext(name))
	}
	ext := strings.ToLower(job.Tool.OutputFormat)
	if ext == "" {
		return base
	}
	if job.Tool.ID == "" {
		return fmt.Sprintf("%s.%s", base, ext)
	}
	return fmt.Sprintf("%s-%s.%s", base, job.Tool.ID, ext)
}
