package session

import (
	"errors"
	"time"

	"github.com/doctools/backend/internal/models"
	"github.com/doctools/backend/internal/staging"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrNoFilesSelected   = errors.New("no files selected")
	ErrAlreadyProcessing = errors.New("session is already processing")
	ErrAlreadyComplete   = errors.New("session is already complete; reset to start over")
	ErrSessionBusy       = errors.New("files cannot change while processing")
	ErrNotComplete       = errors.New("session has no output yet")
	ErrTooManySessions   = errors.New("too many active sessions")
)

// Session is the state machine for one tool selection. It is not safe for
// concurrent use; the Manager serializes access to it.
//
//	idle -> processing        Start, requires staged files
//	processing -> complete    Complete
//	processing -> error       Fail
//	error -> processing       Start (retry)
//	any -> idle               Reset
type Session struct {
	ID        string
	Tool      models.Tool
	CreatedAt time.Time

	area     *staging.Area
	status   models.SessionStatus
	progress float64
	failure  string
	output   *models.Output
}

// New creates an idle session for tool.
func New(id string, tool models.Tool, limits staging.Limits) *Session {
	return &Session{
		ID:        id,
		Tool:      tool,
		CreatedAt: time.Now(),
		area:      staging.NewArea(limits),
		status:    models.SessionStatusIdle,
	}
}

// Status returns the current state.
func (s *Session) Status() models.SessionStatus { return s.status }

// Progress returns the current progress percentage.
func (s *Session) Progress() float64 { return s.progress }

// Output returns the result of the last successful run, if any.
func (s *Session) Output() *models.Output { return s.output }

// Files returns a copy of the staged files in order.
func (s *Session) Files() []models.StagedFile { return s.area.Files() }

// Stage validates candidates against the tool's input formats and appends the
// accepted ones. Staging after a finished run returns the session to idle.
func (s *Session) Stage(candidates []models.RawFile) (staging.Result, error) {
	if s.status == models.SessionStatusProcessing {
		return staging.Result{}, ErrSessionBusy
	}
	res := s.area.Stage(candidates, s.Tool.InputFormats)
	if len(res.Accepted) > 0 {
		s.toIdle()
	}
	return res, nil
}

// Remove drops a staged file and reports whether it was present.
func (s *Session) Remove(fileID string) (models.StagedFile, bool, error) {
	if s.status == models.SessionStatusProcessing {
		return models.StagedFile{}, false, ErrSessionBusy
	}
	f, ok := s.area.Find(fileID)
	if !ok {
		return models.StagedFile{}, false, nil
	}
	return f, s.area.Remove(fileID), nil
}

// Reorder arranges the staged files in the order of fileIDs, which must be a
// permutation of the staged ids.
func (s *Session) Reorder(fileIDs []string) error {
	if s.status == models.SessionStatusProcessing {
		return ErrSessionBusy
	}
	order := make([]models.StagedFile, 0, len(fileIDs))
	for _, id := range fileIDs {
		f, ok := s.area.Find(id)
		if !ok {
			return staging.ErrInvalidReorder
		}
		order = append(order, f)
	}
	return s.area.Reorder(order)
}

// Start moves an idle or failed session into processing. With nothing staged
// it returns ErrNoFilesSelected and the state is unchanged.
func (s *Session) Start() error {
	switch s.status {
	case models.SessionStatusProcessing:
		return ErrAlreadyProcessing
	case models.SessionStatusComplete:
		return ErrAlreadyComplete
	}
	if s.area.Len() == 0 {
		return ErrNoFilesSelected
	}
	s.status = models.SessionStatusProcessing
	s.progress = 0
	s.failure = ""
	s.output = nil
	return nil
}

// Advance records engine progress. Values are clamped to [0,100] and ignored
// when lower than the current progress or when not processing.
func (s *Session) Advance(percent float64) {
	if s.status != models.SessionStatusProcessing {
		return
	}
	if percent > 100 {
		percent = 100
	}
	if percent > s.progress {
		s.progress = percent
	}
}

// Complete finishes a run successfully.
func (s *Session) Complete(out *models.Output) bool {
	if s.status != models.SessionStatusProcessing {
		return false
	}
	s.status = models.SessionStatusComplete
	s.progress = 100
	s.output = out
	return true
}

// Fail finishes a run with a reason shown to the user.
func (s *Session) Fail(reason string) bool {
	if s.status != models.SessionStatusProcessing {
		return false
	}
	s.status = models.SessionStatusError
	s.failure = reason
	return true
}

// Reset returns the session to idle with nothing staged, from any state, and
// returns the files that were released.
func (s *Session) Reset() []models.StagedFile {
	released := s.area.Clear()
	s.toIdle()
	return released
}

func (s *Session) toIdle() {
	s.status = models.SessionStatusIdle
	s.progress = 0
	s.failure = ""
	s.output = nil
}

// Snapshot returns a copy of the session suitable for serialization.
func (s *Session) Snapshot() models.ToolSession {
	files := s.area.Files()
	if files == nil {
		files = []models.StagedFile{}
	}
	snap := models.ToolSession{
		ID:         s.ID,
		Tool:       s.Tool.Clone(),
		Files:      files,
		FileCount:  len(files),
		TotalBytes: s.area.TotalBytes(),
		Status:     s.status,
		Progress:   s.progress,
		Error:      s.failure,
		CreatedAt:  s.CreatedAt,
	}
	if s.output != nil {
		out := *s.output
		snap.Output = &out
	}
	return snap
}
