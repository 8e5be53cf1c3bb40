package session

import (
	"testing"

	"github.com/doctools/backend/internal/models"
	"github.com/doctools/backend/internal/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPdfSession() *Session {
	tool := models.Tool{ID: "merge-pdf", Name: "Merge PDF", InputFormats: []string{".pdf"}, OutputFormat: "PDF"}
	return New("s1", tool, staging.Limits{})
}

func TestSessionTransitions(t *testing.T) {
	s := newPdfSession()
	assert.Equal(t, models.SessionStatusIdle, s.Status())

	assert.ErrorIs(t, s.Start(), ErrNoFilesSelected)
	assert.Equal(t, models.SessionStatusIdle, s.Status())

	_, err := s.Stage([]models.RawFile{{Name: "a.pdf"}})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	assert.Equal(t, models.SessionStatusProcessing, s.Status())

	s.Advance(30)
	s.Advance(20)
	assert.Equal(t, 30.0, s.Progress())
	s.Advance(250)
	assert.Equal(t, 100.0, s.Progress())

	assert.True(t, s.Complete(&models.Output{FileName: "a-merge-pdf.pdf"}))
	assert.False(t, s.Fail("late"))
	assert.Equal(t, models.SessionStatusComplete, s.Status())
	assert.ErrorIs(t, s.Start(), ErrAlreadyComplete)

	released := s.Reset()
	assert.Len(t, released, 1)
	assert.Equal(t, models.SessionStatusIdle, s.Status())
	assert.Nil(t, s.Output())
}

func TestSessionAdvanceIgnoredOutsideProcessing(t *testing.T) {
	s := newPdfSession()
	s.Advance(50)
	assert.Equal(t, 0.0, s.Progress())
	assert.False(t, s.Complete(nil))
	assert.False(t, s.Fail("x"))
}

func TestSessionRetryClearsFailure(t *testing.T) {
	s := newPdfSession()
	_, err := s.Stage([]models.RawFile{{Name: "a.pdf"}})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	s.Advance(70)
	require.True(t, s.Fail("disk full"))

	snap := s.Snapshot()
	assert.Equal(t, "disk full", snap.Error)
	assert.Equal(t, 70.0, snap.Progress)

	require.NoError(t, s.Start())
	snap = s.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Equal(t, 0.0, snap.Progress)
}

func TestSessionSnapshotIsACopy(t *testing.T) {
	s := newPdfSession()
	_, err := s.Stage([]models.RawFile{{Name: "a.pdf", Size: 5}, {Name: "b.pdf", Size: 7}})
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Files[0].Name = "changed.pdf"
	snap.Tool.InputFormats[0] = ".doc"

	again := s.Snapshot()
	assert.Equal(t, "a.pdf", again.Files[0].Name)
	assert.Equal(t, []string{".pdf"}, again.Tool.InputFormats)
	assert.Equal(t, int64(12), again.TotalBytes)
	assert.Equal(t, 2, again.FileCount)
}
