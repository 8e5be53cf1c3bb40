package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/doctools/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := NewHistory()
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryRecordsInEmissionOrder(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	h.Notify(models.Notification{SessionID: "s1", Title: "Files added", Detail: "2 file(s) selected from your computer", Severity: models.SeverityInfo})
	h.Notify(models.Notification{SessionID: "s2", Title: "other session", Severity: models.SeverityInfo})
	h.Notify(models.Notification{SessionID: "s1", Title: "Processing complete!", Severity: models.SeveritySuccess, CreatedAt: time.Now()})

	got, err := h.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Files added", got[0].Title)
	assert.Equal(t, "2 file(s) selected from your computer", got[0].Detail)
	assert.Equal(t, models.SeverityInfo, got[0].Severity)
	assert.Equal(t, "Processing complete!", got[1].Title)
	assert.Equal(t, models.SeveritySuccess, got[1].Severity)
	assert.False(t, got[1].CreatedAt.IsZero())
}

func TestHistoryRecentLimitKeepsLatest(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Record(ctx, models.Notification{SessionID: "s", Title: fmt.Sprintf("n%d", i), Severity: models.SeverityInfo}))
	}

	got, err := h.Recent(ctx, "s", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n3", got[0].Title)
	assert.Equal(t, "n4", got[1].Title)
}

func TestHistoryPurge(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	require.NoError(t, h.Record(ctx, models.Notification{SessionID: "s", Title: "x", Severity: models.SeverityInfo}))
	require.NoError(t, h.Purge(ctx, "s"))

	got, err := h.Recent(ctx, "s", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
