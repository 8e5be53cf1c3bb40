// Package export delivers finished outputs to their destination.
package export

import (
	"context"
	"time"

	"github.com/doctools/backend/internal/models"
)

// Sink saves the output of a completed session.
type Sink interface {
	Save(ctx context.Context, sessionID string, out *models.Output) (*models.SaveReceipt, error)
}

// Discard acknowledges every save without writing anything. It stands in for a
// real download or file-write mechanism, which lives outside this service.
type Discard struct {
	now func() time.Time
}

// NewDiscard creates a Discard sink.
func NewDiscard() *Discard {
	return &Discard{now: time.Now}
}

// Save returns a receipt for out. The receipt has no location.
func (d *Discard) Save(ctx context.Context, sessionID string, out *models.Output) (*models.SaveReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &models.SaveReceipt{
		SessionID: sessionID,
		FileName:  out.FileName,
		SavedAt:   d.now(),
	}, nil
}
