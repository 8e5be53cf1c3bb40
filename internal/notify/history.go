package notify

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/doctools/backend/internal/logging"
	"github.com/doctools/backend/internal/models"
	"github.com/marcboeker/go-duckdb"
)

// DefaultHistoryLimit is how many notifications Recent returns when asked for a non-positive count.
const DefaultHistoryLimit = 50

const writeTimeout = 2 * time.Second

// History keeps notifications in an in-memory DuckDB database so clients can
// catch up on what they missed. Nothing is written to disk.
type History struct {
	db  *sql.DB
	seq atomic.Int64
}

// NewHistory opens an in-memory DuckDB database and creates the notifications table.
func NewHistory() (*History, error) {
	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		_, err := execer.ExecContext(context.Background(), "PRAGMA threads=1", nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE notifications (
			seq        BIGINT PRIMARY KEY,
			session_id VARCHAR NOT NULL,
			title      VARCHAR NOT NULL,
			detail     VARCHAR,
			severity   VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create notifications table: %w", err)
	}

	return &History{db: db}, nil
}

// Notify records n, logging instead of failing.
func (h *History) Notify(n models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := h.Record(ctx, n); err != nil {
		logger.Errorf("[History] failed to record notification for %s: %v", logging.ShortID(n.SessionID), err)
	}
}

// Record stores n. Notifications keep their emission order.
func (h *History) Record(ctx context.Context, n models.Notification) error {
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO notifications (seq, session_id, title, detail, severity, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		h.seq.Add(1), n.SessionID, n.Title, n.Detail, string(n.Severity), createdAt.UTC(),
	)
	return err
}

// Recent returns up to limit of the latest notifications for a session, oldest first.
func (h *History) Recent(ctx context.Context, sessionID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT session_id, title, detail, severity, created_at FROM (
			SELECT * FROM notifications WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) AS recent ORDER BY seq ASC
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	out := make([]models.Notification, 0)
	for rows.Next() {
		var (
			n        models.Notification
			detail   sql.NullString
			severity string
		)
		if err := rows.Scan(&n.SessionID, &n.Title, &detail, &severity, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.Detail = detail.String
		n.Severity = models.Severity(severity)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Purge forgets every notification of a session.
func (h *History) Purge(ctx context.Context, sessionID string) error {
	_, err := h.db.ExecContext(ctx, `DELETE FROM notifications WHERE session_id = ?`, sessionID)
	return err
}

// Close releases the database.
func (h *History) Close() error {
	return h.db.Close()
}
