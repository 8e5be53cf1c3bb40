package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/doctools/backend/internal/catalog"
	"github.com/doctools/backend/internal/export"
	"github.com/doctools/backend/internal/logging"
	"github.com/doctools/backend/internal/models"
	"github.com/doctools/backend/internal/notify"
	"github.com/doctools/backend/internal/processing"
	"github.com/doctools/backend/internal/staging"
	"github.com/google/uuid"
)

// DefaultMaxSessions limits concurrent sessions to prevent memory exhaustion
const DefaultMaxSessions = 100

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var logger = logging.New("session")

// ContentStore releases the content behind staged-file handles.
type ContentStore interface {
	Delete(id string) error
}

// Manager owns every live tool session and runs their processing jobs.
type Manager struct {
	sessions map[string]*SessionState
	mu       sync.RWMutex

	catalog     *catalog.Catalog
	engine      processing.Engine
	store       ContentStore
	notifier    notify.Sink
	exporter    export.Sink
	limits      staging.Limits
	maxSessions int
	closeHooks  []func(sessionID string)

	runs sync.WaitGroup
}

// SessionState holds a session and the handle of its running job, if any.
type SessionState struct {
	Session      *Session
	LastAccessed time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func (st *SessionState) running() bool {
	if st.done == nil {
		return false
	}
	select {
	case <-st.done:
		return false
	default:
		return true
	}
}

// StageOutcome is the result of staging files into a session.
type StageOutcome struct {
	Accepted []models.StagedFile `json:"accepted"`
	Rejected []staging.Rejection `json:"rejected"`
	Session  models.ToolSession  `json:"session"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore sets the store used to release file content.
func WithStore(s ContentStore) Option {
	return func(m *Manager) { m.store = s }
}

// WithNotifier sets where user-facing notifications go.
func WithNotifier(n notify.Sink) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithExporter sets the sink used by SaveOutput.
func WithExporter(e export.Sink) Option {
	return func(m *Manager) { m.exporter = e }
}

// WithLimits caps the staging area of every new session.
func WithLimits(l staging.Limits) Option {
	return func(m *Manager) { m.limits = l }
}

// WithMaxSessions caps the number of live sessions.
func WithMaxSessions(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxSessions = n
		}
	}
}

// WithCloseHook registers fn to run after a session is closed or cleaned up.
func WithCloseHook(fn func(sessionID string)) Option {
	return func(m *Manager) { m.closeHooks = append(m.closeHooks, fn) }
}

// NewManager creates a session manager over a catalog and a processing engine.
func NewManager(cat *catalog.Catalog, engine processing.Engine, opts ...Option) *Manager {
	m := &Manager{
		sessions:    make(map[string]*SessionState),
		catalog:     cat,
		engine:      engine,
		notifier:    notify.Discard,
		exporter:    export.NewDiscard(),
		maxSessions: DefaultMaxSessions,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OpenSession selects a tool and creates an idle session for it.
func (m *Manager) OpenSession(toolID string) (models.ToolSession, error) {
	tool, ok := m.catalog.Lookup(toolID)
	if !ok {
		return models.ToolSession{}, fmt.Errorf("%w: %s", catalog.ErrToolNotFound, toolID)
	}

	evicted, err := m.evictIfFull()
	m.finalize(evicted)
	if err != nil {
		return models.ToolSession{}, err
	}

	s := New(uuid.New().String(), tool, m.limits)
	st := &SessionState{Session: s, LastAccessed: time.Now()}

	m.mu.Lock()
	m.sessions[s.ID] = st
	snap := m.snapshot(st)
	m.mu.Unlock()

	logger.Infof("[Session %s] Opened for tool %s", logging.ShortID(s.ID), tool.ID)
	return snap, nil
}

// evictIfFull drops the least recently used sessions that are not processing
// until there is room for one more.
func (m *Manager) evictIfFull() ([]*SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.maxSessions {
		return nil, nil
	}

	candidates := make([]string, 0, len(m.sessions))
	for id, st := range m.sessions {
		if !st.running() {
			candidates = append(candidates, id)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return m.sessions[candidates[i]].LastAccessed.Before(m.sessions[candidates[j]].LastAccessed)
	})

	toFree := len(m.sessions) - m.maxSessions + 1
	if toFree > len(candidates) {
		return nil, ErrTooManySessions
	}

	evicted := make([]*SessionState, 0, toFree)
	for _, id := range candidates[:toFree] {
		evicted = append(evicted, m.sessions[id])
		delete(m.sessions, id)
		logger.Infof("[Manager] Evicted session %s to make room", logging.ShortID(id))
	}
	return evicted, nil
}

// GetSession returns a snapshot of a session by ID.
func (m *Manager) GetSession(id string) (models.ToolSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.sessions[id]
	if !ok {
		return models.ToolSession{}, false
	}
	return m.snapshot(st), true
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return false
	}
	st.LastAccessed = time.Now()
	return true
}

// StageFiles adds candidate files to a session. Rejected candidates have their
// content released.
func (m *Manager) StageFiles(id string, candidates []models.RawFile) (*StageOutcome, error) {
	m.mu.Lock()
	st, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		m.releaseRaw(candidates)
		return nil, ErrSessionNotFound
	}
	res, err := st.Session.Stage(candidates)
	st.LastAccessed = time.Now()
	snap := m.snapshot(st)
	m.mu.Unlock()

	if err != nil {
		m.releaseRaw(candidates)
		return nil, err
	}

	rejectedFiles := make([]models.RawFile, 0, len(res.Rejected))
	for _, r := range res.Rejected {
		rejectedFiles = append(rejectedFiles, r.File)
	}
	m.releaseRaw(rejectedFiles)

	if len(res.Accepted) > 0 {
		m.emit(id, models.SeverityInfo, "Files added",
			fmt.Sprintf("%d file(s) selected from your computer", len(res.Accepted)))
	}
	if len(res.Rejected) > 0 {
		m.emit(id, models.SeverityWarning, "Some files were skipped", describeRejections(res.Rejected))
	}

	logger.Debugf("[Session %s] Staged %d file(s), rejected %d", logging.ShortID(id), len(res.Accepted), len(res.Rejected))
	return &StageOutcome{Accepted: res.Accepted, Rejected: res.Rejected, Session: snap}, nil
}

func describeRejections(rejected []staging.Rejection) string {
	parts := make([]string, 0, len(rejected))
	for _, r := range rejected {
		parts = append(parts, fmt.Sprintf("%s (%s)", r.File.Name, strings.ReplaceAll(string(r.Reason), "_", " ")))
	}
	return strings.Join(parts, ", ")
}

// RemoveFile drops one staged file. Removing an unknown file id is not an error.
func (m *Manager) RemoveFile(id, fileID string) (bool, error) {
	m.mu.Lock()
	st, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return false, ErrSessionNotFound
	}
	f, removed, err := st.Session.Remove(fileID)
	st.LastAccessed = time.Now()
	m.mu.Unlock()

	if err != nil {
		return false, err
	}
	if removed {
		m.release([]models.StagedFile{f})
	}
	return removed, nil
}

// ReorderFiles arranges staged files in the given id order.
func (m *Manager) ReorderFiles(id string, fileIDs []string) (models.ToolSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return models.ToolSession{}, ErrSessionNotFound
	}
	st.LastAccessed = time.Now()
	if err := st.Session.Reorder(fileIDs); err != nil {
		return models.ToolSession{}, err
	}
	return m.snapshot(st), nil
}

// StartProcessing begins a run for the session's staged files.
func (m *Manager) StartProcessing(id string) (models.ToolSession, error) {
	m.mu.Lock()
	st, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return models.ToolSession{}, ErrSessionNotFound
	}
	st.LastAccessed = time.Now()

	if err := st.Session.Start(); err != nil {
		m.mu.Unlock()
		if errors.Is(err, ErrNoFilesSelected) {
			m.emit(id, models.SeverityError, "No files selected", "Please select files from your computer to continue")
		}
		return models.ToolSession{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	st.cancel, st.done = cancel, done

	job := processing.Job{
		SessionID: id,
		Tool:      st.Session.Tool,
		Files:     st.Session.Files(),
	}
	snap := m.snapshot(st)
	m.runs.Add(1)
	m.mu.Unlock()

	go m.run(ctx, cancel, done, st, job)

	logger.Infof("[Session %s] Processing %d file(s) with %s", logging.ShortID(id), len(job.Files), job.Tool.ID)
	return snap, nil
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, st *SessionState, job processing.Job) {
	defer m.runs.Done()
	defer close(done)
	defer cancel()

	start := time.Now()
	id := logging.ShortID(job.SessionID)

	out, err := func() (out *models.Output, err error) {
		// Recover from panics to prevent backend crash
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[Session %s] PANIC recovered: %v", id, r)
				err = fmt.Errorf("processing panicked: %v", r)
			}
		}()
		return m.engine.Run(ctx, job, func(percent float64) {
			m.mu.Lock()
			st.Session.Advance(percent)
			m.mu.Unlock()
		})
	}()

	if ctx.Err() != nil {
		logger.Infof("[Session %s] Processing cancelled after %s", id, time.Since(start).Round(time.Millisecond))
		return
	}

	m.mu.Lock()
	var finished bool
	if err != nil {
		finished = st.Session.Fail(err.Error())
	} else {
		finished = st.Session.Complete(out)
	}
	m.mu.Unlock()

	if !finished {
		return
	}
	if err != nil {
		logger.Warnf("[Session %s] Processing failed: %v", id, err)
		m.emit(job.SessionID, models.SeverityError, "Processing failed", err.Error())
		return
	}
	logger.Infof("[Session %s] Processing complete in %s", id, time.Since(start).Round(time.Millisecond))
	m.emit(job.SessionID, models.SeveritySuccess, "Processing complete!",
		fmt.Sprintf("Successfully processed %d file(s)", len(job.Files)))
}

// lockStopped cancels any job running for id and waits for it to exit. It
// returns with m.mu held and no job in flight for the session.
func (m *Manager) lockStopped(id string) (*SessionState, error) {
	for {
		m.mu.Lock()
		st, ok := m.sessions[id]
		if !ok {
			m.mu.Unlock()
			return nil, ErrSessionNotFound
		}
		if !st.running() {
			return st, nil
		}
		cancel, done := st.cancel, st.done
		m.mu.Unlock()

		cancel()
		<-done
	}
}

// ResetSession stops any running job and empties the session.
func (m *Manager) ResetSession(id string) (models.ToolSession, error) {
	st, err := m.lockStopped(id)
	if err != nil {
		return models.ToolSession{}, err
	}
	released := st.Session.Reset()
	st.LastAccessed = time.Now()
	snap := m.snapshot(st)
	m.mu.Unlock()

	m.release(released)
	logger.Debugf("[Session %s] Reset", logging.ShortID(id))
	return snap, nil
}

// CloseSession stops any running job and forgets the session, as when the
// user navigates back to the catalog.
func (m *Manager) CloseSession(id string) bool {
	st, err := m.lockStopped(id)
	if err != nil {
		return false
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.finalize([]*SessionState{st})
	logger.Infof("[Session %s] Closed", logging.ShortID(id))
	return true
}

// Output returns the result of a completed session.
func (m *Manager) Output(id string) (*models.Output, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := st.Session.Output()
	if st.Session.Status() != models.SessionStatusComplete || out == nil {
		return nil, ErrNotComplete
	}
	cp := *out
	return &cp, nil
}

// SaveOutput hands a completed session's output to the export sink.
func (m *Manager) SaveOutput(ctx context.Context, id string) (*models.SaveReceipt, error) {
	out, err := m.Output(id)
	if err != nil {
		return nil, err
	}
	receipt, err := m.exporter.Save(ctx, id, out)
	if err != nil {
		return nil, fmt.Errorf("saving output: %w", err)
	}
	m.TouchSession(id)
	m.emit(id, models.SeveritySuccess, "File saved", "Output file has been saved to your selected location")
	return receipt, nil
}

// CleanupOldSessions removes sessions idle for longer than maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow
// and sessions that are still processing.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	now := time.Now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	m.mu.Lock()
	var removed []*SessionState
	for id, st := range m.sessions {
		if st.running() {
			continue
		}
		if st.LastAccessed.After(keepAliveCutoff) || st.LastAccessed.After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed = append(removed, st)
		logger.Infof("[Manager] Cleaned up aged session %s (last accessed: %s ago)",
			logging.ShortID(id), now.Sub(st.LastAccessed).Round(time.Second))
	}
	m.mu.Unlock()

	m.finalize(removed)
	return len(removed)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown cancels every running job and waits for them to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, st := range m.sessions {
		if st.cancel != nil {
			st.cancel()
		}
	}
	m.mu.Unlock()

	m.runs.Wait()
}

// finalize releases the files of sessions that have been removed from the map.
func (m *Manager) finalize(states []*SessionState) {
	for _, st := range states {
		m.release(st.Session.Reset())
		for _, hook := range m.closeHooks {
			hook(st.Session.ID)
		}
	}
}

func (m *Manager) snapshot(st *SessionState) models.ToolSession {
	snap := st.Session.Snapshot()
	snap.LastAccessed = st.LastAccessed
	return snap
}

func (m *Manager) emit(id string, severity models.Severity, title, detail string) {
	m.notifier.Notify(models.Notification{
		SessionID: id,
		Title:     title,
		Detail:    detail,
		Severity:  severity,
		CreatedAt: time.Now(),
	})
}

func (m *Manager) release(files []models.StagedFile) {
	for _, f := range files {
		m.deleteHandle(f.Handle)
	}
}

func (m *Manager) releaseRaw(files []models.RawFile) {
	for _, f := range files {
		m.deleteHandle(f.Handle)
	}
}

func (m *Manager) deleteHandle(handle string) {
	if m.store == nil || handle == "" {
		return
	}
	if err := m.store.Delete(handle); err != nil {
		logger.Warnf("[Manager] failed to release content %s: %v", logging.ShortID(handle), err)
	}
}
