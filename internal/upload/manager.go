package upload

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/doctools/backend/internal/logging"
	"github.com/doctools/backend/internal/models"
	"github.com/doctools/backend/internal/session"
	"github.com/google/uuid"
)

// Status represents the upload processing status.
type Status string

const (
	StatusProcessing    Status = "processing"
	StatusAssembling    Status = "assembling"
	StatusDecompressing Status = "decompressing"
	StatusStaging       Status = "staging"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

var logger = logging.New("upload")

// Job represents an async upload processing job.
type Job struct {
	ID             string             `json:"id"`
	SessionID      string             `json:"sessionId"`
	UploadID       string             `json:"uploadId"`
	FileName       string             `json:"fileName"`
	MimeType       string             `json:"mimeType,omitempty"`
	TotalChunks    int                `json:"totalChunks"`
	OriginalSize   int64              `json:"originalSize"`
	CompressedSize int64              `json:"compressedSize"`
	Encoding       string             `json:"encoding"`
	Status         Status             `json:"status"`
	Progress       float64            `json:"progress"`
	Stage          string             `json:"stage"`         // Current stage description
	StageProgress  float64            `json:"stageProgress"` // Progress within current stage
	FileInfo       *models.FileInfo   `json:"fileInfo,omitempty"`
	Accepted       bool               `json:"accepted"`
	StagedFile     *models.StagedFile `json:"stagedFile,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	Error          string             `json:"error,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	CompletedAt    *time.Time         `json:"completedAt,omitempty"`
}

// Request describes an upload whose chunks have all been saved under
// SessionID. Only that session's chunks are assembled.
type Request struct {
	SessionID      string
	UploadID       string
	FileName       string
	MimeType       string
	TotalChunks    int
	OriginalSize   int64
	CompressedSize int64
	Encoding       string
}

// Store defines the interface needed from storage layer.
type Store interface {
	CompleteChunkedUpload(sessionID, uploadID string, name string, totalChunks int) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	RegisterFile(info *models.FileInfo)
}

// Stager adds assembled files to a session.
type Stager interface {
	StageFiles(sessionID string, files []models.RawFile) (*session.StageOutcome, error)
}

// Manager handles async upload processing.
type Manager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	store  Store
	stager Stager
	wg     sync.WaitGroup
}

// NewManager creates a new upload processing manager.
func NewManager(store Store, stager Stager) *Manager {
	return &Manager{
		jobs:   make(map[string]*Job),
		store:  store,
		stager: stager,
	}
}

// IsGzip reports whether encoding names a gzip payload.
func IsGzip(encoding string) bool {
	return encoding == "gzip" || encoding == "binary-gzip"
}

// StartJob begins async processing of an upload.
func (m *Manager) StartJob(req Request) Job {
	job := &Job{
		ID:             uuid.New().String(),
		SessionID:      req.SessionID,
		UploadID:       req.UploadID,
		FileName:       req.FileName,
		MimeType:       req.MimeType,
		TotalChunks:    req.TotalChunks,
		OriginalSize:   req.OriginalSize,
		CompressedSize: req.CompressedSize,
		Encoding:       req.Encoding,
		Status:         StatusProcessing,
		Stage:          "preparing",
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := *job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.processJob(job)

	return snapshot
}

// GetJob retrieves a copy of a job by ID.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// processJob handles the actual async processing.
func (m *Manager) processJob(job *Job) {
	defer m.wg.Done()

	id := logging.ShortID(job.ID)
	logger.Infof("[UploadJob %s] Starting processing: %s", id, job.FileName)

	// Stage 1: Assemble chunks
	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 0)

	info, err := m.store.CompleteChunkedUpload(job.SessionID, job.UploadID, job.FileName, job.TotalChunks)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("failed to assemble chunks: %v", err))
		return
	}

	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 100)
	logger.Debugf("[UploadJob %s] Chunks assembled: %s (%d bytes)", id, logging.ShortID(info.ID), info.Size)

	// Stage 2: Decompress if needed
	if IsGzip(job.Encoding) {
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 0)

		if err := m.decompressFileWithProgress(job, info.ID); err != nil {
			// Keep the payload as-is; staging never inspects content.
			logger.Warnf("[UploadJob %s] failed to decompress file %s: %v", id, logging.ShortID(info.ID), err)
		} else {
			updated := *info
			updated.Size = job.OriginalSize
			info = &updated
			m.store.RegisterFile(info)
			logger.Debugf("[UploadJob %s] Successfully decompressed file %s", id, logging.ShortID(info.ID))
		}

		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 100)
	}

	// Stage 3: Hand the file to the session
	m.updateJobStatus(job, StatusStaging, "staging file", 0)

	mimeType := job.MimeType
	if mimeType == "" {
		mimeType = info.MimeType
	}
	outcome, err := m.stager.StageFiles(job.SessionID, []models.RawFile{{
		Name:     job.FileName,
		Size:     info.Size,
		MimeType: mimeType,
		Handle:   info.ID,
	}})
	if err != nil {
		m.markJobError(job, fmt.Sprintf("failed to stage file: %v", err))
		return
	}

	m.mu.Lock()
	job.FileInfo = info
	if len(outcome.Accepted) > 0 {
		staged := outcome.Accepted[0]
		job.Accepted = true
		job.StagedFile = &staged
	} else if len(outcome.Rejected) > 0 {
		job.Reason = string(outcome.Rejected[0].Reason)
	}
	m.mu.Unlock()

	m.markJobComplete(job)
	logger.Infof("[UploadJob %s] Processing complete: %s (%d bytes, accepted=%t)", id, job.FileName, info.Size, len(outcome.Accepted) > 0)
}

// decompressFileWithProgress decompresses a gzip file in place with progress tracking.
func (m *Manager) decompressFileWithProgress(job *Job, fileID string) error {
	path, err := m.store.GetFilePath(fileID)
	if err != nil {
		return err
	}

	compressedFile, err := os.Open(path)
	if err != nil {
		return err
	}
	defer compressedFile.Close()

	// Check gzip magic
	br := bufio.NewReader(compressedFile)
	magic, err := br.Peek(2)
	if err != nil {
		return err
	}
	if magic[0] != 0x1f || magic[1] != 0x8b {
		return fmt.Errorf("not a gzip file")
	}

	reader, err := gzip.NewReader(br)
	if err != nil {
		return err
	}
	defer reader.Close()

	tempPath := path + ".decompressing"
	outFile, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	buf := make([]byte, 1024*1024) // 1MB buffer
	var written int64
	lastProgressUpdate := time.Now()

	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, writeErr := outFile.Write(buf[:n]); writeErr != nil {
				outFile.Close()
				os.Remove(tempPath)
				return fmt.Errorf("write error: %w", writeErr)
			}
			written += int64(n)

			if job.OriginalSize > 0 && time.Since(lastProgressUpdate) > 100*time.Millisecond {
				progress := float64(written) / float64(job.OriginalSize) * 100
				if progress > 99 {
					progress = 99
				}
				m.updateJobStatus(job, StatusDecompressing, "decompressing file", progress)
				lastProgressUpdate = time.Now()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				outFile.Close()
				os.Remove(tempPath)
				return fmt.Errorf("read error: %w", readErr)
			}
			break
		}
	}

	outFile.Close()

	if written != job.OriginalSize {
		os.Remove(tempPath)
		return fmt.Errorf("decompressed size mismatch: got %d bytes, expected %d bytes", written, job.OriginalSize)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}

	return nil
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	job.StageProgress = stageProgress

	// Assembling: 0-40%, Decompressing: 40-80%, Staging: 80-100%
	switch status {
	case StatusAssembling:
		job.Progress = stageProgress * 0.4
	case StatusDecompressing:
		job.Progress = 40 + stageProgress*0.4
	case StatusStaging:
		job.Progress = 80 + stageProgress*0.2
	case StatusComplete:
		job.Progress = 100
	}
}

// markJobComplete marks job as complete (thread-safe).
func (m *Manager) markJobComplete(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Stage = "complete"
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

// markJobError marks job as failed (thread-safe).
func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	logger.Warnf("[UploadJob %s] Error: %s", logging.ShortID(job.ID), errMsg)
}

// CleanupOldJobs removes finished jobs older than the specified duration.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if job.Status == StatusComplete || job.Status == StatusError {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
				removed++
			}
		}
	}
	return removed
}
