package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/doctools/backend/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrFileNotFound is returned for unknown content handles.
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidUploadID is returned when a session or upload id cannot name a chunk directory.
	ErrInvalidUploadID = errors.New("invalid upload id")
)

// Store holds the content behind staged-file handles. The session core only
// ever sees the handle; nothing here is read by the processing simulator.
type Store interface {
	Save(name string, r io.Reader) (*models.FileInfo, error)
	Delete(id string) error
	GetFilePath(id string) (string, error)
	SaveChunk(sessionID, uploadID string, chunkIndex int, r io.Reader) error
	CompleteChunkedUpload(sessionID, uploadID string, name string, totalChunks int) (*models.FileInfo, error)
	RegisterFile(info *models.FileInfo)
	Stats() (files int, bytes int64)
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileInfo
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileInfo),
	}, nil
}

func newFileInfo(id, name string, size int64) *models.FileInfo {
	return &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		MimeType:   mime.TypeByExtension(strings.ToLower(filepath.Ext(name))),
		UploadedAt: time.Now(),
		Status:     "uploaded",
	}
}

// Save writes content under a fresh handle.
func (s *LocalStore) Save(name string, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := newFileInfo(id, name, size)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// GetFilePath returns the absolute path to a file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	return filepath.Join(s.uploadDir, id), nil
}

// RegisterFile records or replaces metadata for content already on disk,
// e.g. after an upload job decompressed it in place.
func (s *LocalStore) RegisterFile(info *models.FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[info.ID] = info
}

// Stats reports how many files are held and their combined size.
func (s *LocalStore) Stats() (int, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, info := range s.files {
		total += info.Size
	}
	return len(s.files), total
}

// ValidUploadID reports whether id can name a chunk directory: non-empty,
// not "." or "..", and free of path separators.
func ValidUploadID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`+"\x00")
}

// chunkDir returns the directory holding the chunks of one upload. Uploads
// are keyed by session so one session cannot reach another's chunks.
func (s *LocalStore) chunkDir(sessionID, uploadID string) (string, error) {
	if !ValidUploadID(sessionID) || !ValidUploadID(uploadID) {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidUploadID, sessionID, uploadID)
	}
	return filepath.Join(s.uploadDir, "chunks", sessionID, uploadID), nil
}

// SaveChunk saves a single chunk to a temporary location.
func (s *LocalStore) SaveChunk(sessionID, uploadID string, chunkIndex int, r io.Reader) error {
	chunkDir, err := s.chunkDir(sessionID, uploadID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(chunkDir, 0755); err != nil {
		return fmt.Errorf("creating chunk directory: %w", err)
	}

	path := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", chunkIndex))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chunk file: %w", err)
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	if err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}

	return nil
}

// CompleteChunkedUpload assembles all chunks into a final file.
func (s *LocalStore) CompleteChunkedUpload(sessionID, uploadID string, name string, totalChunks int) (*models.FileInfo, error) {
	chunkDir, err := s.chunkDir(sessionID, uploadID)
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	finalPath := filepath.Join(s.uploadDir, id)

	out, err := os.Create(finalPath)
	if err != nil {
		return nil, fmt.Errorf("creating final file: %w", err)
	}

	var totalSize int64
	for i := 0; i < totalChunks; i++ {
		chunkPath := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d", i))
		in, err := os.Open(chunkPath)
		if err != nil {
			out.Close()
			os.Remove(finalPath)
			return nil, fmt.Errorf("opening chunk %d: %w", i, err)
		}

		n, err := io.Copy(out, in)
		in.Close()
		if err != nil {
			out.Close()
			os.Remove(finalPath)
			return nil, fmt.Errorf("copying chunk %d: %w", i, err)
		}
		totalSize += n
	}
	if err := out.Close(); err != nil {
		os.Remove(finalPath)
		return nil, fmt.Errorf("closing final file: %w", err)
	}

	info := newFileInfo(id, name, totalSize)

	s.mu.Lock()
	s.files[id] = info
	s.mu.Unlock()

	// Cleanup chunks
	os.RemoveAll(chunkDir)

	return info, nil
}

// CleanupStaleChunks removes chunk directories of uploads that were never
// completed and have not been written to for maxAge. Session directories
// left empty are removed too.
func (s *LocalStore) CleanupStaleChunks(maxAge time.Duration) int {
	root := filepath.Join(s.uploadDir, "chunks")
	sessions, err := os.ReadDir(root)
	if err != nil {
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, sess := range sessions {
		if !sess.IsDir() {
			continue
		}
		sessDir := filepath.Join(root, sess.Name())
		uploads, err := os.ReadDir(sessDir)
		if err != nil {
			continue
		}
		for _, e := range uploads {
			if !e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if os.RemoveAll(filepath.Join(sessDir, e.Name())) == nil {
				removed++
			}
		}
		// Fails while other uploads are pending.
		os.Remove(sessDir)
	}
	return removed
}

// DiscardChunks drops every pending upload of a session.
func (s *LocalStore) DiscardChunks(sessionID string) error {
	if !ValidUploadID(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidUploadID, sessionID)
	}
	return os.RemoveAll(filepath.Join(s.uploadDir, "chunks", sessionID))
}
