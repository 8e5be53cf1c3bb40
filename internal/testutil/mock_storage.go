// mock_storage.go - In-memory content store for tests
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/doctools/backend/internal/models"
	"github.com/doctools/backend/internal/storage"
)

// MockStorage implements storage.Store in memory. When created with a temp
// dir it also writes content to disk so GetFilePath returns a real file.
type MockStorage struct {
	files    map[string]*models.FileInfo
	fileData map[string][]byte
	chunks   map[string]map[int][]byte // sessionID/uploadID -> chunkIndex -> data
	deleted  []string
	tempDir  string
	mu       sync.RWMutex
}

// NewMockStorage creates an empty in-memory store.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:    make(map[string]*models.FileInfo),
		fileData: make(map[string][]byte),
		chunks:   make(map[string]map[int][]byte),
	}
}

// NewMockStorageWithTempDir creates a mock store that mirrors content into tempDir.
func NewMockStorageWithTempDir(tempDir string) *MockStorage {
	m := NewMockStorage()
	m.tempDir = tempDir
	return m
}

func (m *MockStorage) Save(name string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(generateTestID(), name, data)
}

// put stores data under id. Caller holds m.mu.
func (m *MockStorage) put(id, name string, data []byte) (*models.FileInfo, error) {
	if m.tempDir != "" {
		if err := os.WriteFile(filepath.Join(m.tempDir, id), data, 0644); err != nil {
			return nil, err
		}
	}
	file := &models.FileInfo{
		ID:         id,
		Name:       name,
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
		Status:     "uploaded",
	}
	m.files[id] = file
	m.fileData[id] = data
	return file, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.files[id]; !exists {
		return storage.ErrFileNotFound
	}

	delete(m.files, id)
	delete(m.fileData, id)
	m.deleted = append(m.deleted, id)
	if m.tempDir != "" {
		os.Remove(filepath.Join(m.tempDir, id))
	}
	return nil
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.files[id]; !ok {
		return "", storage.ErrFileNotFound
	}
	if m.tempDir == "" {
		return "/mock/path/" + id, nil
	}
	return filepath.Join(m.tempDir, id), nil
}

func (m *MockStorage) RegisterFile(info *models.FileInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[info.ID] = info
	if m.tempDir != "" {
		if data, err := os.ReadFile(filepath.Join(m.tempDir, info.ID)); err == nil {
			m.fileData[info.ID] = data
		}
	}
}

func (m *MockStorage) Stats() (int, int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, f := range m.files {
		total += f.Size
	}
	return len(m.files), total
}

func chunkKey(sessionID, uploadID string) (string, error) {
	if !storage.ValidUploadID(sessionID) || !storage.ValidUploadID(uploadID) {
		return "", storage.ErrInvalidUploadID
	}
	return sessionID + "/" + uploadID, nil
}

func (m *MockStorage) SaveChunk(sessionID, uploadID string, chunkIndex int, r io.Reader) error {
	key, err := chunkKey(sessionID, uploadID)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.chunks[key] == nil {
		m.chunks[key] = make(map[int][]byte)
	}
	m.chunks[key][chunkIndex] = data
	return nil
}

func (m *MockStorage) CompleteChunkedUpload(sessionID, uploadID string, name string, totalChunks int) (*models.FileInfo, error) {
	key, err := chunkKey(sessionID, uploadID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	uploadChunks, ok := m.chunks[key]
	if !ok {
		return nil, errors.New("upload not found")
	}

	var data bytes.Buffer
	for i := 0; i < totalChunks; i++ {
		chunk, ok := uploadChunks[i]
		if !ok {
			return nil, fmt.Errorf("missing chunk %d", i)
		}
		data.Write(chunk)
	}

	file, err := m.put(generateTestID(), name, data.Bytes())
	if err != nil {
		return nil, err
	}
	delete(m.chunks, key)
	return file, nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

// AddFile adds a file directly to the mock
func (m *MockStorage) AddFile(id string, name string, data []byte) *models.FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := m.put(id, name, data)
	if err != nil {
		panic(fmt.Sprintf("failed to write test file: %v", err))
	}
	return file
}

// GetFileData returns the file content
func (m *MockStorage) GetFileData(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, storage.ErrFileNotFound
	}
	return data, nil
}

// GetFileCount returns the number of stored files
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// Deleted returns the handles released through Delete, in order.
func (m *MockStorage) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleted...)
}

// generateTestID generates a simple test ID
var testIDCounter int
var testIDMutex sync.Mutex

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}
