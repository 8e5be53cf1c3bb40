package upload

import (
	"bytes"
	"compress/gzip"
	"testing"
	"time"

	"github.com/doctools/backend/internal/catalog"
	"github.com/doctools/backend/internal/processing"
	"github.com/doctools/backend/internal/session"
	"github.com/doctools/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *testutil.MockStorage
	sessions *session.Manager
	uploads  *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewMockStorageWithTempDir(t.TempDir())
	sessions := session.NewManager(catalog.Default(), processing.NewSimulator(time.Millisecond, 15),
		session.WithStore(store))
	t.Cleanup(sessions.Shutdown)
	return &fixture{
		store:    store,
		sessions: sessions,
		uploads:  NewManager(store, sessions),
	}
}

func (f *fixture) saveChunks(t *testing.T, sessionID, uploadID string, data []byte, chunkSize int) int {
	t.Helper()
	n := 0
	for off := 0; off < len(data); off += chunkSize {
		end := min(off+chunkSize, len(data))
		require.NoError(t, f.store.SaveChunk(sessionID, uploadID, n, bytes.NewReader(data[off:end])))
		n++
	}
	return n
}

func TestUploadJobStagesAcceptedFile(t *testing.T) {
	f := newFixture(t)
	sess, err := f.sessions.OpenSession("merge-pdf")
	require.NoError(t, err)

	content := []byte("%PDF-1.7 pretend content")
	chunks := f.saveChunks(t, sess.ID, "up-1", content, 8)

	started := f.uploads.StartJob(Request{
		SessionID:    sess.ID,
		UploadID:     "up-1",
		FileName:     "report.pdf",
		MimeType:     "application/pdf",
		TotalChunks:  chunks,
		OriginalSize: int64(len(content)),
	})
	assert.Equal(t, StatusProcessing, started.Status)
	f.uploads.Wait()

	job, ok := f.uploads.GetJob(started.ID)
	require.True(t, ok)
	assert.Equal(t, StatusComplete, job.Status)
	assert.Equal(t, 100.0, job.Progress)
	assert.True(t, job.Accepted)
	require.NotNil(t, job.StagedFile)
	assert.Equal(t, "report.pdf", job.StagedFile.Name)
	assert.Equal(t, int64(len(content)), job.StagedFile.Size)

	snap, ok := f.sessions.GetSession(sess.ID)
	require.True(t, ok)
	require.Equal(t, 1, snap.FileCount)
	assert.Equal(t, job.FileInfo.ID, snap.Files[0].Handle)
}

func TestUploadJobRejectedFormat(t *testing.T) {
	f := newFixture(t)
	sess, err := f.sessions.OpenSession("image-to-pdf")
	require.NoError(t, err)

	chunks := f.saveChunks(t, sess.ID, "up-2", []byte("not an image"), 64)
	started := f.uploads.StartJob(Request{
		SessionID:   sess.ID,
		UploadID:    "up-2",
		FileName:    "scan.pdf",
		TotalChunks: chunks,
	})
	f.uploads.Wait()

	job, _ := f.uploads.GetJob(started.ID)
	assert.Equal(t, StatusComplete, job.Status)
	assert.False(t, job.Accepted)
	assert.Equal(t, "unsupported_format", job.Reason)

	// Rejected content is released.
	assert.Equal(t, 0, f.store.GetFileCount())
	assert.Equal(t, []string{job.FileInfo.ID}, f.store.Deleted())
}

func TestUploadJobDecompressesGzip(t *testing.T) {
	f := newFixture(t)
	sess, err := f.sessions.OpenSession("word-to-pdf")
	require.NoError(t, err)

	original := bytes.Repeat([]byte("letter body "), 100)
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err = gz.Write(original)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	chunks := f.saveChunks(t, sess.ID, "up-3", buf.Bytes(), 100)
	started := f.uploads.StartJob(Request{
		SessionID:      sess.ID,
		UploadID:       "up-3",
		FileName:       "letter.docx",
		TotalChunks:    chunks,
		OriginalSize:   int64(len(original)),
		CompressedSize: int64(buf.Len()),
		Encoding:       "gzip",
	})
	f.uploads.Wait()

	job, _ := f.uploads.GetJob(started.ID)
	require.Equal(t, StatusComplete, job.Status)
	assert.True(t, job.Accepted)
	assert.Equal(t, int64(len(original)), job.StagedFile.Size)

	data, err := f.store.GetFileData(job.FileInfo.ID)
	require.NoError(t, err)
	assert.Equal(t, original, data)
}

func TestUploadJobErrors(t *testing.T) {
	t.Run("missing chunks", func(t *testing.T) {
		f := newFixture(t)
		sess, err := f.sessions.OpenSession("merge-pdf")
		require.NoError(t, err)

		started := f.uploads.StartJob(Request{SessionID: sess.ID, UploadID: "never-sent", FileName: "a.pdf", TotalChunks: 1})
		f.uploads.Wait()

		job, _ := f.uploads.GetJob(started.ID)
		assert.Equal(t, StatusError, job.Status)
		assert.Contains(t, job.Error, "failed to assemble chunks")
		assert.NotNil(t, job.CompletedAt)
	})

	t.Run("chunks of another session", func(t *testing.T) {
		f := newFixture(t)
		owner, err := f.sessions.OpenSession("merge-pdf")
		require.NoError(t, err)
		other, err := f.sessions.OpenSession("merge-pdf")
		require.NoError(t, err)
		chunks := f.saveChunks(t, owner.ID, "up-5", []byte("%PDF owner"), 8)

		started := f.uploads.StartJob(Request{SessionID: other.ID, UploadID: "up-5", FileName: "a.pdf", TotalChunks: chunks})
		f.uploads.Wait()

		job, _ := f.uploads.GetJob(started.ID)
		assert.Equal(t, StatusError, job.Status)
		snap, _ := f.sessions.GetSession(other.ID)
		assert.Equal(t, 0, snap.FileCount)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t)
		chunks := f.saveChunks(t, "gone", "up-4", []byte("x"), 8)

		started := f.uploads.StartJob(Request{SessionID: "gone", UploadID: "up-4", FileName: "a.pdf", TotalChunks: chunks})
		f.uploads.Wait()

		job, _ := f.uploads.GetJob(started.ID)
		assert.Equal(t, StatusError, job.Status)
		assert.Contains(t, job.Error, session.ErrSessionNotFound.Error())
	})
}

func TestCleanupOldJobs(t *testing.T) {
	m := NewManager(testutil.NewMockStorage(), nil)
	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()

	m.jobs["old"] = &Job{ID: "old", Status: StatusComplete, CompletedAt: &old}
	m.jobs["recent"] = &Job{ID: "recent", Status: StatusError, CompletedAt: &recent}
	m.jobs["running"] = &Job{ID: "running", Status: StatusAssembling}

	assert.Equal(t, 1, m.CleanupOldJobs(time.Hour))
	_, ok := m.GetJob("old")
	assert.False(t, ok)
	_, ok = m.GetJob("recent")
	assert.True(t, ok)
	_, ok = m.GetJob("running")
	assert.True(t, ok)
}

func TestIsGzip(t *testing.T) {
	assert.True(t, IsGzip("gzip"))
	assert.True(t, IsGzip("binary-gzip"))
	assert.False(t, IsGzip(""))
	assert.False(t, IsGzip("binary"))
}

var _ Stager = (*session.Manager)(nil)
