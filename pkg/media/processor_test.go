package media

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestsync/pkg/errors"
	"nestsync/pkg/exif"
	"nestsync/pkg/logger"
	"nestsync/pkg/retry"
	"nestsync/pkg/storage"
	"nestsync/pkg/store"
)

// memStore is an in-memory record source tracking processed flags
type memStore struct {
	mu        sync.Mutex
	records   []*store.Activity
	processed map[string]bool
}

func newMemStore(records ...*store.Activity) *memStore {
	return &memStore{records: records, processed: make(map[string]bool)}
}

func (m *memStore) ListUnprocessed(studentID string) ([]*store.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*store.Activity
	for _, rec := range m.records {
		if m.processed[rec.ID] {
			continue
		}
		if studentID != "" && rec.StudentID != studentID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *memStore) MarkProcessed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[id] = true
	return nil
}

func (m *memStore) isProcessed(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed[id]
}

// fakeDownloader serves canned bytes per URL, optionally failing the
// first N calls for a URL
type fakeDownloader struct {
	mu       sync.Mutex
	content  map[string][]byte
	failures map[string]int
	calls    map[string]int
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{
		content:  make(map[string][]byte),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (f *fakeDownloader) Download(rawURL string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	if f.failures[rawURL] > 0 {
		f.failures[rawURL]--
		return nil, errors.New(errors.ErrorTypeDownload, "connection reset")
	}
	data, ok := f.content[rawURL]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeDownload, "media fetch failed with status 404")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// fakeTagger records tag calls
type fakeTagger struct {
	mu    sync.Mutex
	calls []string
	infos []exif.TagInfo
	err   error
}

func (f *fakeTagger) Tag(path string, info exif.TagInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	f.infos = append(f.infos, info)
	return f.err
}

var jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("JFIF-payload")...)

func photoActivity(id, studentID, url string) *store.Activity {
	payload := fmt.Sprintf(`{
		"object_id": %q,
		"event_date": "2023-06-01T10:30:00.000000+00:00",
		"action_type": "ac_photo",
		"media": {"image_url": %q}
	}`, id, url)
	return &store.Activity{
		ID:         id,
		StudentID:  studentID,
		EventDate:  eventTime,
		ActionType: "ac_photo",
		Payload:    []byte(payload),
	}
}

func videoActivity(id, studentID, url string) *store.Activity {
	payload := fmt.Sprintf(`{
		"object_id": %q,
		"event_date": "2023-06-01T10:30:00.000000+00:00",
		"action_type": "ac_video",
		"video_info": {"downloadable_url": %q, "transcoding_status": "complete"}
	}`, id, url)
	return &store.Activity{
		ID:         id,
		StudentID:  studentID,
		EventDate:  eventTime,
		ActionType: "ac_video",
		Payload:    []byte(payload),
	}
}

func noMediaActivity(id, studentID string) *store.Activity {
	payload := fmt.Sprintf(`{
		"object_id": %q,
		"event_date": "2023-06-01T10:30:00.000000+00:00",
		"action_type": "ac_note"
	}`, id)
	return &store.Activity{
		ID:         id,
		StudentID:  studentID,
		EventDate:  eventTime,
		ActionType: "ac_note",
		Payload:    []byte(payload),
	}
}

type fixture struct {
	store      *memStore
	downloader *fakeDownloader
	files      *storage.Manager
	tagger     *fakeTagger
	processor  *Processor
}

func newFixture(t *testing.T, records ...*store.Activity) *fixture {
	t.Helper()

	files, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		store:      newMemStore(records...),
		downloader: newFakeDownloader(),
		files:      files,
		tagger:     &fakeTagger{},
	}
	retryCfg := &retry.Config{
		MaxAttempts: 3,
		Backoff:     &retry.ConstantBackoff{Delay: 0},
		RetryIf:     retry.DefaultRetryIf,
		Logger:      logger.NewTestLogger(),
	}
	f.processor = NewProcessor(f.store, f.downloader, files, f.tagger, retryCfg, logger.NewTestLogger())
	return f
}

func TestProcessDownloadsAndTags(t *testing.T) {
	url := "https://cdn.example.com/abc123.jpg?sig=x"
	f := newFixture(t, photoActivity("a1", "stu-1", url))
	f.downloader.content[url] = jpegBytes

	report, err := f.processor.Process(Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 1, report.Tagged)
	assert.Equal(t, 0, report.Failed)

	data, err := os.ReadFile(f.files.Path("stu-1", "20230601103000Zabc123.jpg"))
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, data)

	assert.True(t, f.store.processed["a1"])
	require.Len(t, f.tagger.infos, 1)
	assert.Equal(t, eventTime, f.tagger.infos[0].Timestamp.UTC())
	assert.False(t, f.tagger.infos[0].Video)
}

func TestProcessVideo(t *testing.T) {
	url := "https://cdn.example.com/videos/abcd-ef01/clip.mp4"
	f := newFixture(t, videoActivity("v1", "stu-1", url))
	f.downloader.content[url] = []byte("video-bytes")

	report, err := f.processor.Process(Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Downloaded)
	assert.FileExists(t, f.files.Path("stu-1", "20230601103000Zabcdef01.mp4"))
	require.Len(t, f.tagger.infos, 1)
	assert.True(t, f.tagger.infos[0].Video)
}

func TestProcessSniffsMissingExtension(t *testing.T) {
	url := "https://cdn.example.com/obj/1234-5678/data-media"
	f := newFixture(t, photoActivity("a1", "stu-1", url))
	f.downloader.content[url] = jpegBytes

	_, err := f.processor.Process(Options{})
	require.NoError(t, err)

	data, err := os.ReadFile(f.files.Path("stu-1", "20230601103000Z1234-5678.jpg"))
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, data)
}

func TestProcessSkipsExistingFile(t *testing.T) {
	url := "https://cdn.example.com/abc123.jpg"
	f := newFixture(t, photoActivity("a1", "stu-1", url))
	f.downloader.content[url] = jpegBytes

	require.NoError(t, f.files.Save(bytes.NewReader(jpegBytes), "stu-1", "20230601103000Zabc123.jpg"))

	report, err := f.processor.Process(Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Downloaded)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, f.downloader.calls[url])
	// The existing file is still tagged and the record flagged.
	assert.Equal(t, 1, report.Tagged)
	assert.True(t, f.store.processed["a1"])
}

func TestProcessSkipsFileSavedUnderSniffedName(t *testing.T) {
	url := "https://cdn.example.com/obj/1234-5678/data-media"
	f := newFixture(t, photoActivity("a1", "stu-1", url))
	f.downloader.content[url] = jpegBytes

	// A prior run derived an extension-less name from the URL and saved
	// the file with a sniffed .jpg suffix.
	require.NoError(t, f.files.Save(bytes.NewReader(jpegBytes), "stu-1", "20230601103000Z1234-5678.jpg"))

	report, err := f.processor.Process(Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Downloaded)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, f.downloader.calls[url])
	assert.True(t, f.store.processed["a1"])
	// The existing file is tagged under its on-disk name.
	require.Len(t, f.tagger.calls, 1)
	assert.Equal(t, f.files.Path("stu-1", "20230601103000Z1234-5678.jpg"), f.tagger.calls[0])
}

func TestProcessForceRedownloads(t *testing.T) {
	url := "https://cdn.example.com/abc123.jpg"
	f := newFixture(t, photoActivity("a1", "stu-1", url))
	f.downloader.content[url] = jpegBytes

	require.NoError(t, f.files.Save(bytes.NewReader([]byte("stale")), "stu-1", "20230601103000Zabc123.jpg"))

	report, err := f.processor.Process(Options{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Downloaded)
	data, err := os.ReadFile(f.files.Path("stu-1", "20230601103000Zabc123.jpg"))
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, data)
}

func TestProcessSkipExif(t *testing.T) {
	url := "https://cdn.example.com/abc123.jpg"
	f := newFixture(t, photoActivity("a1", "stu-1", url))
	f.downloader.content[url] = jpegBytes

	report, err := f.processor.Process(Options{SkipExif: true})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Tagged)
	assert.Empty(t, f.tagger.calls)
	assert.True(t, f.store.processed["a1"])
}

func TestProcessGPSOptions(t *testing.T) {
	url := "https://cdn.example.com/abc123.jpg"
	f := newFixture(t, photoActivity("a1", "stu-1", url))
	f.downloader.content[url] = jpegBytes

	lat, lon := 40.7128, -74.0060
	_, err := f.processor.Process(Options{Latitude: &lat, Longitude: &lon})
	require.NoError(t, err)

	require.Len(t, f.tagger.infos, 1)
	require.NotNil(t, f.tagger.infos[0].Latitude)
	assert.Equal(t, lat, *f.tagger.infos[0].Latitude)
	require.NotNil(t, f.tagger.infos[0].Longitude)
	assert.Equal(t, lon, *f.tagger.infos[0].Longitude)
}

func TestProcessNoMediaRecordIsFlagged(t *testing.T) {
	f := newFixture(t, noMediaActivity("n1", "stu-1"))

	report, err := f.processor.Process(Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.NoMedia)
	assert.True(t, f.store.processed["n1"], "records without media never block the queue")
}

func TestProcessFailureIsolatedPerRecord(t *testing.T) {
	badURL := "https://cdn.example.com/missing.jpg"
	goodURL := "https://cdn.example.com/good.jpg"
	f := newFixture(t,
		photoActivity("bad", "stu-1", badURL),
		photoActivity("good", "stu-1", goodURL),
	)
	f.downloader.content[goodURL] = jpegBytes

	report, err := f.processor.Process(Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Downloaded)
	assert.False(t, f.store.processed["bad"], "failed record is retried next run")
	assert.True(t, f.store.processed["good"])
}

func TestProcessRetriesTransientDownloadFailure(t *testing.T) {
	url := "https://cdn.example.com/abc123.jpg"
	f := newFixture(t, photoActivity("a1", "stu-1", url))
	f.downloader.content[url] = jpegBytes
	f.downloader.failures[url] = 2

	report, err := f.processor.Process(Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 3, f.downloader.calls[url])
	assert.True(t, f.store.processed["a1"])
}

func TestProcessTagFailureRemovesDownload(t *testing.T) {
	url := "https://cdn.example.com/abc123.jpg"
	f := newFixture(t, photoActivity("a1", "stu-1", url))
	f.downloader.content[url] = jpegBytes
	f.tagger.err = errors.New(errors.ErrorTypeTagging, "exiftool failed")

	report, err := f.processor.Process(Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.False(t, f.store.processed["a1"])
	assert.NoFileExists(t, f.files.Path("stu-1", "20230601103000Zabc123.jpg"))
}

func TestProcessConcurrent(t *testing.T) {
	var records []*store.Activity
	urls := make([]string, 10)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://cdn.example.com/photo-%d.jpg", i)
		records = append(records, photoActivity(fmt.Sprintf("a%d", i), "stu-1", urls[i]))
	}
	f := newFixture(t, records...)
	for _, url := range urls {
		f.downloader.content[url] = jpegBytes
	}

	report, err := f.processor.Process(Options{Concurrency: 4})
	require.NoError(t, err)

	assert.Equal(t, 10, report.Scanned)
	assert.Equal(t, 10, report.Downloaded)
	assert.Equal(t, 10, report.Tagged)
	for i := range urls {
		assert.True(t, f.store.isProcessed(fmt.Sprintf("a%d", i)))
	}
}

func TestProcessFiltersByStudent(t *testing.T) {
	url1 := "https://cdn.example.com/one.jpg"
	url2 := "https://cdn.example.com/two.jpg"
	f := newFixture(t,
		photoActivity("a1", "stu-1", url1),
		photoActivity("a2", "stu-2", url2),
	)
	f.downloader.content[url1] = jpegBytes
	f.downloader.content[url2] = jpegBytes

	report, err := f.processor.Process(Options{StudentID: "stu-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	assert.True(t, f.store.processed["a1"])
	assert.False(t, f.store.processed["a2"])
}
