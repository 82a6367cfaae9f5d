package media

import (
	"bufio"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"nestsync/internal/downloader"
	"nestsync/pkg/errors"
	"nestsync/pkg/exif"
	"nestsync/pkg/feed"
	"nestsync/pkg/logger"
	"nestsync/pkg/retry"
	"nestsync/pkg/storage"
	"nestsync/pkg/store"
)

// Store is the metadata persistence surface the processor reads from and
// flags records in
type Store interface {
	ListUnprocessed(studentID string) ([]*store.Activity, error)
	MarkProcessed(id string) error
}

// Downloader fetches media bytes from the CDN
type Downloader interface {
	Download(rawURL string) (io.ReadCloser, error)
}

// Options control a single processing run
type Options struct {
	// StudentID limits the run to one student; empty processes all
	StudentID string

	// Concurrency is the number of records processed in parallel;
	// values below 1 run serially
	Concurrency int

	// Force re-downloads media even when the file already exists
	Force bool

	// SkipExif leaves downloaded files untagged
	SkipExif bool

	// Latitude and Longitude, when both set, are written into media
	// tags as the capture location
	Latitude  *float64
	Longitude *float64
}

// Report summarizes one processing run
type Report struct {
	Scanned    int
	Downloaded int
	Skipped    int
	Tagged     int
	NoMedia    int
	Failed     int
}

// Processor downloads and tags media for stored records that have not
// been processed yet
type Processor struct {
	store      Store
	downloader Downloader
	files      *storage.Manager
	tagger     exif.Tagger
	retryCfg   *retry.Config
	logger     logger.Logger
}

// NewProcessor creates a media processor. retryCfg bounds download
// attempts; nil uses the retry defaults.
func NewProcessor(st Store, dl Downloader, files *storage.Manager, tagger exif.Tagger, retryCfg *retry.Config, log logger.Logger) *Processor {
	return &Processor{
		store:      st,
		downloader: dl,
		files:      files,
		tagger:     tagger,
		retryCfg:   retryCfg,
		logger:     log,
	}
}

// Process walks every unprocessed record, downloading and tagging its
// media, fanning records out across a worker pool. A failing record is
// logged and left unprocessed so the next run retries it; the batch
// always continues.
func (p *Processor) Process(opts Options) (*Report, error) {
	records, err := p.store.ListUnprocessed(opts.StudentID)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var mu sync.Mutex

	pool := downloader.NewWorkerPool(opts.Concurrency, func(rec *store.Activity) error {
		outcome, err := p.processRecord(rec, opts)
		if err != nil {
			return err
		}
		if err := p.store.MarkProcessed(rec.ID); err != nil {
			return err
		}
		mu.Lock()
		report.apply(outcome)
		mu.Unlock()
		return nil
	}, p.logger)

	pool.Start()
	go func() {
		for _, rec := range records {
			pool.Submit(rec)
		}
		pool.Stop()
	}()

	for res := range pool.Results() {
		report.Scanned++
		if res.Err != nil {
			p.logger.WithField("activity", res.Record.ID).
				WithError(res.Err).Error("failed to process record, will retry next run")
			report.Failed++
		}
	}

	p.logger.WithFields(map[string]interface{}{
		"scanned":    report.Scanned,
		"downloaded": report.Downloaded,
		"skipped":    report.Skipped,
		"tagged":     report.Tagged,
		"no_media":   report.NoMedia,
		"failed":     report.Failed,
	}).Info("media processing complete")

	return report, nil
}

// outcome is what happened to one record; folded into the report under
// the pool's lock
type outcome struct {
	downloaded bool
	skipped    bool
	tagged     bool
	noMedia    bool
}

func (r *Report) apply(o outcome) {
	if o.downloaded {
		r.Downloaded++
	}
	if o.skipped {
		r.Skipped++
	}
	if o.tagged {
		r.Tagged++
	}
	if o.noMedia {
		r.NoMedia++
	}
}

// processRecord handles one stored record end to end. A nil error means
// the record can be flagged processed.
func (p *Processor) processRecord(rec *store.Activity, opts Options) (outcome, error) {
	var out outcome

	activity, err := feed.ParseActivity(rec.Payload)
	if err != nil {
		return out, err
	}

	mediaURL, video, ok := selectMedia(activity)
	if !ok {
		p.logger.WithFields(map[string]interface{}{
			"activity":    rec.ID,
			"action_type": rec.ActionType,
		}).Warn("record has no downloadable media")
		out.noMedia = true
		return out, nil
	}

	eventTime, err := activity.EventTime()
	if err != nil {
		return out, err
	}

	var filename string
	if video {
		filename, err = videoFilename(mediaURL, eventTime)
	} else {
		filename, err = imageFilename(mediaURL, eventTime)
	}
	if err != nil {
		return out, err
	}

	// Lookup is by prefix: a file saved under a sniffed extension still
	// matches its extension-less derived name.
	if existing, ok := p.files.FindPrefix(rec.StudentID, filename); ok && !opts.Force {
		filename = existing
		out.skipped = true
	} else {
		savedName, err := p.download(mediaURL, rec.StudentID, filename)
		if err != nil {
			return out, err
		}
		filename = savedName
		out.downloaded = true
	}

	if !opts.SkipExif {
		info := exif.TagInfo{
			Timestamp: eventTime,
			Latitude:  opts.Latitude,
			Longitude: opts.Longitude,
			Video:     video,
		}
		if err := p.tagger.Tag(p.files.Path(rec.StudentID, filename), info); err != nil {
			// A half-tagged file from this run is removed so the
			// retry starts from a clean download.
			if out.downloaded {
				os.Remove(p.files.Path(rec.StudentID, filename))
			}
			return out, err
		}
		out.tagged = true
	}

	return out, nil
}

// download streams the media to disk, retrying transient failures. The
// returned filename may gain an extension sniffed from the content when
// the URL carried none.
func (p *Processor) download(mediaURL, studentID, filename string) (string, error) {
	savedName := filename
	op := func() error {
		body, err := p.downloader.Download(mediaURL)
		if err != nil {
			return err
		}
		defer body.Close()

		name, reader, err := repairExtension(filename, body)
		if err != nil {
			return err
		}
		savedName = name
		return p.files.Save(reader, studentID, name)
	}

	if err := retry.Do(op, p.retryCfg); err != nil {
		return "", err
	}
	return savedName, nil
}

// selectMedia picks the downloadable URL out of a record, videos first
func selectMedia(activity *feed.Activity) (url string, video bool, ok bool) {
	if u, found := activity.VideoURL(); found {
		return u, true, true
	}
	if u, found := activity.ImageURL(); found {
		return u, false, true
	}
	return "", false, false
}

// repairExtension sniffs the content type when the filename has no
// extension, so files land on disk with a usable suffix
func repairExtension(filename string, body io.Reader) (string, io.Reader, error) {
	if filepath.Ext(filename) != "" {
		return filename, body, nil
	}

	buffered := bufio.NewReader(body)
	head, err := buffered.Peek(512)
	if err != nil && err != io.EOF {
		return "", nil, errors.Wrap(errors.ErrorTypeDownload, "failed to read media content", err)
	}

	contentType := http.DetectContentType(head)
	ext := strings.TrimPrefix(contentType[strings.LastIndex(contentType, "/")+1:], "x-")
	if i := strings.Index(ext, ";"); i >= 0 {
		ext = ext[:i]
	}
	if ext == "jpeg" {
		ext = "jpg"
	}

	return filename + "." + ext, buffered, nil
}
