package sync

import (
	"time"

	"nestsync/pkg/errors"
	"nestsync/pkg/feed"
	"nestsync/pkg/logger"
	"nestsync/pkg/store"
)

// Client is the feed API surface the engine drives
type Client interface {
	Authenticate(login, cachedToken string, prompts *feed.Prompts) (*feed.Session, error)
	ResolveStudent(sess *feed.Session, filter string) (*feed.Student, error)
	Activities(sess *feed.Session, studentID string, window feed.Window) *feed.ActivityIter
}

// TokenCache persists session tokens between runs
type TokenCache interface {
	Token(login string) (string, error)
	PutToken(login, token string) error
	ClearToken(login string) error
}

// Store is the metadata persistence surface the engine writes to
type Store interface {
	UpsertActivity(rec *store.Activity) (bool, error)
	ClearStudent(studentID string) error
}

// Options control a single sync run
type Options struct {
	// Login is the guardian account email
	Login string

	// StudentFilter is matched as a substring against student full names
	StudentFilter string

	// Window bounds the fetch; zero values default to today (UTC)
	Window feed.Window

	// IgnoreStoredAuth discards any cached session token before
	// authenticating
	IgnoreStoredAuth bool

	// ForceClear drops the student's stored records before fetching
	ForceClear bool

	// Prompts supplies interactive credentials; nil means
	// non-interactive, where a rejected cached token is fatal
	Prompts *feed.Prompts
}

// Report summarizes one sync run
type Report struct {
	StudentID   string
	StudentName string
	Fetched     int
	Inserted    int
	Existing    int
	NotReady    int
}

// Engine fetches feed records for one student and persists them
type Engine struct {
	client Client
	tokens TokenCache
	store  Store
	logger logger.Logger
}

// NewEngine creates a sync engine
func NewEngine(client Client, tokens TokenCache, st Store, log logger.Logger) *Engine {
	return &Engine{
		client: client,
		tokens: tokens,
		store:  st,
		logger: log,
	}
}

// Run authenticates, resolves the student, and persists every record in
// the window. A session rejected mid-fetch is retried once with a fresh
// interactive login before the run fails.
func (e *Engine) Run(opts Options) (*Report, error) {
	window := defaultWindow(opts.Window)
	if !window.Valid() {
		return nil, errors.Newf(errors.ErrorTypeParsing,
			"window end %s is before start %s", window.EndParam(), window.StartParam())
	}

	if opts.IgnoreStoredAuth {
		if err := e.tokens.ClearToken(opts.Login); err != nil {
			return nil, err
		}
	}

	sess, err := e.authenticate(opts.Login, opts.Prompts)
	if err != nil {
		return nil, err
	}

	student, err := e.client.ResolveStudent(sess, opts.StudentFilter)
	if err != nil {
		return nil, err
	}

	log := e.logger.WithFields(map[string]interface{}{
		"student": student.FullName(),
		"start":   window.StartParam(),
		"end":     window.EndParam(),
	})
	log.Info("syncing activity feed")

	if opts.ForceClear {
		if err := e.store.ClearStudent(student.ObjectID); err != nil {
			return nil, err
		}
		log.Info("cleared stored records for student")
	}

	report := &Report{
		StudentID:   student.ObjectID,
		StudentName: student.FullName(),
	}

	err = e.fetch(sess, student.ObjectID, window, report)
	if err != nil && errors.IsType(err, errors.ErrorTypeAuthRequired) {
		// The session expired mid-fetch. Re-authenticate once from
		// scratch and retry; records stored so far are safe to
		// fetch again because inserts are idempotent.
		log.Warn("session rejected mid-fetch, re-authenticating")
		if clearErr := e.tokens.ClearToken(opts.Login); clearErr != nil {
			return nil, clearErr
		}
		sess, err = e.authenticate(opts.Login, opts.Prompts)
		if err != nil {
			return nil, err
		}
		err = e.fetch(sess, student.ObjectID, window, report)
		if err != nil && errors.IsType(err, errors.ErrorTypeAuthRequired) {
			// A second consecutive rejection is terminal.
			err = errors.Wrap(errors.ErrorTypeAuthFailed,
				"session rejected again after re-authentication", err)
		}
	}
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"fetched":   report.Fetched,
		"inserted":  report.Inserted,
		"existing":  report.Existing,
		"not_ready": report.NotReady,
	}).Info("sync complete")

	return report, nil
}

// authenticate logs in using any cached token first, persisting the token
// of the resulting session for the next run
func (e *Engine) authenticate(login string, prompts *feed.Prompts) (*feed.Session, error) {
	cached, err := e.tokens.Token(login)
	if err != nil && !errors.IsType(err, errors.ErrorTypeNotFound) {
		return nil, err
	}

	sess, err := e.client.Authenticate(login, cached, prompts)
	if err != nil {
		return nil, err
	}

	if sess.Token != "" && sess.Token != cached {
		if err := e.tokens.PutToken(login, sess.Token); err != nil {
			return nil, err
		}
	}

	return sess, nil
}

// fetch drains the activity iterator into the store, accumulating counts
// into report. Counts reset first so a retried fetch does not double count.
func (e *Engine) fetch(sess *feed.Session, studentID string, window feed.Window, report *Report) error {
	report.Fetched = 0
	report.Inserted = 0
	report.Existing = 0
	report.NotReady = 0

	iter := e.client.Activities(sess, studentID, window)
	for iter.Next() {
		rec := iter.Record()
		report.Fetched++

		if !rec.VideoReady() {
			// Left out of the store entirely so a later run picks
			// up the finished transcode as a new record.
			e.logger.WithField("activity", rec.ObjectID).
				Debug("video still transcoding, skipping")
			report.NotReady++
			continue
		}

		eventTime, err := rec.EventTime()
		if err != nil {
			return err
		}

		inserted, err := e.store.UpsertActivity(&store.Activity{
			ID:         rec.ObjectID,
			StudentID:  studentID,
			EventDate:  eventTime,
			ActionType: rec.ActionType,
			Payload:    rec.Raw,
		})
		if err != nil {
			return err
		}
		if inserted {
			report.Inserted++
		} else {
			report.Existing++
		}
	}

	return iter.Err()
}

// defaultWindow fills unset window bounds: start defaults to today (UTC),
// end defaults to the start day
func defaultWindow(w feed.Window) feed.Window {
	if w.Start.IsZero() {
		now := time.Now().UTC()
		w.Start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	if w.End.IsZero() {
		w.End = w.Start
	}
	return w
}
