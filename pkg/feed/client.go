package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"nestsync/pkg/errors"
	"nestsync/pkg/logger"
	"nestsync/pkg/ratelimit"
)

// Prompts are the interactive capabilities the client may use during the
// login handshake. Leaving Password nil disallows interactive login; the
// client then fails with an auth_required error instead of prompting.
type Prompts struct {
	Password func() (string, error)
	MFACode  func() (string, error)
}

// Options configures a feed client
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	UserAgent     string
	ClientVersion string
	PageSize      int

	// RequestsPerMinute caps the API request rate; 0 disables throttling
	RequestsPerMinute int
}

// Client issues authenticated queries against the activity feed API
type Client struct {
	httpClient *http.Client
	baseURL    string
	origin     string
	headers    map[string]string
	pageSize   int
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewClient creates a new feed API client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	origin := ""
	if u, err := url.Parse(baseURL); err == nil {
		origin = u.Scheme + "://" + u.Host
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"X-Client-Name": "web",
		"Origin":        origin,
		"Referer":       origin + "/sign-in",
	}
	if opts.ClientVersion != "" {
		headers["X-Client-Version"] = opts.ClientVersion
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}

	var limiter ratelimit.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = ratelimit.NewSlidingWindow(opts.RequestsPerMinute, time.Minute)
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		origin:     origin,
		headers:    headers,
		pageSize:   pageSize,
		limiter:    limiter,
		logger:     log,
	}
}

// PageSize returns the configured activity page size
func (c *Client) PageSize() int {
	return c.pageSize
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// doRequest performs an HTTP request with the configured headers
func (c *Client) doRequest(req *http.Request, sess *Session) (*http.Response, error) {
	if c.limiter != nil {
		c.limiter.Wait()
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if sess != nil && sess.Token != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.Wrap(errors.ErrorTypeNetwork, "network error", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// statusError maps a non-2xx feed response to a typed error
func statusError(resp *http.Response) *errors.Error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == 419:
		return &errors.Error{
			Type:    errors.ErrorTypeAuthRequired,
			Message: "session rejected by feed",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusNotFound:
		return &errors.Error{
			Type:    errors.ErrorTypeNotFound,
			Message: "resource not found",
			Code:    resp.StatusCode,
		}
	default:
		return &errors.Error{
			Type:    errors.ErrorTypeServerError,
			Message: fmt.Sprintf("feed returned status %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
}

// getJSON performs an authenticated GET and decodes the JSON response
func (c *Client) getJSON(rawURL string, sess *Session, target interface{}) error {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeUnknown, "failed to create request", err)
	}

	resp, err := c.doRequest(req, sess)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return errors.Wrap(errors.ErrorTypeParsing, "failed to decode feed response", err)
	}
	return nil
}

// postJSON performs a POST with a JSON body and decodes the response into
// target (which may be nil). The response is returned so callers can read
// cookies; its body is already consumed and closed.
func (c *Client) postJSON(rawURL string, body interface{}, target interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, "failed to encode request body", err)
	}

	req, err := http.NewRequest(http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, "failed to create request", err)
	}

	resp, err := c.doRequest(req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusUnprocessableEntity {
			return nil, &errors.Error{
				Type:    errors.ErrorTypeAuthFailed,
				Message: "feed rejected credentials",
				Code:    resp.StatusCode,
			}
		}
		return nil, statusError(resp)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return nil, errors.Wrap(errors.ErrorTypeParsing, "failed to decode feed response", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp, nil
}

type loginUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	User    loginUser `json:"user"`
	MFACode string    `json:"2fa_code,omitempty"`
}

// Authenticate establishes a session for the given login. A non-empty
// cachedToken is tried first; on rejection or absence the client performs
// the interactive two-step login handshake using the supplied prompts, or
// fails with auth_required when no prompts were provided.
func (c *Client) Authenticate(login, cachedToken string, prompts *Prompts) (*Session, error) {
	if cachedToken != "" {
		sess := &Session{Login: login, Token: cachedToken}
		userID, err := c.Me(sess)
		if err == nil {
			sess.UserID = userID
			return sess, nil
		}
		if !errors.IsType(err, errors.ErrorTypeAuthRequired) {
			return nil, err
		}
		c.logger.WithField("login", login).Warn("stored session rejected, re-authenticating")
	}

	if prompts == nil || prompts.Password == nil {
		return nil, errors.New(errors.ErrorTypeAuthRequired,
			"no valid stored session and interactive login not allowed")
	}

	password, err := prompts.Password()
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeAuthFailed, "failed to read password", err)
	}

	request := loginRequest{User: loginUser{Email: login, Password: password}}

	var start SessionStartResponse
	if _, err := c.postJSON(SessionStartURL(c.baseURL), request, &start); err != nil {
		return nil, err
	}

	if start.TwoFactorRequired {
		if prompts.MFACode == nil {
			return nil, errors.New(errors.ErrorTypeAuthFailed,
				"feed requires an MFA code but no prompt was provided")
		}
		code, err := prompts.MFACode()
		if err != nil {
			return nil, errors.Wrap(errors.ErrorTypeAuthFailed, "failed to read MFA code", err)
		}
		request.MFACode = code
	}

	resp, err := c.postJSON(SessionURL(c.baseURL), request, nil)
	if err != nil {
		return nil, err
	}

	token := ""
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			token = cookie.Value
			break
		}
	}
	if token == "" {
		return nil, errors.New(errors.ErrorTypeAuthFailed,
			"login succeeded but no session cookie was returned")
	}

	sess := &Session{Login: login, Token: token}
	userID, err := c.Me(sess)
	if err != nil {
		return nil, err
	}
	sess.UserID = userID

	c.logger.WithField("login", login).Info("authenticated with feed")
	return sess, nil
}

// Me returns the object id of the authenticated user
func (c *Client) Me(sess *Session) (string, error) {
	var user UserResponse
	if err := c.getJSON(MeURL(c.baseURL), sess, &user); err != nil {
		return "", err
	}
	if user.ObjectID == "" {
		return "", errors.New(errors.ErrorTypeParsing, "feed user response missing object_id")
	}
	return user.ObjectID, nil
}

// Students lists the students visible to the session's guardian
func (c *Client) Students(sess *Session) ([]GuardianStudent, error) {
	var students StudentsResponse
	if err := c.getJSON(GuardianStudentsURL(c.baseURL, sess.UserID), sess, &students); err != nil {
		return nil, err
	}
	return students.Students, nil
}

// ResolveStudent resolves a name-substring filter to exactly one student
func (c *Client) ResolveStudent(sess *Session, filter string) (*Student, error) {
	students, err := c.Students(sess)
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return nil, errors.New(errors.ErrorTypeStudentNotFound, "guardian has no students")
	}

	matched := MatchStudents(students, filter)
	switch len(matched) {
	case 0:
		return nil, errors.Newf(errors.ErrorTypeStudentNotFound, "no student matches %q", filter)
	case 1:
		c.logger.WithFields(map[string]interface{}{
			"student":    matched[0].FullName(),
			"student_id": matched[0].ObjectID,
		}).Info("resolved student")
		return &matched[0], nil
	default:
		return nil, errors.Newf(errors.ErrorTypeAmbiguousStudent,
			"%d students match %q", len(matched), filter)
	}
}

// FetchActivitiesPage fetches one page of a student's activity feed
func (c *Client) FetchActivitiesPage(sess *Session, studentID string, window Window, page int) (*ActivitiesPage, error) {
	var result ActivitiesPage
	u := StudentActivitiesURL(c.baseURL, studentID, window, page, c.pageSize)
	if err := c.getJSON(u, sess, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Activities returns a lazy, one-shot iterator over the student's activity
// records within the window
func (c *Client) Activities(sess *Session, studentID string, window Window) *ActivityIter {
	return &ActivityIter{
		client:    c,
		sess:      sess,
		studentID: studentID,
		window:    window,
	}
}

// Download fetches media bytes from a URL. Media URLs embedded in payloads
// are pre-signed, so no session cookie is sent.
func (c *Client) Download(rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeDownload, "failed to create download request", err)
	}
	if ua, ok := c.headers["User-Agent"]; ok {
		req.Header.Set("User-Agent", ua)
	}

	if c.limiter != nil {
		c.limiter.Wait()
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeDownload, "download failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &errors.Error{
			Type:    errors.ErrorTypeDownload,
			Message: fmt.Sprintf("download returned status %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
	return resp.Body, nil
}
