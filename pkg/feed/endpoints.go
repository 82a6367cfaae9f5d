package feed

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the base URL for the activity feed API
	DefaultBaseURL = "https://schools.mybrightwheel.com/api/v1"

	// SessionCookieName is the session cookie carrying the auth token
	SessionCookieName = "_brightwheel_v2"

	// DefaultPageSize is the default number of activities fetched per page
	DefaultPageSize = 25

	// windowDateFormat is the date-level granularity used in window queries
	windowDateFormat = "2006-01-02"
)

// Window is an inclusive date range bounding a metadata fetch
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the window is well-formed (start <= end)
func (w Window) Valid() bool {
	return !w.Start.After(w.End)
}

// StartParam returns the start date formatted for a feed query
func (w Window) StartParam() string {
	return w.Start.UTC().Format(windowDateFormat)
}

// EndParam returns the end date formatted for a feed query
func (w Window) EndParam() string {
	return w.End.UTC().Format(windowDateFormat)
}

// SessionStartURL returns the URL initiating the login handshake
func SessionStartURL(baseURL string) string {
	return joinURL(baseURL, "sessions/start")
}

// SessionURL returns the URL completing the login handshake
func SessionURL(baseURL string) string {
	return joinURL(baseURL, "sessions")
}

// MeURL returns the URL describing the authenticated user
func MeURL(baseURL string) string {
	return joinURL(baseURL, "users/me")
}

// GuardianStudentsURL returns the URL listing a guardian's students
func GuardianStudentsURL(baseURL, userID string) string {
	return joinURL(baseURL, fmt.Sprintf("guardians/%s/students", url.PathEscape(userID)))
}

// StudentActivitiesURL returns the URL for one page of a student's activity
// feed within the given window
func StudentActivitiesURL(baseURL, studentID string, window Window, page, pageSize int) string {
	params := url.Values{}
	params.Set("page", fmt.Sprintf("%d", page))
	params.Set("page_size", fmt.Sprintf("%d", pageSize))
	params.Set("start_date", window.StartParam())
	params.Set("end_date", window.EndParam())

	return fmt.Sprintf("%s?%s",
		joinURL(baseURL, fmt.Sprintf("students/%s/activities", url.PathEscape(studentID))),
		params.Encode())
}

func joinURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + path
}
