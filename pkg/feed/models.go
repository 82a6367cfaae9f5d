package feed

import (
	"encoding/json"
	"strings"
	"time"

	"nestsync/pkg/errors"
)

// Session is an authenticated feed session: the login it belongs to, the
// opaque session token, and the resolved user id of the guardian
type Session struct {
	Login  string
	Token  string
	UserID string
}

// SessionStartResponse is the reply to the first step of the login handshake
type SessionStartResponse struct {
	TwoFactorRequired bool `json:"2fa_required"`
}

// UserResponse describes the authenticated user
type UserResponse struct {
	ObjectID string `json:"object_id"`
}

// StudentsResponse lists the students visible to a guardian
type StudentsResponse struct {
	Students []GuardianStudent `json:"students"`
}

// GuardianStudent wraps one student entry in the guardian listing
type GuardianStudent struct {
	Student Student `json:"student"`
}

// Student is one child in the guardian's care
type Student struct {
	ObjectID  string `json:"object_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FullName returns "First Last", the string student filters match against
func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// ActivitiesPage is one page of raw activity records. Records are kept raw
// so the full payload can be persisted verbatim.
type ActivitiesPage struct {
	Activities []json.RawMessage `json:"activities"`
}

// Media holds the photo reference of an activity, when present
type Media struct {
	ImageURL string `json:"image_url"`
}

// VideoInfo holds the video reference of an activity, when present
type VideoInfo struct {
	DownloadableURL   string `json:"downloadable_url"`
	TranscodingStatus string `json:"transcoding_status"`
}

// Activity is the parsed view over one raw feed record. Raw preserves the
// complete payload for storage; the typed fields are the ones the sync and
// media layers act on.
type Activity struct {
	ObjectID   string     `json:"object_id"`
	EventDate  string     `json:"event_date"`
	ActionType string     `json:"action_type"`
	Media      *Media     `json:"media"`
	VideoInfo  *VideoInfo `json:"video_info"`
	Latitude   float64    `json:"latitude,omitempty"`
	Longitude  float64    `json:"longitude,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// eventDateLayouts are the timestamp formats seen in feed payloads
var eventDateLayouts = []string{
	"2006-01-02T15:04:05.999999Z07:00",
	time.RFC3339,
}

// ParseActivity parses a raw feed record, failing with a typed parsing
// error when required fields are missing
func ParseActivity(raw []byte) (*Activity, error) {
	var a Activity
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeParsing, "malformed activity record", err)
	}
	if a.ObjectID == "" {
		return nil, errors.New(errors.ErrorTypeParsing, "activity record missing object_id")
	}
	if a.EventDate == "" {
		return nil, errors.Newf(errors.ErrorTypeParsing, "activity %s missing event_date", a.ObjectID)
	}
	if _, err := a.EventTime(); err != nil {
		return nil, err
	}
	a.Raw = append(json.RawMessage(nil), raw...)
	return &a, nil
}

// EventTime parses the record's event timestamp
func (a *Activity) EventTime() (time.Time, error) {
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, a.EventDate); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf(errors.ErrorTypeParsing,
		"activity %s has unparseable event_date %q", a.ObjectID, a.EventDate)
}

// ImageURL returns the photo URL embedded in the record, if any
func (a *Activity) ImageURL() (string, bool) {
	if a.Media == nil || a.Media.ImageURL == "" {
		return "", false
	}
	return a.Media.ImageURL, true
}

// VideoURL returns the downloadable video URL embedded in the record, if any
func (a *Activity) VideoURL() (string, bool) {
	if a.VideoInfo == nil || a.VideoInfo.DownloadableURL == "" {
		return "", false
	}
	return a.VideoInfo.DownloadableURL, true
}

// VideoReady reports whether the record's video, if present, has finished
// remote transcoding. Records that are not ready are skipped during sync and
// picked up by a later windowed fetch.
func (a *Activity) VideoReady() bool {
	if a.VideoInfo == nil {
		return true
	}
	return a.VideoInfo.TranscodingStatus == "complete"
}

// HasMedia reports whether the record references any downloadable media
func (a *Activity) HasMedia() bool {
	_, hasImage := a.ImageURL()
	_, hasVideo := a.VideoURL()
	return hasImage || hasVideo
}

// MatchStudents returns the students whose full name contains the filter
func MatchStudents(students []GuardianStudent, filter string) []Student {
	var matched []Student
	for _, entry := range students {
		if strings.Contains(entry.Student.FullName(), filter) {
			matched = append(matched, entry.Student)
		}
	}
	return matched
}
