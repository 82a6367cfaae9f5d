// Package retry provides retry logic with configurable backoff for media
// downloads. Transient transport failures (network errors, 5xx responses)
// are retried; typed domain errors such as auth or student resolution
// failures are returned immediately.
package retry
