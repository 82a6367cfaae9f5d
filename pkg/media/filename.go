package media

import (
	"path"
	"strings"
	"time"

	"nestsync/pkg/errors"
)

// timestampPrefix is the filename prefix derived from the record's event
// time, formatted in UTC
const timestampPrefix = "20060102150405Z"

// imageFilename builds the on-disk name for a photo URL. CDN URLs either
// end in the image file itself or in a "data-media" path segment with the
// file id one level up.
func imageFilename(mediaURL string, eventTime time.Time) (string, error) {
	trimmed := stripQuery(mediaURL)
	parts := strings.Split(trimmed, "/")
	last := parts[len(parts)-1]

	var fileID string
	switch {
	case strings.HasSuffix(trimmed, "jpg"):
		fileID = last
	case last == "data-media" && len(parts) >= 2:
		fileID = parts[len(parts)-2]
	default:
		return "", errors.Newf(errors.ErrorTypeParsing, "unexpected media url format %s", trimmed)
	}

	return eventTime.UTC().Format(timestampPrefix) + fileID, nil
}

// videoFilename builds the on-disk name for a video URL. The CDN path ends
// with <uuid>/<name>.<ext>; the uuid keeps names unique for a timestamp,
// dashes dropped.
func videoFilename(mediaURL string, eventTime time.Time) (string, error) {
	trimmed := stripQuery(mediaURL)
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", errors.Newf(errors.ErrorTypeParsing, "unexpected media url format %s", trimmed)
	}

	uuid := strings.ReplaceAll(parts[len(parts)-2], "-", "")
	ext := strings.TrimPrefix(path.Ext(parts[len(parts)-1]), ".")
	if uuid == "" || ext == "" {
		return "", errors.Newf(errors.ErrorTypeParsing, "unexpected media url format %s", trimmed)
	}

	return eventTime.UTC().Format(timestampPrefix) + uuid + "." + ext, nil
}

func stripQuery(rawURL string) string {
	if i := strings.Index(rawURL, "?"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
