package exif

import (
	"fmt"
	"os/exec"
	"time"
	_ "time/tzdata"

	"github.com/zsefvlol/timezonemapper"

	"nestsync/pkg/errors"
)

const tagTimeLayout = "2006:01:02 15:04:05"

// TagInfo holds the metadata written into a media file
type TagInfo struct {
	// Timestamp is the capture time, written in UTC
	Timestamp time.Time

	// Latitude and Longitude, when both set, are written as GPS tags
	Latitude  *float64
	Longitude *float64

	// Video selects the video tag set. Video containers carry the
	// create date and a combined GPS coordinate key instead of the
	// still-image EXIF tags.
	Video bool
}

// Tagger writes metadata tags into media files
type Tagger interface {
	Tag(path string, info TagInfo) error
}

// runner executes the external tagging command; injectable for tests
type runner func(binary string, args ...string) ([]byte, error)

func execRunner(binary string, args ...string) ([]byte, error) {
	return exec.Command(binary, args...).CombinedOutput()
}

// ExifTool tags files by shelling out to the exiftool binary
type ExifTool struct {
	binary string
	run    runner
}

// NewExifTool creates a tagger using the given exiftool binary. An empty
// binary falls back to "exiftool" on PATH.
func NewExifTool(binary string) *ExifTool {
	if binary == "" {
		binary = "exiftool"
	}
	return &ExifTool{binary: binary, run: execRunner}
}

// Available reports whether the exiftool binary can be found
func (e *ExifTool) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

// Tag writes the capture timestamp and optional GPS position into the
// file at path, overwriting it in place
func (e *ExifTool) Tag(path string, info TagInfo) error {
	args := []string{"-overwrite_original"}
	hasGPS := info.Latitude != nil && info.Longitude != nil

	if info.Video {
		// Video containers have no timezone field, the GPS key
		// carries location instead.
		args = append(args, fmt.Sprintf("-CreateDate=%s", info.Timestamp.UTC().Format(tagTimeLayout)))
		if hasGPS {
			args = append(args, fmt.Sprintf("-Keys:GPSCoordinates=%.4f, %.4f, 0",
				*info.Latitude, *info.Longitude))
		}
	} else {
		// Known coordinates shift the capture time into the local
		// zone so downstream photo services order it correctly.
		local := info.Timestamp.UTC()
		if hasGPS {
			local = info.Timestamp.In(captureZone(*info.Latitude, *info.Longitude))
		}
		args = append(args,
			fmt.Sprintf("-DateTimeOriginal=%s", local.Format(tagTimeLayout)),
			fmt.Sprintf("-OffsetTimeOriginal=%s", local.Format("-07:00")),
		)
		if hasGPS {
			latRef, lonRef := "N", "E"
			if *info.Latitude < 0 {
				latRef = "S"
			}
			if *info.Longitude < 0 {
				lonRef = "W"
			}
			args = append(args,
				fmt.Sprintf("-GPSLatitude=%f", *info.Latitude),
				fmt.Sprintf("-GPSLatitudeRef=%s", latRef),
				fmt.Sprintf("-GPSLongitude=%f", *info.Longitude),
				fmt.Sprintf("-GPSLongitudeRef=%s", lonRef),
			)
		}
	}

	args = append(args, path)

	output, err := e.run(e.binary, args...)
	if err != nil {
		return errors.Wrap(errors.ErrorTypeTagging,
			fmt.Sprintf("exiftool failed: %s", string(output)), err)
	}

	return nil
}

// captureZone resolves the IANA zone covering the coordinates, falling
// back to UTC when the lookup or zone load fails
func captureZone(lat, lon float64) *time.Location {
	if name := timezonemapper.LatLngToTimezoneString(lat, lon); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}
