package exif

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestsync/pkg/errors"
)

type fakeRun struct {
	binary string
	args   []string
	output []byte
	err    error
}

func (f *fakeRun) run(binary string, args ...string) ([]byte, error) {
	f.binary = binary
	f.args = args
	return f.output, f.err
}

func newTestTool(fake *fakeRun) *ExifTool {
	tool := NewExifTool("exiftool")
	tool.run = fake.run
	return tool
}

func TestTagTimestampOnly(t *testing.T) {
	fake := &fakeRun{}
	tool := newTestTool(fake)

	ts := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	require.NoError(t, tool.Tag("/media/stu-1/photo.jpg", TagInfo{Timestamp: ts}))

	assert.Equal(t, "exiftool", fake.binary)
	assert.Equal(t, []string{
		"-overwrite_original",
		"-DateTimeOriginal=2024:03:15 09:30:00",
		"-OffsetTimeOriginal=+00:00",
		"/media/stu-1/photo.jpg",
	}, fake.args)
}

func TestTagConvertsToUTC(t *testing.T) {
	fake := &fakeRun{}
	tool := newTestTool(fake)

	loc := time.FixedZone("EST", -5*3600)
	ts := time.Date(2024, 3, 15, 9, 30, 0, 0, loc)
	require.NoError(t, tool.Tag("photo.jpg", TagInfo{Timestamp: ts}))

	assert.Contains(t, fake.args, "-DateTimeOriginal=2024:03:15 14:30:00")
}

func TestTagWithGPS(t *testing.T) {
	fake := &fakeRun{}
	tool := newTestTool(fake)

	lat, lon := 40.7128, -74.0060
	ts := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	require.NoError(t, tool.Tag("photo.jpg", TagInfo{Timestamp: ts, Latitude: &lat, Longitude: &lon}))

	assert.Contains(t, fake.args, fmt.Sprintf("-GPSLatitude=%f", lat))
	assert.Contains(t, fake.args, "-GPSLatitudeRef=N")
	assert.Contains(t, fake.args, fmt.Sprintf("-GPSLongitude=%f", lon))
	assert.Contains(t, fake.args, "-GPSLongitudeRef=W")
}

func TestTagLocalizesTimestampFromCoordinates(t *testing.T) {
	fake := &fakeRun{}
	tool := newTestTool(fake)

	// New York observes EDT (-04:00) in mid March.
	lat, lon := 40.7128, -74.0060
	ts := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	require.NoError(t, tool.Tag("photo.jpg", TagInfo{Timestamp: ts, Latitude: &lat, Longitude: &lon}))

	assert.Contains(t, fake.args, "-DateTimeOriginal=2024:03:15 05:30:00")
	assert.Contains(t, fake.args, "-OffsetTimeOriginal=-04:00")

	// Sydney observes AEDT (+11:00) at the same instant.
	lat, lon = -33.8688, 151.2093
	require.NoError(t, tool.Tag("photo.jpg", TagInfo{Timestamp: ts, Latitude: &lat, Longitude: &lon}))

	assert.Contains(t, fake.args, "-DateTimeOriginal=2024:03:15 20:30:00")
	assert.Contains(t, fake.args, "-OffsetTimeOriginal=+11:00")
}

func TestTagVideoKeepsUTCTimestamp(t *testing.T) {
	fake := &fakeRun{}
	tool := newTestTool(fake)

	lat, lon := 40.7128, -74.0060
	ts := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	require.NoError(t, tool.Tag("clip.mp4", TagInfo{Timestamp: ts, Latitude: &lat, Longitude: &lon, Video: true}))

	assert.Contains(t, fake.args, "-CreateDate=2024:03:15 09:30:00")
}

func TestTagSouthernHemisphereRefs(t *testing.T) {
	fake := &fakeRun{}
	tool := newTestTool(fake)

	lat, lon := -33.8688, 151.2093
	require.NoError(t, tool.Tag("photo.jpg", TagInfo{Timestamp: time.Now(), Latitude: &lat, Longitude: &lon}))

	assert.Contains(t, fake.args, "-GPSLatitudeRef=S")
	assert.Contains(t, fake.args, "-GPSLongitudeRef=E")
}

func TestTagSkipsGPSWhenIncomplete(t *testing.T) {
	fake := &fakeRun{}
	tool := newTestTool(fake)

	lat := 40.7128
	require.NoError(t, tool.Tag("photo.jpg", TagInfo{Timestamp: time.Now(), Latitude: &lat}))

	for _, arg := range fake.args {
		assert.NotContains(t, arg, "GPS")
	}
}

func TestTagVideo(t *testing.T) {
	fake := &fakeRun{}
	tool := newTestTool(fake)

	lat, lon := 40.7128, -74.0060
	ts := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	require.NoError(t, tool.Tag("clip.mp4", TagInfo{Timestamp: ts, Latitude: &lat, Longitude: &lon, Video: true}))

	assert.Equal(t, []string{
		"-overwrite_original",
		"-CreateDate=2024:03:15 09:30:00",
		"-Keys:GPSCoordinates=40.7128, -74.0060, 0",
		"clip.mp4",
	}, fake.args)
}

func TestTagVideoWithoutGPS(t *testing.T) {
	fake := &fakeRun{}
	tool := newTestTool(fake)

	ts := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	require.NoError(t, tool.Tag("clip.mp4", TagInfo{Timestamp: ts, Video: true}))

	assert.Equal(t, []string{
		"-overwrite_original",
		"-CreateDate=2024:03:15 09:30:00",
		"clip.mp4",
	}, fake.args)
}

func TestTagFailure(t *testing.T) {
	fake := &fakeRun{output: []byte("File not found"), err: fmt.Errorf("exit status 1")}
	tool := newTestTool(fake)

	err := tool.Tag("missing.jpg", TagInfo{Timestamp: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTagging))
	assert.Contains(t, err.Error(), "File not found")
}

func TestNewExifToolDefaultBinary(t *testing.T) {
	tool := NewExifTool("")
	assert.Equal(t, "exiftool", tool.binary)
}
