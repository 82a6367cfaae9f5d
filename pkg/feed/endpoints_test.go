package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testWindow() Window {
	return Window{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
	}
}

func TestWindowValid(t *testing.T) {
	assert.True(t, testWindow().Valid())

	single := Window{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.True(t, single.Valid(), "single-day window is valid")

	inverted := Window{Start: single.End.AddDate(0, 0, 1), End: single.End}
	assert.False(t, inverted.Valid())
}

func TestWindowParams(t *testing.T) {
	w := testWindow()
	assert.Equal(t, "2023-01-01", w.StartParam())
	assert.Equal(t, "2023-01-03", w.EndParam())
}

func TestSessionURLs(t *testing.T) {
	base := "https://feed.example.com/api/v1"
	assert.Equal(t, base+"/sessions/start", SessionStartURL(base))
	assert.Equal(t, base+"/sessions", SessionURL(base))
	assert.Equal(t, base+"/users/me", MeURL(base))

	// Trailing slash on the base URL is tolerated
	assert.Equal(t, base+"/sessions", SessionURL(base+"/"))
}

func TestGuardianStudentsURL(t *testing.T) {
	got := GuardianStudentsURL("https://feed.example.com/api/v1", "user-123")
	assert.Equal(t, "https://feed.example.com/api/v1/guardians/user-123/students", got)
}

func TestStudentActivitiesURL(t *testing.T) {
	got := StudentActivitiesURL("https://feed.example.com/api/v1", "stu-1", testWindow(), 2, 25)

	assert.Contains(t, got, "/students/stu-1/activities?")
	assert.Contains(t, got, "page=2")
	assert.Contains(t, got, "page_size=25")
	assert.Contains(t, got, "start_date=2023-01-01")
	assert.Contains(t, got, "end_date=2023-01-03")
}

func TestStudentActivitiesURLEscapesID(t *testing.T) {
	got := StudentActivitiesURL("https://feed.example.com/api/v1", "stu/../etc", testWindow(), 0, 25)
	assert.NotContains(t, got, "stu/../etc")
}
