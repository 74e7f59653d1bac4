package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/platform/backend"
)

// fakeAPI: fail に入れたメソッドは HTTP 500 を返す
type fakeAPI struct {
	fail    map[string]bool
	entered map[string]float64
}

var errDown = &backend.HTTPError{StatusCode: 500}

func (f *fakeAPI) err(name string) error {
	if f.fail[name] {
		return errDown
	}
	return nil
}

func ptr(s string) *string { return &s }

func (f *fakeAPI) GetAllAttendance(context.Context) (backend.AllAttendanceResponse, error) {
	return backend.AllAttendanceResponse{Status: "success", Attendance: map[string][]backend.AttendanceRecord{
		"1": {
			{AttendanceID: 1, ClassID: 1, StudentID: ptr("S001"), Present: true, Date: "2025-04-07"},
			{AttendanceID: 2, ClassID: 1, StudentID: ptr("S002"), Present: false, Date: "2025-04-07"},
			{AttendanceID: 3, ClassID: 1, StudentID: nil, Present: true, Date: "2025-04-07"},
		},
		"2": {
			{AttendanceID: 4, ClassID: 2, StudentID: ptr("S001"), Present: true, Date: "2025-04-08"},
		},
	}}, f.err("all_attendance")
}

func (f *fakeAPI) GetStudentAttendance(_ context.Context, id string) (backend.StudentAttendanceResponse, error) {
	return backend.StudentAttendanceResponse{Records: []backend.AttendanceRecord{
		{AttendanceID: 1, ClassID: 1, StudentID: ptr(id), Present: true},
		{AttendanceID: 4, ClassID: 2, StudentID: ptr(id), Present: true},
		{AttendanceID: 7, ClassID: 3, StudentID: ptr(id), Present: false},
	}}, f.err("attendance")
}

func (f *fakeAPI) GetStudentTimetable(context.Context, string) (backend.TimetableResponse, error) {
	return backend.TimetableResponse{Timetable: []backend.TimetableEntry{{TimetableID: 9, Subject: "Math"}}}, f.err("timetable")
}

func (f *fakeAPI) GetTeacherTimetable(context.Context, string) (backend.TimetableResponse, error) {
	return backend.TimetableResponse{}, f.err("timetable")
}

func (f *fakeAPI) GetAllScores(context.Context) (backend.AllScoresResponse, error) {
	return backend.AllScoresResponse{Scores: map[string]map[string]float64{
		"S002": {"Math": 50, "Art": 70},
		"S001": {"Math": 95, "Art": 85},
	}}, f.err("scores")
}

func (f *fakeAPI) GetStudentScores(context.Context, string) (backend.StudentScoresResponse, error) {
	return backend.StudentScoresResponse{Scores: map[string]float64{"Math": 92, "Physics": 78, "Art": 61}}, f.err("scores")
}

func (f *fakeAPI) GetAllSuggestions(context.Context) (backend.AllSuggestionsResponse, error) {
	return backend.AllSuggestionsResponse{Students: []backend.Suggestion{{StudentID: "S001", TopSuggestions: []string{"Read"}}}}, f.err("suggestions")
}

func (f *fakeAPI) GetStudentSuggestions(context.Context, string) (backend.StudentSuggestionsResponse, error) {
	return backend.StudentSuggestionsResponse{TopSuggestions: []string{"Review Physics"}}, f.err("suggestions")
}

func (f *fakeAPI) EnterScores(_ context.Context, _ string, scores map[string]float64) (backend.StatusResponse, error) {
	f.entered = scores
	return backend.StatusResponse{Status: "success"}, f.err("enter")
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		marks float64
		want  Band
	}{
		{100, BandExcellent},
		{90, BandExcellent},
		{89.9, BandGood},
		{75, BandGood},
		{60, BandAverage},
		{59.9, BandNeedsImprovement},
		{0, BandNeedsImprovement},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BandFor(tt.marks, MaxMarks), tt.marks)
	}
	assert.Equal(t, BandNeedsImprovement, BandFor(10, 0))
}

func TestReportAndSummary(t *testing.T) {
	r := Report(map[string]float64{"Math": 88, "Science": 92, "English": 79, "History": 83})
	assert.Equal(t, 85.5, r.Average)
	assert.Equal(t, BandGood, r.Band)
	require.Len(t, r.Subjects, 4)
	assert.Equal(t, "English", r.Subjects[0].Subject)
	assert.Equal(t, BandExcellent, r.Subjects[2].Band)

	empty := Report(nil)
	assert.Equal(t, 0.0, empty.Average)
	assert.Empty(t, empty.Subjects)

	s := Summarize([]backend.AttendanceRecord{
		{StudentID: ptr("S1"), Present: true},
		{StudentID: ptr("S1"), Present: false},
		{StudentID: ptr("S1"), Present: true},
		{StudentID: nil, Present: true},
	})
	assert.Equal(t, AttendanceSummary{Present: 2, Total: 3, Percent: 66.7}, s)
}

func TestByWeekday(t *testing.T) {
	bars := ByWeekday([]backend.AttendanceRecord{
		{StudentID: ptr("S1"), Present: true, Date: "2025-04-08"},  // Tue
		{StudentID: ptr("S1"), Present: true, Date: "2025-04-07"},  // Mon
		{StudentID: ptr("S2"), Present: false, Date: "2025-04-07"}, // Mon
		{StudentID: ptr("S2"), Present: true, Date: "bad"},
		{StudentID: nil, Present: true, Date: "2025-04-07"},
	})
	assert.Equal(t, []DayBar{{Day: "Mon", Present: 1, Total: 2}, {Day: "Tue", Present: 1, Total: 1}}, bars)
}

func TestStudentView(t *testing.T) {
	svc := NewService(&fakeAPI{}, false)
	v, err := svc.Student(context.Background(), "S001")
	require.NoError(t, err)

	assert.Equal(t, SourceBackend, v.Attendance.Source)
	assert.Equal(t, AttendanceSummary{Present: 2, Total: 3, Percent: 66.7}, v.Attendance.Data.Summary)
	assert.Equal(t, 77.0, v.Scores.Data.Average)
	assert.Equal(t, BandGood, v.Scores.Data.Band)
	assert.Equal(t, []string{"Review Physics"}, v.Suggestions.Data)
	require.Len(t, v.Timetable.Data, 1)

	_, err = svc.Student(context.Background(), "")
	assert.Equal(t, 400, toHTTPStatus(err))
}

func TestPartialFailureWithoutFixtures(t *testing.T) {
	svc := NewService(&fakeAPI{fail: map[string]bool{"scores": true}}, false)
	v, err := svc.Student(context.Background(), "S001")
	require.NoError(t, err)

	assert.Equal(t, "HTTP error! status: 500", v.Scores.Error)
	assert.Empty(t, v.Scores.Source)
	assert.Equal(t, SourceBackend, v.Attendance.Source)
}

func TestFixtureFallbackIsLabelled(t *testing.T) {
	svc := NewService(&fakeAPI{fail: map[string]bool{"scores": true, "all_attendance": true}}, true)
	v, err := svc.Teacher(context.Background(), "T001")
	require.NoError(t, err)

	assert.Equal(t, SourceFixture, v.Scores.Source)
	assert.Empty(t, v.Scores.Error)
	require.Len(t, v.Scores.Data, 2)
	assert.Equal(t, "S001", v.Scores.Data[0].StudentID)
	assert.Equal(t, 85.5, v.Scores.Data[0].Average)

	assert.Equal(t, SourceFixture, v.Attendance.Source)
	assert.Equal(t, SourceBackend, v.Suggestions.Source)
}

func TestTeacherView(t *testing.T) {
	svc := NewService(&fakeAPI{}, false)
	v, err := svc.Teacher(context.Background(), "T001")
	require.NoError(t, err)

	assert.Equal(t, AttendanceSummary{Present: 2, Total: 3, Percent: 66.7}, v.Attendance.Data.Summary)
	assert.Equal(t, []DayBar{{Day: "Mon", Present: 1, Total: 2}, {Day: "Tue", Present: 1, Total: 1}}, v.Attendance.Data.Weekly)
	require.Len(t, v.Scores.Data, 2)
	assert.Equal(t, "S001", v.Scores.Data[0].StudentID)
	assert.Equal(t, BandExcellent, v.Scores.Data[0].Band)
	assert.Equal(t, BandNeedsImprovement, v.Scores.Data[1].Band)
	assert.NotNil(t, v.Timetable.Data)
}

func TestEnterScoresValidation(t *testing.T) {
	api := &fakeAPI{}
	svc := NewService(api, false)

	for _, scores := range []map[string]float64{
		nil,
		{"Math": 101},
		{"Math": -1},
		{" ": 50},
	} {
		_, err := svc.EnterScores(context.Background(), "S001", scores)
		assert.Equal(t, 400, toHTTPStatus(err))
	}
	assert.Nil(t, api.entered)

	r, err := svc.EnterScores(context.Background(), "S001", map[string]float64{" Math ": 100, "Art": 0})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Math": 100, "Art": 0}, api.entered)
	assert.Equal(t, 50.0, r.Average)

	api.fail = map[string]bool{"enter": true}
	_, err = svc.EnterScores(context.Background(), "S001", map[string]float64{"Math": 10})
	assert.Equal(t, 502, toHTTPStatus(err))
}

func newRouter(svc *Service, sess appstate.Session) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		appstate.SetSession(c, sess)
		c.Next()
	})
	RegisterRoutes(r, svc, nil, nil)
	return r
}

func TestHandlers(t *testing.T) {
	svc := NewService(&fakeAPI{}, false)
	teacher := newRouter(svc, appstate.Session{Authenticated: true, Role: appstate.RoleTeacher, UserID: "T001"})

	w := httptest.NewRecorder()
	teacher.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/scores/S001",
		strings.NewReader(`{"student_name":"Rahul Sharma","scores":{"Math":88}}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res EnterScoresResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "Updated scores for Rahul Sharma", res.Notices[0].Message)

	w = httptest.NewRecorder()
	teacher.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/scores/S001", strings.NewReader(`{"scores":{"Math":120}}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	teacher.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scores/S001", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	student := newRouter(svc, appstate.Session{Authenticated: true, Role: appstate.RoleStudent, UserID: "S001"})
	w = httptest.NewRecorder()
	student.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard/student", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var v StudentView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "S001", v.StudentID)
}
