package dashboard

import (
	"sort"

	"EduTrack-web/internal/platform/backend"
)

// デモ用の固定データ。dashboard.fixture_fallback が true の時だけ使う

func fixtureTimetable() []backend.TimetableEntry {
	return []backend.TimetableEntry{
		{TimetableID: 1, DayOfWeek: "Mon", Subject: "Mathematics", TeacherID: "T001", StartTime: "09:00:00", EndTime: "10:00:00"},
		{TimetableID: 2, DayOfWeek: "Mon", Subject: "Physics", TeacherID: "T002", StartTime: "10:15:00", EndTime: "11:15:00"},
		{TimetableID: 3, DayOfWeek: "Mon", Subject: "Chemistry", TeacherID: "T003", StartTime: "12:30:00", EndTime: "13:30:00"},
		{TimetableID: 4, DayOfWeek: "Mon", Subject: "Literature", TeacherID: "T004", StartTime: "14:00:00", EndTime: "15:00:00"},
	}
}

func fixtureScores() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"S001": {"Mathematics": 88, "Science": 92, "English": 79, "History": 83},
		"S002": {"Mathematics": 76, "Science": 81, "English": 74, "History": 82},
	}
}

func fixtureAttendance() map[string][]backend.AttendanceRecord {
	s1, s2 := "S001", "S002"
	yes := true
	return map[string][]backend.AttendanceRecord{
		"1": {
			{AttendanceID: 1, ClassID: 1, StudentID: &s1, Present: true, Subject: "Mathematics", Date: "2024-01-08", Time: "09:15:00"},
			{AttendanceID: 2, ClassID: 1, StudentID: &s2, Present: true, Subject: "Mathematics", Date: "2024-01-08", Time: "09:12:00"},
			{AttendanceID: 3, ClassID: 1, Present: true, TeacherPresent: &yes, Subject: "Mathematics", Date: "2024-01-08"},
		},
		"2": {
			{AttendanceID: 4, ClassID: 2, StudentID: &s1, Present: false, Subject: "Physics", Date: "2024-01-09"},
			{AttendanceID: 5, ClassID: 2, StudentID: &s2, Present: true, Subject: "Physics", Date: "2024-01-09", Time: "10:18:00"},
		},
	}
}

func fixtureSuggestions() []backend.Suggestion {
	return []backend.Suggestion{
		{StudentID: "S001", Name: "Rahul Sharma", TopSuggestions: []string{"Review Physics Chapter 3", "Complete Math Problem Set", "Join Study Group"}},
		{StudentID: "S002", Name: "Priya Patel", TopSuggestions: []string{"Complete Math Problem Set", "Meditation Break", "Join Study Group"}},
	}
}

func fixtureStudentAttendance(studentID string) []backend.AttendanceRecord {
	var out []backend.AttendanceRecord
	for _, rows := range fixtureAttendance() {
		for _, r := range rows {
			if r.StudentID != nil && *r.StudentID == studentID {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttendanceID < out[j].AttendanceID })
	return out
}

func fixtureStudentSuggestions(studentID string) []string {
	for _, s := range fixtureSuggestions() {
		if s.StudentID == studentID {
			return s.TopSuggestions
		}
	}
	return []string{}
}
