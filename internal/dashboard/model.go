package dashboard

import (
	"math"
	"sort"
	"time"

	"EduTrack-web/internal/platform/backend"
)

const (
	MaxMarks = 100.0

	SourceBackend = "backend"
	SourceFixture = "fixture"
)

type Band string

const (
	BandExcellent        Band = "excellent"
	BandGood             Band = "good"
	BandAverage          Band = "average"
	BandNeedsImprovement Band = "needs_improvement"
)

// BandFor: 得点率で4段階に分ける
func BandFor(marks, max float64) Band {
	if max <= 0 {
		return BandNeedsImprovement
	}
	pct := marks / max * 100
	switch {
	case pct >= 90:
		return BandExcellent
	case pct >= 75:
		return BandGood
	case pct >= 60:
		return BandAverage
	default:
		return BandNeedsImprovement
	}
}

// Section: ダッシュボードの1区画。取得に失敗しても他の区画は表示する
type Section[T any] struct {
	Data   T      `json:"data"`
	Source string `json:"source,omitempty"`
	Error  string `json:"error,omitempty"`
}

type AttendanceSummary struct {
	Present int     `json:"present"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// Summarize: 学生の出席行だけを数える（教員行は除外）
func Summarize(records []backend.AttendanceRecord) AttendanceSummary {
	var s AttendanceSummary
	for _, r := range records {
		if r.IsTeacherRow() {
			continue
		}
		s.Total++
		if r.Present {
			s.Present++
		}
	}
	if s.Total > 0 {
		s.Percent = round1(float64(s.Present) * 100 / float64(s.Total))
	}
	return s
}

type DayBar struct {
	Day     string `json:"day"`
	Present int    `json:"present"`
	Total   int    `json:"total"`
}

var weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// ByWeekday: 曜日ごとの出席数（グラフ用）。日付が読めない行は飛ばす
func ByWeekday(records []backend.AttendanceRecord) []DayBar {
	idx := map[string]*DayBar{}
	for _, r := range records {
		if r.IsTeacherRow() || r.Date == "" {
			continue
		}
		d, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			continue
		}
		day := d.Weekday().String()[:3]
		bar, ok := idx[day]
		if !ok {
			bar = &DayBar{Day: day}
			idx[day] = bar
		}
		bar.Total++
		if r.Present {
			bar.Present++
		}
	}
	out := make([]DayBar, 0, len(idx))
	for _, d := range weekdays {
		if bar, ok := idx[d]; ok {
			out = append(out, *bar)
		}
	}
	return out
}

type SubjectScore struct {
	Subject string  `json:"subject"`
	Marks   float64 `json:"marks"`
	Band    Band    `json:"band"`
}

type ScoreReport struct {
	Subjects []SubjectScore `json:"subjects"`
	Average  float64        `json:"average"`
	Band     Band           `json:"band"`
}

// Report: 科目名順。科目が無ければ平均0
func Report(scores map[string]float64) ScoreReport {
	out := ScoreReport{Subjects: make([]SubjectScore, 0, len(scores))}
	var total float64
	for subj, m := range scores {
		out.Subjects = append(out.Subjects, SubjectScore{Subject: subj, Marks: m, Band: BandFor(m, MaxMarks)})
		total += m
	}
	sort.Slice(out.Subjects, func(i, j int) bool { return out.Subjects[i].Subject < out.Subjects[j].Subject })
	if len(scores) > 0 {
		out.Average = round1(total / float64(len(scores)))
	}
	out.Band = BandFor(out.Average, MaxMarks)
	return out
}

type StudentScoreRow struct {
	StudentID string `json:"student_id"`
	ScoreReport
}

func ScoreRows(all map[string]map[string]float64) []StudentScoreRow {
	out := make([]StudentScoreRow, 0, len(all))
	for id, scores := range all {
		out = append(out, StudentScoreRow{StudentID: id, ScoreReport: Report(scores)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

type StudentAttendance struct {
	Records []backend.AttendanceRecord `json:"records"`
	Summary AttendanceSummary          `json:"summary"`
}

type TeacherAttendance struct {
	Attendance map[string][]backend.AttendanceRecord `json:"attendance"`
	Summary    AttendanceSummary                     `json:"summary"`
	Weekly     []DayBar                              `json:"weekly"`
}

type StudentView struct {
	StudentID   string                           `json:"student_id"`
	Attendance  Section[StudentAttendance]       `json:"attendance"`
	Timetable   Section[[]backend.TimetableEntry] `json:"timetable"`
	Scores      Section[ScoreReport]             `json:"scores"`
	Suggestions Section[[]string]                `json:"suggestions"`
}

type TeacherView struct {
	TeacherID   string                           `json:"teacher_id"`
	Attendance  Section[TeacherAttendance]       `json:"attendance"`
	Timetable   Section[[]backend.TimetableEntry] `json:"timetable"`
	Scores      Section[[]StudentScoreRow]       `json:"scores"`
	Suggestions Section[[]backend.Suggestion]    `json:"suggestions"`
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
