package attendance

import (
	"sort"

	"EduTrack-web/internal/platform/backend"
)

// Record: バックエンドの出席行を平坦化したもの（一覧・エクスポート用）
type Record struct {
	Key            string `json:"key"` // getattendance/t の集計キー
	AttendanceID   int    `json:"attendance_id"`
	ClassID        int    `json:"class_id"`
	StudentID      string `json:"student_id,omitempty"`
	Teacher        bool   `json:"teacher"`
	Present        bool   `json:"present"`
	TeacherPresent *bool  `json:"teacher_present,omitempty"`
	Subject        string `json:"subject,omitempty"`
	Date           string `json:"date,omitempty"`
	Time           string `json:"time,omitempty"`
}

func fromBackend(key string, r backend.AttendanceRecord) Record {
	out := Record{
		Key:            key,
		AttendanceID:   r.AttendanceID,
		ClassID:        r.ClassID,
		Teacher:        r.IsTeacherRow(),
		Present:        r.Present,
		TeacherPresent: r.TeacherPresent,
		Subject:        r.Subject,
		Date:           r.Date,
		Time:           r.Time,
	}
	if r.StudentID != nil {
		out.StudentID = *r.StudentID
	}
	return out
}

// flatten: キー順 → 日付 → attendance_id の安定した順序
func flatten(m map[string][]backend.AttendanceRecord) []Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Record
	for _, k := range keys {
		for _, r := range m[k] {
			out = append(out, fromBackend(k, r))
		}
	}
	sortRecords(out)
	return out
}

func sortRecords(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Key != rs[j].Key {
			return rs[i].Key < rs[j].Key
		}
		if rs[i].Date != rs[j].Date {
			return rs[i].Date < rs[j].Date
		}
		return rs[i].AttendanceID < rs[j].AttendanceID
	})
}

// StatsRow は学生ごとの出席集計
type StatsRow struct {
	StudentID string  `json:"student_id"`
	Present   int64   `json:"present"`
	Total     int64   `json:"total"`
	Rate      float64 `json:"rate"` // 0-100
}

// Stats: 教員行は除外。出席数の多い順、同数は学生ID順
func Stats(records []Record) []StatsRow {
	idx := map[string]*StatsRow{}
	for _, r := range records {
		if r.Teacher || r.StudentID == "" {
			continue
		}
		row, ok := idx[r.StudentID]
		if !ok {
			row = &StatsRow{StudentID: r.StudentID}
			idx[r.StudentID] = row
		}
		row.Total++
		if r.Present {
			row.Present++
		}
	}

	out := make([]StatsRow, 0, len(idx))
	for _, row := range idx {
		if row.Total > 0 {
			row.Rate = float64(row.Present) * 100 / float64(row.Total)
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Present != out[j].Present {
			return out[i].Present > out[j].Present
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}
