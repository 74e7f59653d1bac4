package attendance

import (
	"context"
	"io"
	"log"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const (
	recordsSheet = "Sheet1"
	statsSheet   = "Summary"
)

var (
	recordsHeader = []any{"Key", "Attendance ID", "Class ID", "Student ID", "Role", "Present", "Teacher Present", "Subject", "Date", "Time"}
	statsHeader   = []any{"Student ID", "Present", "Total", "Rate (%)"}
)

// ExportFilename: attendance_YYYY-MM-DD.xlsx
func (s *Service) ExportFilename() string {
	return "attendance_" + s.clock.Now().UTC().Format(DateLayout) + ".xlsx"
}

// Export は全出席記録と学生別集計を XLSX にして w に書き出す
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	res, err := s.api.GetAllAttendance(ctx)
	if err != nil {
		return upstream(err)
	}
	records := flatten(res.Attendance)

	f, err := buildWorkbook(records, Stats(records))
	if err != nil {
		log.Printf("[ERROR] build attendance workbook: %v", err)
		return ErrInternal("failed to build workbook")
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("[WARN] close workbook: %v", err)
		}
	}()

	if err := f.Write(w); err != nil {
		log.Printf("[ERROR] write attendance workbook: %v", err)
		return ErrInternal("failed to write workbook")
	}
	log.Printf("[INFO] attendance exported: %d records", len(records))
	return nil
}

func buildWorkbook(records []Record, stats []StatsRow) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := setRow(f, recordsSheet, 1, recordsHeader); err != nil {
		return nil, err
	}
	for i, r := range records {
		role := "student"
		if r.Teacher {
			role = "teacher"
		}
		teacherPresent := ""
		if r.TeacherPresent != nil {
			teacherPresent = strconv.FormatBool(*r.TeacherPresent)
		}
		row := []any{r.Key, r.AttendanceID, r.ClassID, r.StudentID, role, r.Present, teacherPresent, r.Subject, r.Date, r.Time}
		if err := setRow(f, recordsSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(statsSheet); err != nil {
		return nil, err
	}
	if err := setRow(f, statsSheet, 1, statsHeader); err != nil {
		return nil, err
	}
	for i, st := range stats {
		row := []any{st.StudentID, st.Present, st.Total, roundRate(st.Rate)}
		if err := setRow(f, statsSheet, i+2, row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func roundRate(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
