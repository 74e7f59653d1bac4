package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"EduTrack-web/internal/platform/backend"
)

// ===== Error model (attendance / qrissue と同型) =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUpstream        Code = "UPSTREAM"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrUpstream(msg string) *APIError { return &APIError{Code: CodeUpstream, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeUpstream:
			return 502
		default:
			return 500
		}
	}
	return 500
}

// API: ダッシュボードが読むバックエンド
type API interface {
	GetAllAttendance(ctx context.Context) (backend.AllAttendanceResponse, error)
	GetStudentAttendance(ctx context.Context, studentID string) (backend.StudentAttendanceResponse, error)
	GetStudentTimetable(ctx context.Context, studentID string) (backend.TimetableResponse, error)
	GetTeacherTimetable(ctx context.Context, teacherID string) (backend.TimetableResponse, error)
	GetAllScores(ctx context.Context) (backend.AllScoresResponse, error)
	GetStudentScores(ctx context.Context, studentID string) (backend.StudentScoresResponse, error)
	GetAllSuggestions(ctx context.Context) (backend.AllSuggestionsResponse, error)
	GetStudentSuggestions(ctx context.Context, studentID string) (backend.StudentSuggestionsResponse, error)
	EnterScores(ctx context.Context, studentID string, scores map[string]float64) (backend.StatusResponse, error)
}

// 1画面あたりの同時リクエスト数
const maxParallel = 4

type Service struct {
	api      API
	fixtures bool
}

// NewService: fixtures=true なら取得失敗した区画をデモデータで埋める
func NewService(api API, fixtures bool) *Service {
	return &Service{api: api, fixtures: fixtures}
}

// load は1区画を取得する。失敗は区画の Error に入れ、画面全体は失敗させない
func load[T any](ctx context.Context, s *Service, name string, fetch func(context.Context) (T, error), fixture func() T) Section[T] {
	v, err := fetch(ctx)
	if err == nil {
		return Section[T]{Data: v, Source: SourceBackend}
	}
	log.Printf("[WARN] dashboard %s: %v", name, err)
	if s.fixtures && fixture != nil {
		return Section[T]{Data: fixture(), Source: SourceFixture}
	}
	return Section[T]{Error: err.Error()}
}

// GET /dashboard/student
func (s *Service) Student(ctx context.Context, studentID string) (StudentView, error) {
	if studentID == "" {
		return StudentView{}, ErrInvalid("student_id is required")
	}
	v := StudentView{StudentID: studentID}

	var g errgroup.Group
	g.SetLimit(maxParallel)
	g.Go(func() error {
		v.Attendance = load(ctx, s, "attendance",
			func(ctx context.Context) (StudentAttendance, error) {
				res, err := s.api.GetStudentAttendance(ctx, studentID)
				if err != nil {
					return StudentAttendance{}, err
				}
				return studentAttendance(res.Records), nil
			},
			func() StudentAttendance { return studentAttendance(fixtureStudentAttendance(studentID)) })
		return nil
	})
	g.Go(func() error {
		v.Timetable = load(ctx, s, "timetable",
			func(ctx context.Context) ([]backend.TimetableEntry, error) {
				res, err := s.api.GetStudentTimetable(ctx, studentID)
				return orEmpty(res.Timetable), err
			}, fixtureTimetable)
		return nil
	})
	g.Go(func() error {
		v.Scores = load(ctx, s, "scores",
			func(ctx context.Context) (ScoreReport, error) {
				res, err := s.api.GetStudentScores(ctx, studentID)
				if err != nil {
					return ScoreReport{}, err
				}
				return Report(res.Scores), nil
			},
			func() ScoreReport { return Report(fixtureScores()[studentID]) })
		return nil
	})
	g.Go(func() error {
		v.Suggestions = load(ctx, s, "suggestions",
			func(ctx context.Context) ([]string, error) {
				res, err := s.api.GetStudentSuggestions(ctx, studentID)
				return orEmpty(res.TopSuggestions), err
			},
			func() []string { return fixtureStudentSuggestions(studentID) })
		return nil
	})
	_ = g.Wait()
	return v, nil
}

// GET /dashboard/teacher
func (s *Service) Teacher(ctx context.Context, teacherID string) (TeacherView, error) {
	if teacherID == "" {
		return TeacherView{}, ErrInvalid("teacher_id is required")
	}
	v := TeacherView{TeacherID: teacherID}

	var g errgroup.Group
	g.SetLimit(maxParallel)
	g.Go(func() error {
		v.Attendance = load(ctx, s, "attendance",
			func(ctx context.Context) (TeacherAttendance, error) {
				res, err := s.api.GetAllAttendance(ctx)
				if err != nil {
					return TeacherAttendance{}, err
				}
				return teacherAttendance(res.Attendance), nil
			},
			func() TeacherAttendance { return teacherAttendance(fixtureAttendance()) })
		return nil
	})
	g.Go(func() error {
		v.Timetable = load(ctx, s, "timetable",
			func(ctx context.Context) ([]backend.TimetableEntry, error) {
				res, err := s.api.GetTeacherTimetable(ctx, teacherID)
				return orEmpty(res.Timetable), err
			}, fixtureTimetable)
		return nil
	})
	g.Go(func() error {
		v.Scores = load(ctx, s, "scores",
			func(ctx context.Context) ([]StudentScoreRow, error) {
				res, err := s.api.GetAllScores(ctx)
				if err != nil {
					return nil, err
				}
				return ScoreRows(res.Scores), nil
			},
			func() []StudentScoreRow { return ScoreRows(fixtureScores()) })
		return nil
	})
	g.Go(func() error {
		v.Suggestions = load(ctx, s, "suggestions",
			func(ctx context.Context) ([]backend.Suggestion, error) {
				res, err := s.api.GetAllSuggestions(ctx)
				return orEmpty(res.Students), err
			}, fixtureSuggestions)
		return nil
	})
	_ = g.Wait()
	return v, nil
}

// GET /scores/:student_id（教員の編集画面用）
func (s *Service) StudentScores(ctx context.Context, studentID string) (ScoreReport, error) {
	if studentID == "" {
		return ScoreReport{}, ErrInvalid("student_id is required")
	}
	res, err := s.api.GetStudentScores(ctx, studentID)
	if err != nil {
		return ScoreReport{}, upstream(err)
	}
	return Report(res.Scores), nil
}

// PUT /scores/:student_id
func (s *Service) EnterScores(ctx context.Context, studentID string, scores map[string]float64) (ScoreReport, error) {
	if studentID == "" {
		return ScoreReport{}, ErrInvalid("student_id is required")
	}
	if len(scores) == 0 {
		return ScoreReport{}, ErrInvalid("scores is required")
	}
	clean := make(map[string]float64, len(scores))
	for subj, m := range scores {
		subj = strings.TrimSpace(subj)
		if subj == "" {
			return ScoreReport{}, ErrInvalid("subject must not be empty")
		}
		if m < 0 || m > MaxMarks {
			return ScoreReport{}, ErrInvalid(fmt.Sprintf("marks for %s must be between 0 and %.0f", subj, MaxMarks))
		}
		clean[subj] = m
	}

	res, err := s.api.EnterScores(ctx, studentID, clean)
	if err != nil {
		return ScoreReport{}, upstream(err)
	}
	if res.Status != "" && res.Status != backend.StatusSuccess {
		msg := res.Message
		if msg == "" {
			msg = "failed to update scores"
		}
		return ScoreReport{}, ErrUpstream(msg)
	}
	log.Printf("[INFO] scores updated: student=%s subjects=%d", studentID, len(clean))
	return Report(clean), nil
}

func studentAttendance(records []backend.AttendanceRecord) StudentAttendance {
	return StudentAttendance{Records: orEmpty(records), Summary: Summarize(records)}
}

func teacherAttendance(m map[string][]backend.AttendanceRecord) TeacherAttendance {
	var all []backend.AttendanceRecord
	for _, rows := range m {
		all = append(all, rows...)
	}
	if m == nil {
		m = map[string][]backend.AttendanceRecord{}
	}
	return TeacherAttendance{Attendance: m, Summary: Summarize(all), Weekly: ByWeekday(all)}
}

func orEmpty[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}

func upstream(err error) error {
	var herr *backend.HTTPError
	if errors.As(err, &herr) {
		return ErrUpstream(herr.Error())
	}
	return ErrUpstream(err.Error())
}
