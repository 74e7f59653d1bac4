package attendance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/platform/backend"
	"EduTrack-web/internal/platform/notify"
)

// ===== Error model (qrissue / dashboard と同型) =====
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

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Validator: /qr/validate を叩く相手
type Validator interface {
	ValidateQR(ctx context.Context, in backend.ValidateQRRequest) (backend.ValidateQRResponse, error)
}

// API: 出席まわりで使うバックエンドの全呼び出し
type API interface {
	Validator
	MarkTeacherAttendance(ctx context.Context, classID int) (backend.StatusResponse, error)
	MarkStudentAttendance(ctx context.Context, classID int, studentID string) (backend.StatusResponse, error)
	GetAllAttendance(ctx context.Context) (backend.AllAttendanceResponse, error)
	GetStudentAttendance(ctx context.Context, studentID string) (backend.StudentAttendanceResponse, error)
}

// ===== Submitter =====

// Submitter はデコード済みペイロードを1回だけ検証に出し、結果を履歴に残す（リトライしない）
type Submitter struct {
	api      Validator
	state    *appstate.State
	clock    Clock
	id       IDGen
	notifier notify.Notifier
}

func NewSubmitter(api Validator, state *appstate.State, n notify.Notifier) *Submitter {
	if n == nil {
		n = notify.Discard
	}
	return &Submitter{api: api, state: state, clock: realClock{}, id: ulidGen{}, notifier: n}
}

// Submit は検証結果を3通りに振り分ける。通信エラーも error 結果として履歴に残る。
// 返す error は引数不正か履歴の保存失敗だけ
func (s *Submitter) Submit(ctx context.Context, payload, studentID string) (appstate.ScanResult, error) {
	if payload == "" {
		return appstate.ScanResult{}, ErrInvalid("qr_data is required")
	}
	if studentID == "" {
		return appstate.ScanResult{}, ErrInvalid("student_id is required")
	}

	id, err := s.id.New()
	if err != nil {
		return appstate.ScanResult{}, ErrInternal("failed to generate id")
	}
	now := s.clock.Now().UTC()
	n := notify.From(ctx, s.notifier)

	res, err := s.api.ValidateQR(ctx, backend.ValidateQRRequest{QRData: payload, StudentID: studentID})
	var out appstate.ScanResult
	if err != nil {
		log.Printf("[WARN] QR Validation error: student=%s: %v", studentID, err)
		out = appstate.ScanResult{Status: appstate.ScanStatusError, Message: err.Error()}
		n.Notify(notify.Notice{Level: notify.LevelDestructive, Title: "Scanning Failed", Message: err.Error()})
	} else {
		out = reconcile(res, now)
		n.Notify(noticeFor(res.Verdict(), out))
	}
	out.ID = id
	out.ScannedAt = now

	if _, err := s.state.AppendHistory(ctx, studentID, out); err != nil {
		log.Printf("[ERROR] %v", err)
		return out, ErrInternal("failed to save scan history")
	}
	log.Printf("[INFO] attendance scan: student=%s status=%s", studentID, out.Status)
	return out, nil
}

func reconcile(res backend.ValidateQRResponse, now time.Time) appstate.ScanResult {
	out := appstate.ScanResult{
		Message:     res.Message,
		Subject:     res.Subject,
		ClassID:     res.ClassID,
		StudentName: res.StudentName,
	}
	switch res.Verdict() {
	case backend.VerdictSuccess:
		out.Status = appstate.ScanStatusSuccess
		if out.Message == "" {
			out.Message = "Attendance marked successfully"
		}
		at := parseMarkedAt(res.MarkedAt, now)
		out.MarkedAt = &at
	case backend.VerdictAlreadyMarked:
		out.Status = appstate.ScanStatusAlreadyMarked
		if out.Message == "" {
			out.Message = "Attendance already marked"
		}
	default:
		out.Status = appstate.ScanStatusError
		if out.Message == "" {
			out.Message = "Failed to mark attendance"
		}
	}
	return out
}

func noticeFor(v backend.Verdict, r appstate.ScanResult) notify.Notice {
	switch v {
	case backend.VerdictSuccess:
		return notify.Notice{Level: notify.LevelInfo, Title: "Attendance Marked! ✅", Message: "Present for " + r.Subject + " class"}
	case backend.VerdictAlreadyMarked:
		return notify.Notice{Level: notify.LevelInfo, Title: "Already Present ℹ️", Message: r.Message}
	default:
		return notify.Notice{Level: notify.LevelDestructive, Title: "Attendance Failed", Message: r.Message}
	}
}

var markedAtLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// parseMarkedAt: 読めない時刻はスキャン時刻で代用
func parseMarkedAt(s string, fallback time.Time) time.Time {
	for _, layout := range markedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

// ===== Service本体 =====

type Service struct {
	api     API
	state   *appstate.State
	sub     *Submitter
	capture *Capture
	clock   Clock
}

func NewService(api API, state *appstate.State, n notify.Notifier, prefix string) *Service {
	sub := NewSubmitter(api, state, n)
	return &Service{
		api:     api,
		state:   state,
		sub:     sub,
		capture: NewCapture(sub, prefix, n),
		clock:   realClock{},
	}
}

func (s *Service) Submitter() *Submitter { return s.sub }

func (s *Service) Capture() *Capture { return s.capture }

// GET /attendance/history
func (s *Service) History(ctx context.Context, studentID string) ([]appstate.ScanResult, error) {
	if studentID == "" {
		return nil, ErrInvalid("student_id is required")
	}
	h, err := s.state.History(ctx, studentID)
	if err != nil {
		log.Printf("[ERROR] %v", err)
		return nil, ErrInternal("failed to load scan history")
	}
	return h, nil
}

// DELETE /attendance/history
func (s *Service) ClearHistory(ctx context.Context, studentID string) error {
	if err := s.state.ClearHistory(ctx, studentID); err != nil {
		log.Printf("[ERROR] clear scan history: %v", err)
		return ErrInternal("failed to clear scan history")
	}
	return nil
}

// PUT /attendance/teacher
func (s *Service) MarkTeacher(ctx context.Context, classID int) (MarkResponse, error) {
	if classID <= 0 {
		return MarkResponse{}, ErrInvalid("class_id must be > 0")
	}
	res, err := s.api.MarkTeacherAttendance(ctx, classID)
	if err != nil {
		return MarkResponse{}, upstream(err)
	}
	log.Printf("[INFO] teacher attendance marked: class=%d status=%s", classID, res.Status)
	return MarkResponse{Status: res.Status, Message: res.Message}, nil
}

// PUT /attendance/student
func (s *Service) MarkStudent(ctx context.Context, classID int, studentID string) (MarkResponse, error) {
	if classID <= 0 {
		return MarkResponse{}, ErrInvalid("class_id must be > 0")
	}
	if studentID == "" {
		return MarkResponse{}, ErrInvalid("student_id is required")
	}
	res, err := s.api.MarkStudentAttendance(ctx, classID, studentID)
	if err != nil {
		return MarkResponse{}, upstream(err)
	}
	log.Printf("[INFO] student attendance marked: class=%d student=%s status=%s", classID, studentID, res.Status)
	return MarkResponse{Status: res.Status, Message: res.Message}, nil
}

// Records: 教員は全件、学生は自分の分だけ
func (s *Service) Records(ctx context.Context, sess appstate.Session) ([]Record, error) {
	if sess.Role == appstate.RoleTeacher {
		res, err := s.api.GetAllAttendance(ctx)
		if err != nil {
			return nil, upstream(err)
		}
		return flatten(res.Attendance), nil
	}
	if sess.UserID == "" {
		return nil, ErrInvalid("student_id is required")
	}
	res, err := s.api.GetStudentAttendance(ctx, sess.UserID)
	if err != nil {
		return nil, upstream(err)
	}
	out := make([]Record, 0, len(res.Records))
	for _, r := range res.Records {
		out = append(out, fromBackend(sess.UserID, r))
	}
	sortRecords(out)
	return out, nil
}

// GET /attendance/stats
func (s *Service) Stats(ctx context.Context) ([]StatsRow, error) {
	res, err := s.api.GetAllAttendance(ctx)
	if err != nil {
		return nil, upstream(err)
	}
	return Stats(flatten(res.Attendance)), nil
}

func upstream(err error) error {
	var herr *backend.HTTPError
	if errors.As(err, &herr) {
		return ErrUpstream(herr.Error())
	}
	return ErrUpstream(err.Error())
}
