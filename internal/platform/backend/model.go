package backend

const (
	StatusSuccess       = "success"
	StatusAlreadyMarked = "already_marked"
	StatusError         = "error"
)

// ResponseError: HTTP は 2xx だが status フィールドが失敗を示す応答
type ResponseError struct {
	Status  string
	Message string
}

func (e *ResponseError) Error() string { return e.Message }

// ===== auth =====

type LoginRequest struct {
	StudentID string `json:"student_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Password  string `json:"password"`
}

type LoginResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	StudentID string `json:"student_id,omitempty"`
	Role      string `json:"role,omitempty"`
}

// ===== QR =====

type GenerateQRRequest struct {
	ClassID   int    `json:"class_id"`
	TeacherID string `json:"teacher_id"`
}

type GenerateQRResponse struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	QRCode    string  `json:"qr_code"` // base64 PNG
	QRData    string  `json:"qr_data,omitempty"`
	ExpiresAt float64 `json:"expires_at"` // epoch 秒（小数あり）
	Subject   string  `json:"subject"`
	ClassID   int     `json:"class_id"`
}

type ValidateQRRequest struct {
	QRData    string `json:"qr_data"`
	StudentID string `json:"student_id"`
}

type ValidateQRResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Subject     string `json:"subject,omitempty"`
	ClassID     *int   `json:"class_id,omitempty"`
	MarkedAt    string `json:"marked_at,omitempty"`
	StudentName string `json:"student_name,omitempty"`
}

// Verdict は /qr/validate の応答を3値に畳んだもの
type Verdict int

const (
	VerdictRejected Verdict = iota
	VerdictSuccess
	VerdictAlreadyMarked
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return StatusSuccess
	case VerdictAlreadyMarked:
		return StatusAlreadyMarked
	default:
		return StatusError
	}
}

func (r ValidateQRResponse) Verdict() Verdict {
	switch r.Status {
	case StatusSuccess:
		return VerdictSuccess
	case StatusAlreadyMarked:
		return VerdictAlreadyMarked
	default:
		return VerdictRejected
	}
}

// ===== attendance =====

type MarkAttendanceRequest struct {
	ClassID   int    `json:"class_id"`
	StudentID string `json:"student_id,omitempty"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type AttendanceRecord struct {
	AttendanceID   int     `json:"attendance_id"`
	ClassID        int     `json:"class_id"`
	StudentID      *string `json:"student_id"` // nil は教員の出席行
	Present        bool    `json:"present"`
	TeacherPresent *bool   `json:"teacher_present,omitempty"`
	Subject        string  `json:"subject,omitempty"`
	Date           string  `json:"date,omitempty"`
	Time           string  `json:"time,omitempty"`
}

func (r AttendanceRecord) IsTeacherRow() bool { return r.StudentID == nil }

type AllAttendanceResponse struct {
	Status     string                        `json:"status"`
	Attendance map[string][]AttendanceRecord `json:"attendance"`
}

type StudentAttendanceResponse struct {
	Status  string             `json:"status"`
	Records []AttendanceRecord `json:"records"`
}

// ===== suggestions =====

type Suggestion struct {
	StudentID      string   `json:"student_id"`
	Name           string   `json:"name"`
	TopSuggestions []string `json:"top_suggestions"`
}

type AllSuggestionsResponse struct {
	Status   string       `json:"status"`
	Students []Suggestion `json:"students"`
}

type StudentSuggestionsResponse struct {
	Status         string   `json:"status"`
	TopSuggestions []string `json:"top_suggestions"`
}

// ===== timetable =====

type TimetableEntry struct {
	TimetableID int    `json:"timetable_id"`
	DayOfWeek   string `json:"day_of_week"`
	Subject     string `json:"subject"`
	TeacherID   string `json:"teacher_id"`
	TeacherName string `json:"teacher_name,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type TimetableResponse struct {
	Status    string           `json:"status"`
	Timetable []TimetableEntry `json:"timetable"`
}

// ===== scores =====

type AllScoresResponse struct {
	Status string                        `json:"status"`
	Scores map[string]map[string]float64 `json:"scores"`
}

type StudentScoresResponse struct {
	Status string             `json:"status"`
	Scores map[string]float64 `json:"scores"`
}

type EnterScoresRequest struct {
	StudentID string             `json:"student_id"`
	Scores    map[string]float64 `json:"scores"`
}
