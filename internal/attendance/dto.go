package attendance

import (
	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/platform/notify"
)

const (
	DateLayout = "2006-01-02"

	MaxFrames     = 30
	MaxFrameBytes = 8 << 20

	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// POST /attendance/scan (JSON)。qr_data はカメラ側で読んだ生の文字列
type ScanTextRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

type ScanResponse struct {
	Result       *appstate.ScanResult  `json:"result,omitempty"`
	History      []appstate.ScanResult `json:"history"`
	InvalidCount int64                 `json:"invalid_count"`
	Notices      []notify.Notice       `json:"notices"`
}

type HistoryResponse struct {
	Items []appstate.ScanResult `json:"items"`
	Limit int                   `json:"limit"`
}

type MarkTeacherRequest struct {
	ClassID int `json:"class_id" binding:"required,min=1"`
}

type MarkStudentRequest struct {
	ClassID   int    `json:"class_id" binding:"required,min=1"`
	StudentID string `json:"student_id" binding:"required"`
}

type MarkResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type RecordsResponse struct {
	Items []Record `json:"items"`
	Total int      `json:"total"`
}

type StatsResponse struct {
	Items []StatsRow `json:"items"`
}
