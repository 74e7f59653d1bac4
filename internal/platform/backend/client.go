package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout = 10 * time.Second

	EndpointLoginStudent          = "/login/student"
	EndpointGenerateQR            = "/qr/generate"
	EndpointValidateQR            = "/qr/validate"
	EndpointMarkTeacherAttendance = "/attendance/t"
	EndpointMarkStudentAttendance = "/attendance/s"
	EndpointGetAllAttendance      = "/getattendance/t"
	EndpointGetStudentAttendance  = "/getattendance/"
	EndpointGetAllSuggestions     = "/suggestions/a"
	EndpointGetStudentSuggestions = "/suggestions/"
	EndpointGetStudentTimetable   = "/timetable/s/"
	EndpointGetTeacherTimetable   = "/timetable/t/"
	EndpointGetAllScores          = "/scores/t"
	EndpointGetStudentScores      = "/scores/"
	EndpointEnterScores           = "/enterscores"

	maxErrorBody = 4 << 10
)

// HTTPError: 2xx 以外の応答。メッセージはフロントの表示と同じ形式に揃える
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string { return fmt.Sprintf("HTTP error! status: %d", e.StatusCode) }

// Client は外部バックエンド REST API の薄いラッパ（リトライしない）
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[WARN] API call failed for %s: %v", endpoint, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		herr := &HTTPError{StatusCode: resp.StatusCode}
		log.Printf("[WARN] API call failed for %s: %v", endpoint, herr)
		return herr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Printf("[WARN] API call failed for %s: malformed response: %v", endpoint, err)
		return fmt.Errorf("malformed response from %s: %w", endpoint, err)
	}
	return nil
}

func pathID(prefix, id string) string { return prefix + url.PathEscape(id) }

// ---------- auth ----------

func (c *Client) LoginStudent(ctx context.Context, in LoginRequest) (LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, EndpointLoginStudent, in, &out)
	return out, err
}

// ---------- QR ----------

func (c *Client) GenerateQR(ctx context.Context, in GenerateQRRequest) (GenerateQRResponse, error) {
	var out GenerateQRResponse
	if err := c.do(ctx, http.MethodPost, EndpointGenerateQR, in, &out); err != nil {
		return GenerateQRResponse{}, err
	}
	if out.Status != StatusSuccess {
		msg := out.Message
		if msg == "" {
			msg = "Failed to generate QR code"
		}
		return GenerateQRResponse{}, &ResponseError{Status: out.Status, Message: msg}
	}
	return out, nil
}

// ValidateQR: 応答の status はそのまま返す（解釈は呼び出し側の Verdict で行う）
func (c *Client) ValidateQR(ctx context.Context, in ValidateQRRequest) (ValidateQRResponse, error) {
	var out ValidateQRResponse
	err := c.do(ctx, http.MethodPost, EndpointValidateQR, in, &out)
	return out, err
}

// ---------- attendance ----------

func (c *Client) MarkTeacherAttendance(ctx context.Context, classID int) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodPut, EndpointMarkTeacherAttendance, MarkAttendanceRequest{ClassID: classID}, &out)
	return out, err
}

func (c *Client) MarkStudentAttendance(ctx context.Context, classID int, studentID string) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodPut, EndpointMarkStudentAttendance,
		MarkAttendanceRequest{ClassID: classID, StudentID: studentID}, &out)
	return out, err
}

func (c *Client) GetAllAttendance(ctx context.Context) (AllAttendanceResponse, error) {
	var out AllAttendanceResponse
	err := c.do(ctx, http.MethodGet, EndpointGetAllAttendance, nil, &out)
	return out, err
}

func (c *Client) GetStudentAttendance(ctx context.Context, studentID string) (StudentAttendanceResponse, error) {
	var out StudentAttendanceResponse
	err := c.do(ctx, http.MethodGet, pathID(EndpointGetStudentAttendance, studentID), nil, &out)
	return out, err
}

// ---------- suggestions ----------

func (c *Client) GetAllSuggestions(ctx context.Context) (AllSuggestionsResponse, error) {
	var out AllSuggestionsResponse
	err := c.do(ctx, http.MethodGet, EndpointGetAllSuggestions, nil, &out)
	return out, err
}

func (c *Client) GetStudentSuggestions(ctx context.Context, studentID string) (StudentSuggestionsResponse, error) {
	var out StudentSuggestionsResponse
	err := c.do(ctx, http.MethodGet, pathID(EndpointGetStudentSuggestions, studentID), nil, &out)
	return out, err
}

// ---------- timetable ----------

func (c *Client) GetStudentTimetable(ctx context.Context, studentID string) (TimetableResponse, error) {
	var out TimetableResponse
	err := c.do(ctx, http.MethodGet, pathID(EndpointGetStudentTimetable, studentID), nil, &out)
	return out, err
}

func (c *Client) GetTeacherTimetable(ctx context.Context, teacherID string) (TimetableResponse, error) {
	var out TimetableResponse
	err := c.do(ctx, http.MethodGet, pathID(EndpointGetTeacherTimetable, teacherID), nil, &out)
	return out, err
}

// ---------- scores ----------

func (c *Client) GetAllScores(ctx context.Context) (AllScoresResponse, error) {
	var out AllScoresResponse
	err := c.do(ctx, http.MethodGet, EndpointGetAllScores, nil, &out)
	return out, err
}

func (c *Client) GetStudentScores(ctx context.Context, studentID string) (StudentScoresResponse, error) {
	var out StudentScoresResponse
	err := c.do(ctx, http.MethodGet, pathID(EndpointGetStudentScores, studentID), nil, &out)
	return out, err
}

func (c *Client) EnterScores(ctx context.Context, studentID string, scores map[string]float64) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodPut, EndpointEnterScores,
		EnterScoresRequest{StudentID: studentID, Scores: scores}, &out)
	return out, err
}
