package attendance

import (
	"bytes"
	"errors"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/platform/notify"
	"EduTrack-web/internal/scanner"
)

type Handler struct{ svc *Service }

// RegisterRoutes: student / teacher はロール確認ミドルウェア（nil なら素通し）
func RegisterRoutes(r gin.IRoutes, svc *Service, student, teacher gin.HandlerFunc) {
	h := &Handler{svc: svc}
	student = orPass(student)
	teacher = orPass(teacher)

	// 1. 学生のスキャン
	// POST /attendance/scan (multipart frames / JSON qr_data)
	r.POST("/attendance/scan", student, h.Scan)
	// GET /attendance/history (直近10件、新しい順)
	r.GET("/attendance/history", student, h.History)
	// DELETE /attendance/history
	r.DELETE("/attendance/history", student, h.ClearHistory)

	// 2. 出席記録（ロールで範囲が変わる）
	// GET /attendance/records
	r.GET("/attendance/records", h.Records)

	// 3. 教員用
	// GET /attendance/stats
	r.GET("/attendance/stats", teacher, h.Stats)
	// GET /attendance/export (XLSX)
	r.GET("/attendance/export", teacher, h.Export)
	// PUT /attendance/teacher
	r.PUT("/attendance/teacher", teacher, h.MarkTeacher)
	// PUT /attendance/student
	r.PUT("/attendance/student", teacher, h.MarkStudent)
}

func orPass(mw gin.HandlerFunc) gin.HandlerFunc {
	if mw != nil {
		return mw
	}
	return func(c *gin.Context) { c.Next() }
}

type errDTO struct {
	Code    Code            `json:"code"`
	Message string          `json:"message"`
	Notices []notify.Notice `json:"notices,omitempty"`
}

func errorFromErr(err error, notices []notify.Notice) errDTO {
	var api *APIError
	if errors.As(err, &api) {
		return errDTO{Code: api.Code, Message: api.Message, Notices: notices}
	}
	return errDTO{Code: CodeInternal, Message: "internal error", Notices: notices}
}

// ---------- handlers ----------

// POST /attendance/scan
func (h *Handler) Scan(c *gin.Context) {
	sess := appstate.SessionFrom(c)
	rec := notify.NewRecorder(nil)
	ctx := notify.NewContext(c.Request.Context(), rec)

	var (
		out CaptureResult
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		frames, ferr := readFrames(c)
		if ferr != nil {
			c.JSON(toHTTPStatus(ferr), errorFromErr(ferr, nil))
			return
		}
		out, err = h.svc.Capture().Run(ctx, scanner.ImageCamera{Frames: frames}, sess.UserID)
	} else {
		var req ScanTextRequest
		if berr := c.ShouldBindJSON(&req); berr != nil {
			c.JSON(http.StatusBadRequest, errDTO{Code: CodeInvalidArgument, Message: "qr_data or frames is required"})
			return
		}
		out, err = h.svc.Capture().SubmitText(ctx, req.QRData, sess.UserID)
	}

	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, rec.Notices()))
		return
	}

	history, herr := h.svc.History(c.Request.Context(), sess.UserID)
	if herr != nil {
		history = []appstate.ScanResult{out.Result}
	}
	res := out.Result
	c.JSON(http.StatusOK, ScanResponse{
		Result:       &res,
		History:      history,
		InvalidCount: out.InvalidCount,
		Notices:      rec.Notices(),
	})
}

func readFrames(c *gin.Context) ([]image.Image, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, ErrInvalid("invalid multipart form")
	}
	files := form.File["frames"]
	if len(files) == 0 {
		return nil, ErrInvalid("frames is required")
	}
	if len(files) > MaxFrames {
		return nil, ErrInvalid("too many frames")
	}

	frames := make([]image.Image, 0, len(files))
	for _, fh := range files {
		if fh.Size > MaxFrameBytes {
			return nil, ErrInvalid("frame too large: " + fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, ErrInvalid("cannot read frame: " + fh.Filename)
		}
		var buf bytes.Buffer
		_, err = io.Copy(&buf, io.LimitReader(f, MaxFrameBytes))
		_ = f.Close()
		if err != nil {
			return nil, ErrInvalid("cannot read frame: " + fh.Filename)
		}
		img, err := scanner.DecodeFrame(buf.Bytes())
		if errors.Is(err, scanner.ErrFrameTooLarge) {
			return nil, ErrInvalid("frame too large: " + fh.Filename)
		}
		if err != nil {
			return nil, ErrInvalid("unsupported image: " + fh.Filename)
		}
		frames = append(frames, img)
	}
	return frames, nil
}

// GET /attendance/history
func (h *Handler) History(c *gin.Context) {
	sess := appstate.SessionFrom(c)
	items, err := h.svc.History(c.Request.Context(), sess.UserID)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, nil))
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Items: items, Limit: h.svc.state.HistoryLimit()})
}

// DELETE /attendance/history
func (h *Handler) ClearHistory(c *gin.Context) {
	sess := appstate.SessionFrom(c)
	if err := h.svc.ClearHistory(c.Request.Context(), sess.UserID); err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, nil))
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /attendance/records
func (h *Handler) Records(c *gin.Context) {
	items, err := h.svc.Records(c.Request.Context(), appstate.SessionFrom(c))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, nil))
		return
	}
	if items == nil {
		items = []Record{}
	}
	c.JSON(http.StatusOK, RecordsResponse{Items: items, Total: len(items)})
}

// GET /attendance/stats
func (h *Handler) Stats(c *gin.Context) {
	items, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, nil))
		return
	}
	c.JSON(http.StatusOK, StatsResponse{Items: items})
}

// GET /attendance/export
func (h *Handler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.svc.Export(c.Request.Context(), &buf); err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, nil))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+h.svc.ExportFilename()+`"`)
	c.Data(http.StatusOK, XLSXContentType, buf.Bytes())
}

// PUT /attendance/teacher
func (h *Handler) MarkTeacher(c *gin.Context) {
	var req MarkTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Code: CodeInvalidArgument, Message: "class_id is required"})
		return
	}
	res, err := h.svc.MarkTeacher(c.Request.Context(), req.ClassID)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, nil))
		return
	}
	c.JSON(http.StatusOK, res)
}

// PUT /attendance/student
func (h *Handler) MarkStudent(c *gin.Context) {
	var req MarkStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Code: CodeInvalidArgument, Message: "class_id and student_id are required"})
		return
	}
	res, err := h.svc.MarkStudent(c.Request.Context(), req.ClassID, req.StudentID)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, nil))
		return
	}
	c.JSON(http.StatusOK, res)
}
