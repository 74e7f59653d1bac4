package qrissue

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/platform/notify"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// POST /qr-sessions
	r.POST("/qr-sessions", h.Issue)
	// GET /qr-sessions (発行中の一覧)
	r.GET("/qr-sessions", h.List)
	// GET /qr-sessions/:class_id (残り時間)
	r.GET("/qr-sessions/:class_id", h.Status)
	// GET /qr-sessions/:class_id/image (PNG)
	r.GET("/qr-sessions/:class_id/image", h.Image)
	// POST /qr-sessions/:class_id/refresh
	r.POST("/qr-sessions/:class_id/refresh", h.Refresh)
	// DELETE /qr-sessions/:class_id
	r.DELETE("/qr-sessions/:class_id", h.Discard)
}

type IssueRequest struct {
	ClassID int `json:"class_id" binding:"required,min=1"`
}

type IssueResponse struct {
	ClassID   int             `json:"class_id"`
	Subject   string          `json:"subject"`
	QRData    string          `json:"qr_data"`
	QRCode    string          `json:"qr_code"` // base64 PNG
	ExpiresAt float64         `json:"expires_at"`
	Status    Status          `json:"status"`
	Notices   []notify.Notice `json:"notices"`
}

type errDTO struct {
	Code    Code            `json:"code"`
	Message string          `json:"message"`
	Notices []notify.Notice `json:"notices,omitempty"`
}

func errorFromErr(err error, notices []notify.Notice) errDTO {
	if api, ok := err.(*APIError); ok {
		return errDTO{Code: api.Code, Message: api.Message, Notices: notices}
	}
	return errDTO{Code: CodeInternal, Message: "internal error", Notices: notices}
}

// ---------- handlers ----------

// POST /qr-sessions
func (h *Handler) Issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Code: CodeInvalidArgument, Message: "class_id is required"})
		return
	}
	h.issue(c, req.ClassID, false)
}

// POST /qr-sessions/:class_id/refresh
func (h *Handler) Refresh(c *gin.Context) {
	classID, ok := classIDParam(c)
	if !ok {
		return
	}
	h.issue(c, classID, true)
}

func (h *Handler) issue(c *gin.Context, classID int, refresh bool) {
	sess := appstate.SessionFrom(c)
	rec := notify.NewRecorder(nil)
	ctx := notify.NewContext(c.Request.Context(), rec)

	var (
		res Session
		err error
	)
	if refresh {
		res, err = h.svc.Refresh(ctx, classID, sess.UserID)
	} else {
		res, err = h.svc.Issue(ctx, classID, sess.UserID)
	}
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, rec.Notices()))
		return
	}

	c.Header("Location", "/api/v1/qr-sessions/"+strconv.Itoa(res.ClassID))
	c.JSON(http.StatusCreated, IssueResponse{
		ClassID:   res.ClassID,
		Subject:   res.Subject,
		QRData:    res.Payload,
		QRCode:    base64.StdEncoding.EncodeToString(res.Image),
		ExpiresAt: res.ExpiresAt,
		Status:    res.Status(h.svc.clock.Now(), h.svc.Warn()),
		Notices:   rec.Notices(),
	})
}

// GET /qr-sessions
func (h *Handler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.svc.List()})
}

// GET /qr-sessions/:class_id
func (h *Handler) Status(c *gin.Context) {
	classID, ok := classIDParam(c)
	if !ok {
		return
	}
	st, err := h.svc.Status(classID)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, nil))
		return
	}
	c.JSON(http.StatusOK, st)
}

// GET /qr-sessions/:class_id/image
func (h *Handler) Image(c *gin.Context) {
	classID, ok := classIDParam(c)
	if !ok {
		return
	}
	sess, err := h.svc.Get(classID)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, nil))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", sess.Image)
}

// DELETE /qr-sessions/:class_id
func (h *Handler) Discard(c *gin.Context) {
	classID, ok := classIDParam(c)
	if !ok {
		return
	}
	if err := h.svc.Discard(classID); err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err, nil))
		return
	}
	c.Status(http.StatusNoContent)
}

func classIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("class_id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errDTO{Code: CodeInvalidArgument, Message: "class_id must be a positive integer"})
		return 0, false
	}
	return id, true
}
