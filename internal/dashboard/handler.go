package dashboard

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/platform/notify"
)

type Handler struct{ svc *Service }

// RegisterRoutes: student / teacher はロール確認ミドルウェア（nil なら素通し）
func RegisterRoutes(r gin.IRoutes, svc *Service, student, teacher gin.HandlerFunc) {
	h := &Handler{svc: svc}
	student = orPass(student)
	teacher = orPass(teacher)

	// GET /dashboard/student
	r.GET("/dashboard/student", student, h.Student)
	// GET /dashboard/teacher
	r.GET("/dashboard/teacher", teacher, h.Teacher)
	// GET /scores/:student_id
	r.GET("/scores/:student_id", teacher, h.StudentScores)
	// PUT /scores/:student_id
	r.PUT("/scores/:student_id", teacher, h.EnterScores)
}

func orPass(mw gin.HandlerFunc) gin.HandlerFunc {
	if mw != nil {
		return mw
	}
	return func(c *gin.Context) { c.Next() }
}

type errDTO struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func errorFromErr(err error) errDTO {
	var api *APIError
	if errors.As(err, &api) {
		return errDTO{Code: api.Code, Message: api.Message}
	}
	return errDTO{Code: CodeInternal, Message: "internal error"}
}

type EnterScoresRequest struct {
	StudentName string             `json:"student_name"`
	Scores      map[string]float64 `json:"scores" binding:"required"`
}

type EnterScoresResponse struct {
	StudentID string          `json:"student_id"`
	Report    ScoreReport     `json:"report"`
	Notices   []notify.Notice `json:"notices"`
}

// ---------- handlers ----------

func (h *Handler) Student(c *gin.Context) {
	sess := appstate.SessionFrom(c)
	v, err := h.svc.Student(c.Request.Context(), sess.UserID)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) Teacher(c *gin.Context) {
	sess := appstate.SessionFrom(c)
	v, err := h.svc.Teacher(c.Request.Context(), sess.UserID)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) StudentScores(c *gin.Context) {
	res, err := h.svc.StudentScores(c.Request.Context(), c.Param("student_id"))
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) EnterScores(c *gin.Context) {
	var req EnterScoresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errDTO{Code: CodeInvalidArgument, Message: "scores is required"})
		return
	}
	studentID := c.Param("student_id")
	res, err := h.svc.EnterScores(c.Request.Context(), studentID, req.Scores)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}

	who := req.StudentName
	if who == "" {
		who = studentID
	}
	c.JSON(http.StatusOK, EnterScoresResponse{
		StudentID: studentID,
		Report:    res,
		Notices: []notify.Notice{{
			Level:   notify.LevelInfo,
			Title:   "Scores Updated Successfully",
			Message: "Updated scores for " + who,
		}},
	})
}
