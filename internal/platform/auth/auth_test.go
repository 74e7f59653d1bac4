package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/platform/backend"
	"EduTrack-web/internal/platform/config"
)

var secret = []byte("0123456789abcdef-test")

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	accounts := NewConfigStore([]config.TeacherAccount{
		{Email: "Tanaka@school.example", TeacherID: "T001", Name: "Tanaka", PasswordHash: string(hash)},
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in backend.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		switch {
		case in.StudentID == "S001" && in.Password == "pw":
			_, _ = w.Write([]byte(`{"status":"success","message":"ok","student_id":"S001"}`))
		case in.StudentID == "S500":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte(`{"status":"error","message":"Invalid credentials"}`))
		}
	}))
	t.Cleanup(srv.Close)

	return NewService(accounts, backend.New(srv.URL, 0), secret, time.Hour)
}

func TestTeacherLogin(t *testing.T) {
	svc := newTestService(t)

	token, sess, err := svc.Login(context.Background(), Credentials{Role: appstate.RoleTeacher, Email: " tanaka@school.example", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, appstate.Session{Authenticated: true, Role: appstate.RoleTeacher, UserID: "T001", Name: "Tanaka"}, sess)

	parsed, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, sess, parsed)

	_, _, err = svc.Login(context.Background(), Credentials{Role: appstate.RoleTeacher, Email: "tanaka@school.example", Password: "wrong"})
	assert.ErrorIs(t, err, ErrAuthFailed)
	_, _, err = svc.Login(context.Background(), Credentials{Role: appstate.RoleTeacher, Email: "nobody@school.example", Password: "s3cret"})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestStudentLoginViaBackend(t *testing.T) {
	svc := newTestService(t)

	token, sess, err := svc.Login(context.Background(), Credentials{Role: appstate.RoleStudent, StudentID: "S001", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, appstate.RoleStudent, sess.Role)
	assert.Equal(t, "S001", sess.UserID)
	assert.NotEmpty(t, token)

	_, _, err = svc.Login(context.Background(), Credentials{Role: appstate.RoleStudent, StudentID: "S001", Password: "nope"})
	assert.ErrorIs(t, err, ErrAuthFailed)

	_, _, err = svc.Login(context.Background(), Credentials{Role: appstate.RoleStudent, StudentID: "S500", Password: "pw"})
	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "HTTP error! status: 500", uerr.Error())

	_, _, err = svc.Login(context.Background(), Credentials{Role: "admin", Password: "pw"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestParseRejectsBadTokens(t *testing.T) {
	svc := newTestService(t)
	svc.clock = fixedClock{time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}

	token, _, err := svc.Login(context.Background(), Credentials{Role: appstate.RoleStudent, StudentID: "S001", Password: "pw"})
	require.NoError(t, err)

	svc.clock = fixedClock{time.Date(2025, 4, 1, 10, 0, 1, 0, time.UTC)}
	_, err = svc.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "S001", "role": "student", "exp": time.Now().Add(time.Hour).Unix()})
	forged, err := other.SignedString([]byte("another-secret-key!!"))
	require.NoError(t, err)
	_, err = svc.Parse(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "S001", "role": "admin", "exp": time.Now().Add(time.Hour).Unix()})
	signed, err := badRole.SignedString(secret)
	require.NoError(t, err)
	_, err = svc.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func newRouter(svc AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, svc, false)
	teacher := r.Group("/t", RequireAuth(svc), RequireRole(appstate.RoleTeacher))
	teacher.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, appstate.SessionFrom(c)) })
	return r
}

func TestLoginHandlerSetsCookie(t *testing.T) {
	r := newRouter(newTestService(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"role":"teacher","email":"tanaka@school.example","password":"s3cret"}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "/teacher-dashboard", res.Redirect)
	require.Len(t, res.Notices, 1)
	assert.Equal(t, "Login Successful! 🎉", res.Notices[0].Title)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// Cookie だけで保護ルートに入れる
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/t/ping", nil)
	req.AddCookie(cookies[0])
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	r.ServeHTTP(w, req)
	var sess appstate.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.True(t, sess.Authenticated)
	assert.Equal(t, "T001", sess.UserID)
}

func TestLoginHandlerErrors(t *testing.T) {
	r := newRouter(newTestService(t))

	for _, tc := range []struct {
		body string
		want int
	}{
		{`{"role":"teacher","password":"x"}`, http.StatusBadRequest},
		{`{"role":"admin","email":"a@b.c","password":"x"}`, http.StatusBadRequest},
		{`{"role":"teacher","email":"tanaka@school.example","password":"bad"}`, http.StatusUnauthorized},
		{`{"role":"student","student_id":"S500","password":"pw"}`, http.StatusBadGateway},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tc.body)))
		assert.Equal(t, tc.want, w.Code, tc.body)
	}
}

func TestRoleGuards(t *testing.T) {
	svc := newTestService(t)
	r := newRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := svc.Login(context.Background(), Credentials{Role: appstate.RoleStudent, StudentID: "S001", Password: "pw"})
	require.NoError(t, err)
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/t/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/t/ping", nil)
	req.Header.Set("Authorization", "Token "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].MaxAge < 0)
}
