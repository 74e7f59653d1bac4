package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/platform/backend"
)

const DefaultSessionTTL = 24 * time.Hour

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrAuthFailed     = errors.New("authentication failed")
	ErrInvalidToken   = errors.New("invalid token")
)

// UpstreamError: 学生ログインでバックエンドに届かなかった
type UpstreamError struct{ Err error }

func (e *UpstreamError) Error() string { return e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// StudentLogin: 学生の認証はバックエンドに委ねる
type StudentLogin interface {
	LoginStudent(ctx context.Context, in backend.LoginRequest) (backend.LoginResponse, error)
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Credentials struct {
	Role      appstate.Role
	Email     string
	StudentID string
	Password  string
}

type AuthService interface {
	Login(ctx context.Context, in Credentials) (string, appstate.Session, error)
	Parse(token string) (appstate.Session, error)
	TTL() time.Duration
}

type Service struct {
	accounts AccountStore
	students StudentLogin
	secret   []byte
	ttl      time.Duration
	clock    Clock
}

func NewService(accounts AccountStore, students StudentLogin, secret []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{accounts: accounts, students: students, secret: secret, ttl: ttl, clock: realClock{}}
}

func (s *Service) TTL() time.Duration { return s.ttl }

func (s *Service) Login(ctx context.Context, in Credentials) (string, appstate.Session, error) {
	if in.Password == "" || !in.Role.Valid() {
		return "", appstate.Session{}, ErrInvalidRequest
	}

	var (
		sess appstate.Session
		err  error
	)
	switch in.Role {
	case appstate.RoleTeacher:
		sess, err = s.loginTeacher(ctx, in)
	default:
		sess, err = s.loginStudent(ctx, in)
	}
	if err != nil {
		return "", appstate.Session{}, err
	}

	token, err := s.sign(sess)
	if err != nil {
		return "", appstate.Session{}, err
	}
	log.Printf("[INFO] login: role=%s user=%s", sess.Role, sess.UserID)
	return token, sess, nil
}

func (s *Service) loginTeacher(ctx context.Context, in Credentials) (appstate.Session, error) {
	if in.Email == "" {
		return appstate.Session{}, ErrInvalidRequest
	}
	acct, err := s.accounts.GetByEmail(ctx, in.Email)
	if err != nil {
		return appstate.Session{}, err
	}
	if acct == nil {
		return appstate.Session{}, ErrAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(in.Password)); err != nil {
		return appstate.Session{}, ErrAuthFailed
	}
	return appstate.Session{Authenticated: true, Role: appstate.RoleTeacher, UserID: acct.ID, Name: acct.Name}, nil
}

func (s *Service) loginStudent(ctx context.Context, in Credentials) (appstate.Session, error) {
	if in.StudentID == "" {
		return appstate.Session{}, ErrInvalidRequest
	}
	res, err := s.students.LoginStudent(ctx, backend.LoginRequest{StudentID: in.StudentID, Password: in.Password})
	if err != nil {
		var herr *backend.HTTPError
		if errors.As(err, &herr) && (herr.StatusCode == 401 || herr.StatusCode == 403) {
			return appstate.Session{}, ErrAuthFailed
		}
		return appstate.Session{}, &UpstreamError{Err: err}
	}
	if res.Status != backend.StatusSuccess {
		return appstate.Session{}, ErrAuthFailed
	}
	id := res.StudentID
	if id == "" {
		id = in.StudentID
	}
	return appstate.Session{Authenticated: true, Role: appstate.RoleStudent, UserID: id}, nil
}

func (s *Service) sign(sess appstate.Session) (string, error) {
	now := s.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sess.UserID,
		"role": string(sess.Role),
		"name": sess.Name,
		"iat":  now.Unix(),
		"exp":  now.Add(s.ttl).Unix(),
	})
	return token.SignedString(s.secret)
}

// Parse はトークンを検証してセッションに戻す
func (s *Service) Parse(tokenStr string) (appstate.Session, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		// alg 固定（none攻撃とか回避）
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil || token == nil || !token.Valid {
		return appstate.Session{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return appstate.Session{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return appstate.Session{}, ErrInvalidToken
	}
	roleStr, _ := claims["role"].(string)
	role := appstate.Role(roleStr)
	if !role.Valid() {
		return appstate.Session{}, ErrInvalidToken
	}
	name, _ := claims["name"].(string)
	return appstate.Session{Authenticated: true, Role: role, UserID: sub, Name: name}, nil
}
