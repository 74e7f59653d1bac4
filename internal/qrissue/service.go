package qrissue

import (
	"context"
	"encoding/base64"
	"log"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"EduTrack-web/internal/platform/backend"
	"EduTrack-web/internal/platform/notify"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Generator: QR発行を担うバックエンド
type Generator interface {
	GenerateQR(ctx context.Context, in backend.GenerateQRRequest) (backend.GenerateQRResponse, error)
}

const (
	DefaultPrefix = "CLASS:"
	DefaultTTL    = 5 * time.Minute
	DefaultWarn   = time.Minute
	ImageSize     = 256
)

type Options struct {
	Prefix string        // 自前描画時のペイロード接頭辞
	TTL    time.Duration // バックエンドが expires_at を返さなかった時の有効期間
	Warn   time.Duration
}

// ===== Service本体 =====

type Service struct {
	gen      Generator
	reg      *Registry
	clock    Clock
	notifier notify.Notifier
	opts     Options
}

func NewService(gen Generator, reg *Registry, n notify.Notifier, opts Options) *Service {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Warn <= 0 {
		opts.Warn = DefaultWarn
	}
	if n == nil {
		n = notify.Discard
	}
	return &Service{gen: gen, reg: reg, clock: realClock{}, notifier: n, opts: opts}
}

// WithClock: テストで時刻を差し替える
func (s *Service) WithClock(c Clock) *Service {
	s.clock = c
	return s
}

func (s *Service) Registry() *Registry { return s.reg }

func (s *Service) Warn() time.Duration { return s.opts.Warn }

// Issue はバックエンドに1回だけ発行を依頼し、同じクラスの既存コードを置き換える
func (s *Service) Issue(ctx context.Context, classID int, teacherID string) (Session, error) {
	if classID <= 0 {
		return Session{}, ErrInvalid("class_id must be > 0")
	}
	if teacherID == "" {
		return Session{}, ErrInvalid("teacher_id is required")
	}

	res, err := s.gen.GenerateQR(ctx, backend.GenerateQRRequest{ClassID: classID, TeacherID: teacherID})
	if err != nil {
		log.Printf("[WARN] QR generation failed for class %d: %v", classID, err)
		notify.From(ctx, s.notifier).Notify(notify.Notice{
			Level:   notify.LevelDestructive,
			Title:   "Generation Failed",
			Message: err.Error(),
		})
		return Session{}, upstream(err)
	}

	now := s.clock.Now()
	sess := Session{
		ClassID:   classID,
		TeacherID: teacherID,
		Subject:   res.Subject,
		IssuedAt:  now.UTC(),
		ExpiresAt: res.ExpiresAt,
		Payload:   res.QRData,
	}
	if sess.Payload == "" {
		sess.Payload = s.opts.Prefix + strconv.Itoa(classID)
	}
	if sess.ExpiresAt <= 0 {
		sess.ExpiresAt = EpochSeconds(now.Add(s.opts.TTL))
	}

	img, err := decodeImage(res.QRCode)
	if err != nil || len(img) == 0 {
		// バックエンドが画像を返さない場合はペイロードから描画
		img, err = qrcode.Encode(sess.Payload, qrcode.Medium, ImageSize)
		if err != nil {
			return Session{}, ErrInternal("failed to render QR image")
		}
	}
	sess.Image = img

	s.reg.Put(sess)
	log.Printf("[INFO] QR code issued: class=%d teacher=%s expires_at=%.0f", classID, teacherID, sess.ExpiresAt)
	notify.From(ctx, s.notifier).Notify(notify.Notice{
		Level:   notify.LevelInfo,
		Title:   "QR Code Generated! 🎯",
		Message: "Students can now scan to mark attendance for " + sess.Subject,
	})
	return sess, nil
}

// Refresh は同じ教員で再発行する
func (s *Service) Refresh(ctx context.Context, classID int, teacherID string) (Session, error) {
	if teacherID == "" {
		if cur, ok := s.reg.Get(classID); ok {
			teacherID = cur.TeacherID
		}
	}
	return s.Issue(ctx, classID, teacherID)
}

func (s *Service) Discard(classID int) error {
	if !s.reg.Delete(classID) {
		return ErrNotFound("no active QR code for class")
	}
	log.Printf("[INFO] QR code discarded: class=%d", classID)
	return nil
}

// Get は有効なコードを返す。期限切れならその場で破棄して NOT_FOUND
func (s *Service) Get(classID int) (Session, error) {
	sess, ok := s.reg.Get(classID)
	if !ok {
		return Session{}, ErrNotFound("no active QR code for class")
	}
	if sess.Countdown().Remaining(s.clock.Now()) == 0 {
		if s.reg.DeleteIfSame(sess) {
			s.notifier.Notify(expiredNotice())
		}
		return Session{}, ErrNotFound("QR code expired")
	}
	return sess, nil
}

// Status: 期限切れでも Expired=true で返す（表示側がタイマーを止めるため）
func (s *Service) Status(classID int) (Status, error) {
	sess, ok := s.reg.Get(classID)
	if !ok {
		return Status{}, ErrNotFound("no active QR code for class")
	}
	st := sess.Status(s.clock.Now(), s.opts.Warn)
	if st.Expired && s.reg.DeleteIfSame(sess) {
		s.notifier.Notify(expiredNotice())
	}
	return st, nil
}

func (s *Service) List() []Status {
	now := s.clock.Now()
	sessions := s.reg.List()
	out := make([]Status, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Status(now, s.opts.Warn))
	}
	return out
}

func decodeImage(b64 string) ([]byte, error) {
	if i := strings.Index(b64, ","); i >= 0 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	if b64 == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(b64)
}
