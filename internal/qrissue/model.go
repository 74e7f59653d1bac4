package qrissue

import (
	"fmt"
	"math"
	"time"
)

// Session はクラスごとに発行中のQRコード
type Session struct {
	ClassID   int       `json:"class_id"`
	TeacherID string    `json:"teacher_id"`
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt float64   `json:"expires_at"` // epoch 秒
	Payload   string    `json:"qr_data"`
	Image     []byte    `json:"-"` // PNG
}

func (s Session) Countdown() Countdown { return Countdown{ExpiresAt: s.ExpiresAt} }

// Countdown はサーバが返した有効期限から残り時間を導く（状態は持たない）
type Countdown struct {
	ExpiresAt float64
}

func EpochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

func FromEpochSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}

// Remaining = max(0, expiry - now)
func (c Countdown) Remaining(now time.Time) time.Duration {
	r := FromEpochSeconds(c.ExpiresAt).Sub(now)
	if r <= 0 {
		return 0
	}
	return r
}

type Status struct {
	ClassID          int     `json:"class_id"`
	Subject          string  `json:"subject,omitempty"`
	ExpiresAt        float64 `json:"expires_at"`
	RemainingSeconds float64 `json:"remaining_seconds"`
	Remaining        string  `json:"remaining"` // m:ss
	Active           bool    `json:"active"`
	Warning          bool    `json:"warning"`
	Expired          bool    `json:"expired"`
}

func (c Countdown) Status(now time.Time, warn time.Duration) Status {
	r := c.Remaining(now)
	return Status{
		ExpiresAt:        c.ExpiresAt,
		RemainingSeconds: r.Seconds(),
		Remaining:        FormatRemaining(r),
		Active:           r > 0,
		Warning:          r > 0 && r < warn,
		Expired:          r == 0,
	}
}

func (s Session) Status(now time.Time, warn time.Duration) Status {
	st := s.Countdown().Status(now, warn)
	st.ClassID = s.ClassID
	st.Subject = s.Subject
	return st
}

// FormatRemaining: 4:05 形式（秒は切り捨て）
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
