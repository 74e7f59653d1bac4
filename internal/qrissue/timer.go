package qrissue

import (
	"context"
	"fmt"
	"log"
	"time"

	"EduTrack-web/internal/platform/notify"
)

const TickInterval = time.Second

// Timer は1秒ごとに発行中のQRの残り時間を再計算し、0になったものを破棄する。
// 残り時間は保存された期限からのみ導くので、再起動しても正しく再計算される。
type Timer struct {
	reg      *Registry
	clock    Clock
	notifier notify.Notifier
	warn     time.Duration
	warned   map[int]float64 // classID -> 警告済みの expires_at（Tick ごとに発行中のものだけ残す）
}

func NewTimer(reg *Registry, clock Clock, n notify.Notifier, warn time.Duration) *Timer {
	if clock == nil {
		clock = realClock{}
	}
	if n == nil {
		n = notify.Discard
	}
	return &Timer{reg: reg, clock: clock, notifier: n, warn: warn, warned: make(map[int]float64)}
}

// Tick: 1回分の再計算。期限切れで破棄したセッションを返す
func (t *Timer) Tick() []Session {
	now := t.clock.Now()
	sessions := t.reg.List()

	// Discard / Get / Status で先に消えたコードの警告済み記録を捨てる
	live := make(map[int]float64, len(sessions))
	for _, s := range sessions {
		live[s.ClassID] = s.ExpiresAt
	}
	for id, exp := range t.warned {
		if cur, ok := live[id]; !ok || cur != exp {
			delete(t.warned, id)
		}
	}

	for _, s := range sessions {
		st := s.Status(now, t.warn)
		if st.Warning && t.warned[s.ClassID] != s.ExpiresAt {
			t.warned[s.ClassID] = s.ExpiresAt
			t.notifier.Notify(notify.Notice{
				Level:   notify.LevelInfo,
				Title:   "QR Code Expiring Soon",
				Message: fmt.Sprintf("Class %d: %s remaining", s.ClassID, st.Remaining),
			})
		}
	}

	expired := t.reg.Sweep(now)
	for _, s := range expired {
		delete(t.warned, s.ClassID)
		log.Printf("[INFO] QR code for class %d expired", s.ClassID)
		t.notifier.Notify(expiredNotice())
	}
	return expired
}

// Run は ctx が終わるまで TickInterval ごとに Tick する
func (t *Timer) Run(ctx context.Context) {
	tk := time.NewTicker(TickInterval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			t.Tick()
		}
	}
}

func expiredNotice() notify.Notice {
	return notify.Notice{
		Level:   notify.LevelDestructive,
		Title:   "QR Code Expired",
		Message: "Please generate a new QR code for attendance",
	}
}
