package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"EduTrack-web/internal/platform/notify"
)

// DefaultFrameInterval: 画面のリフレッシュ（~60Hz）に合わせた間隔
const DefaultFrameInterval = time.Second / 60

// FrameClock は次のフレームを処理してよい時刻まで待つ
type FrameClock interface {
	Wait(ctx context.Context) error
}

// IntervalClock: 一定間隔で待つ
type IntervalClock time.Duration

func (d IntervalClock) Wait(ctx context.Context) error {
	t := time.NewTimer(time.Duration(d))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Immediate: 待たない（アップロード済みフレームの一括処理やテスト用）
type Immediate struct{}

func (Immediate) Wait(ctx context.Context) error { return ctx.Err() }

type Option func(*Scanner)

// WithPrefix: 期待するQRの接頭辞（例 "CLASS:"）。空なら検証しない
func WithPrefix(p string) Option { return func(s *Scanner) { s.prefix = p } }

func WithDecoder(d Decoder) Option { return func(s *Scanner) { s.decoder = d } }

func WithClock(c FrameClock) Option { return func(s *Scanner) { s.clock = c } }

func WithNotifier(n notify.Notifier) Option { return func(s *Scanner) { s.notifier = n } }

// WithObserver: 状態遷移ごとに呼ばれる
func WithObserver(fn func(from, to State)) Option { return func(s *Scanner) { s.observer = fn } }

// Scanner はカメラ映像からQRを読み取るループ。
// idle → requesting_permission → scanning → (decoded | cancelled | error) → idle
type Scanner struct {
	camera   Camera
	decoder  Decoder
	clock    FrameClock
	prefix   string
	notifier notify.Notifier
	observer func(from, to State)

	mu      sync.Mutex
	state   State
	lastErr error

	running atomic.Bool
	stop    atomic.Bool
	invalid atomic.Int64
}

func New(camera Camera, opts ...Option) *Scanner {
	s := &Scanner{
		camera:   camera,
		clock:    IntervalClock(DefaultFrameInterval),
		notifier: notify.Discard,
		state:    StateIdle,
	}
	for _, o := range opts {
		o(s)
	}
	if s.decoder == nil {
		s.decoder = NewZXingDecoder()
	}
	return s
}

func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scanner) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// InvalidCount: 接頭辞が合わず読み捨てたコードの数
func (s *Scanner) InvalidCount() int64 { return s.invalid.Load() }

// Cancel は協調的な停止要求。次のフレームに進む前に確認される
func (s *Scanner) Cancel() { s.stop.Store(true) }

// Reset: decoded / error から idle に戻す
func (s *Scanner) Reset() {
	if s.running.Load() {
		return
	}
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
	s.transition(StateIdle)
}

func (s *Scanner) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	if s.observer != nil && from != to {
		s.observer(from, to)
	}
}

func (s *Scanner) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.transition(StateError)
}

// Run はQRが読めるか、キャンセル・エラーになるまでフレームを処理する。
// 成功時は接頭辞を除いたペイロードを返す。カメラはどの終了経路でも1回だけ解放される。
func (s *Scanner) Run(ctx context.Context) (string, error) {
	if !s.running.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer s.running.Store(false)
	s.stop.Store(false)

	s.transition(StateRequesting)
	stream, err := s.camera.Open(ctx)
	if err != nil {
		log.Printf("[WARN] Camera access error: %v", err)
		if !errors.Is(err, ErrCameraUnavailable) {
			err = fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
		}
		s.fail(err)
		s.notifier.Notify(notify.Notice{
			Level:   notify.LevelDestructive,
			Title:   "Camera Error",
			Message: "Failed to access camera. Please check permissions.",
		})
		return "", err
	}

	rel := &releaser{stream: stream}
	defer rel.release()

	s.transition(StateScanning)
	for {
		if s.stop.Load() || ctx.Err() != nil {
			rel.release()
			s.transition(StateCancelled)
			s.transition(StateIdle)
			return "", ErrCancelled
		}
		if err := s.clock.Wait(ctx); err != nil {
			continue
		}
		if s.stop.Load() {
			continue
		}

		frame, err := stream.Frame()
		if errors.Is(err, ErrNoFrame) {
			continue
		}
		if err != nil {
			rel.release()
			if errors.Is(err, io.EOF) {
				err = ErrStreamEnded
			} else {
				err = fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
			}
			s.fail(err)
			return "", err
		}

		text, err := s.decoder.Decode(frame)
		if err != nil {
			if !errors.Is(err, ErrNoCode) {
				log.Printf("[WARN] Frame scan error: %v", err)
			}
			continue
		}

		payload, ok := s.match(text)
		if !ok {
			// 接頭辞違いはループを止めない（カメラを向け直せば読める）
			s.invalid.Add(1)
			s.notifier.Notify(notify.Notice{
				Level:   notify.LevelDestructive,
				Title:   "Invalid QR Code",
				Message: "Expected format: " + s.prefix,
			})
			continue
		}

		rel.release()
		s.transition(StateDecoded)
		s.notifier.Notify(notify.Notice{
			Level:   notify.LevelInfo,
			Title:   "QR Code Detected!",
			Message: "Scanned: " + payload,
		})
		return payload, nil
	}
}

func (s *Scanner) match(text string) (string, bool) { return MatchPrefix(s.prefix, text) }

// MatchPrefix は接頭辞を検証して取り除く。prefix が空なら接頭辞は問わない。
// 取り除いた残りが空なら不一致として扱う
func MatchPrefix(prefix, text string) (string, bool) {
	if !strings.HasPrefix(text, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(text, prefix)
	if rest == "" {
		return "", false
	}
	return rest, true
}

type releaser struct {
	once   sync.Once
	stream Stream
}

func (r *releaser) release() {
	r.once.Do(func() {
		if err := r.stream.Close(); err != nil {
			log.Printf("[WARN] failed to stop camera track: %v", err)
		}
	})
}
