package attendance

import (
	"context"
	"errors"
	"log"

	"EduTrack-web/internal/appstate"
	"EduTrack-web/internal/platform/notify"
	"EduTrack-web/internal/scanner"
)

// Capture はスキャナのデコードループと Submitter をつなぐ
type Capture struct {
	sub      *Submitter
	prefix   string
	notifier notify.Notifier
	clock    scanner.FrameClock
	decoder  func() scanner.Decoder
}

type CaptureResult struct {
	Payload      string
	Result       appstate.ScanResult
	InvalidCount int64
}

func NewCapture(sub *Submitter, prefix string, n notify.Notifier) *Capture {
	if n == nil {
		n = notify.Discard
	}
	return &Capture{
		sub:      sub,
		prefix:   prefix,
		notifier: n,
		clock:    scanner.Immediate{},
		decoder:  func() scanner.Decoder { return scanner.NewZXingDecoder() },
	}
}

// Run はカメラから有効なQRが読めるまで走らせ、読めたら1回だけ送信する。
// カメラ失敗・キャンセル・有効なコード無しの場合は送信も履歴追加もしない
func (c *Capture) Run(ctx context.Context, cam scanner.Camera, studentID string) (CaptureResult, error) {
	if studentID == "" {
		return CaptureResult{}, ErrInvalid("student_id is required")
	}
	sc := scanner.New(cam,
		scanner.WithPrefix(c.prefix),
		scanner.WithClock(c.clock),
		scanner.WithDecoder(c.decoder()),
		scanner.WithNotifier(notify.From(ctx, c.notifier)),
	)

	payload, err := sc.Run(ctx)
	out := CaptureResult{Payload: payload, InvalidCount: sc.InvalidCount()}
	if err != nil {
		log.Printf("[WARN] scan aborted: student=%s state=%s: %v", studentID, sc.State(), err)
		switch {
		case errors.Is(err, scanner.ErrStreamEnded):
			return out, ErrInvalid("no valid QR code found (expected format: " + c.prefix + ")")
		case errors.Is(err, scanner.ErrCameraUnavailable):
			return out, ErrInvalid(scanner.ErrCameraUnavailable.Error())
		case errors.Is(err, scanner.ErrBusy):
			return out, ErrInvalid("scanner is busy")
		default:
			return out, ErrInternal("scan cancelled")
		}
	}

	res, err := c.sub.Submit(ctx, payload, studentID)
	out.Result = res
	return out, err
}

// SubmitText: 端末側でデコード済みの文字列を同じ接頭辞ルールで受け付ける
func (c *Capture) SubmitText(ctx context.Context, text, studentID string) (CaptureResult, error) {
	payload, ok := scanner.MatchPrefix(c.prefix, text)
	if !ok {
		notify.From(ctx, c.notifier).Notify(notify.Notice{
			Level:   notify.LevelDestructive,
			Title:   "Invalid QR Code",
			Message: "Expected format: " + c.prefix,
		})
		return CaptureResult{InvalidCount: 1}, ErrInvalid("invalid QR code (expected format: " + c.prefix + ")")
	}
	res, err := c.sub.Submit(ctx, payload, studentID)
	return CaptureResult{Payload: payload, Result: res}, err
}
