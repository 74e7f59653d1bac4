package scanner

import "errors"

type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting_permission"
	StateScanning   State = "scanning"
	StateDecoded    State = "decoded"
	StateCancelled  State = "cancelled"
	StateError      State = "error"
)

var (
	ErrCameraUnavailable = errors.New("Failed to access camera. Please allow camera permissions.")
	ErrStreamEnded       = errors.New("camera stream ended before a QR code was found")
	ErrCancelled         = errors.New("scanning cancelled")
	ErrBusy              = errors.New("scanner is already running")
	ErrFrameTooLarge     = errors.New("frame too large")

	// ErrNoCode: このフレームにはQRコードが無い（ループは継続）
	ErrNoCode = errors.New("no QR code in frame")
	// ErrNoFrame: まだフレームが用意できていない（ループは継続）
	ErrNoFrame = errors.New("no frame available yet")
)
