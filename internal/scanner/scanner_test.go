package scanner

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EduTrack-web/internal/platform/notify"
)

// ---------- fakes ----------

type countingStream struct {
	Stream
	closes *atomic.Int32
}

func (s countingStream) Close() error {
	s.closes.Add(1)
	return s.Stream.Close()
}

type countingCamera struct {
	inner  Camera
	opens  atomic.Int32
	closes atomic.Int32
}

func (c *countingCamera) Open(ctx context.Context) (Stream, error) {
	c.opens.Add(1)
	st, err := c.inner.Open(ctx)
	if err != nil {
		return nil, err
	}
	return countingStream{Stream: st, closes: &c.closes}, nil
}

type failingCamera struct{}

func (failingCamera) Open(context.Context) (Stream, error) {
	return nil, errors.New("NotAllowedError: Permission denied")
}

// endlessStream は常に空フレームを返す（QRが写らない映像）
type endlessStream struct{}

func (endlessStream) Frame() (image.Image, error) { return blank(), nil }
func (endlessStream) Close() error                 { return nil }

type endlessCamera struct{}

func (endlessCamera) Open(context.Context) (Stream, error) { return endlessStream{}, nil }

// scriptDecoder は呼ばれるたびに次の結果を返す。"" は「コード無し」
type scriptDecoder struct {
	script []string
	calls  int
	hook   func(call int)
}

func (d *scriptDecoder) Decode(image.Image) (string, error) {
	d.calls++
	if d.hook != nil {
		d.hook(d.calls)
	}
	if d.calls > len(d.script) || d.script[d.calls-1] == "" {
		return "", ErrNoCode
	}
	return d.script[d.calls-1], nil
}

func blank() image.Image { return image.NewGray(image.Rect(0, 0, 4, 4)) }

func frames(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = blank()
	}
	return out
}

// ---------- tests ----------

func TestRunStripsPrefixAndReleasesOnce(t *testing.T) {
	cam := &countingCamera{inner: ImageCamera{Frames: frames(3)}}
	var transitions []State
	s := New(cam,
		WithPrefix("CLASS:"),
		WithClock(Immediate{}),
		WithDecoder(&scriptDecoder{script: []string{"", "CLASS:abc123"}}),
		WithObserver(func(_, to State) { transitions = append(transitions, to) }),
	)

	payload, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", payload)
	assert.Equal(t, StateDecoded, s.State())
	assert.Equal(t, int32(1), cam.closes.Load())
	assert.Equal(t, []State{StateRequesting, StateScanning, StateDecoded}, transitions)

	s.Reset()
	assert.Equal(t, StateIdle, s.State())
}

func TestPrefixMismatchKeepsScanning(t *testing.T) {
	cam := &countingCamera{inner: ImageCamera{Frames: frames(4)}}
	rec := notify.NewRecorder(nil)
	s := New(cam,
		WithPrefix("CLASS:"),
		WithClock(Immediate{}),
		WithNotifier(rec),
		WithDecoder(&scriptDecoder{script: []string{"ROOM:42", "", "CLASS:7"}}),
	)

	payload, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7", payload)
	assert.Equal(t, int64(1), s.InvalidCount())
	assert.Equal(t, int32(1), cam.closes.Load())

	notices := rec.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, "Invalid QR Code", notices[0].Title)
	assert.Equal(t, "Expected format: CLASS:", notices[0].Message)
	assert.Equal(t, "QR Code Detected!", notices[1].Title)
}

func TestOnlyMismatchedCodesNeverDecode(t *testing.T) {
	cam := &countingCamera{inner: ImageCamera{Frames: frames(3)}}
	s := New(cam,
		WithPrefix("CLASS:"),
		WithClock(Immediate{}),
		WithDecoder(&scriptDecoder{script: []string{"ROOM:1", "ROOM:2", "ROOM:3"}}),
	)

	payload, err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrStreamEnded)
	assert.Empty(t, payload)
	assert.Equal(t, StateError, s.State())
	assert.Equal(t, int64(3), s.InvalidCount())
	assert.Equal(t, int32(1), cam.closes.Load())
}

func TestCameraFailureDoesNotStartLoop(t *testing.T) {
	dec := &scriptDecoder{}
	rec := notify.NewRecorder(nil)
	s := New(failingCamera{}, WithClock(Immediate{}), WithDecoder(dec), WithNotifier(rec))

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrCameraUnavailable)
	assert.Equal(t, StateError, s.State())
	assert.ErrorIs(t, s.Err(), ErrCameraUnavailable)
	assert.Equal(t, 0, dec.calls)
	require.Len(t, rec.Notices(), 1)
	assert.Equal(t, notify.LevelDestructive, rec.Notices()[0].Level)
}

func TestCancelReleasesCamera(t *testing.T) {
	cam := &countingCamera{inner: endlessCamera{}}
	var s *Scanner
	dec := &scriptDecoder{hook: func(call int) {
		if call == 5 {
			s.Cancel()
		}
	}}
	var transitions []State
	s = New(cam, WithClock(Immediate{}), WithDecoder(dec),
		WithObserver(func(_, to State) { transitions = append(transitions, to) }))

	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 5, dec.calls)
	assert.Equal(t, int32(1), cam.closes.Load())
	assert.Equal(t, []State{StateRequesting, StateScanning, StateCancelled, StateIdle}, transitions)
}

func TestContextCancelReleasesCamera(t *testing.T) {
	cam := &countingCamera{inner: endlessCamera{}}
	ctx, cancel := context.WithCancel(context.Background())
	dec := &scriptDecoder{hook: func(call int) {
		if call == 3 {
			cancel()
		}
	}}
	s := New(cam, WithClock(IntervalClock(0)), WithDecoder(dec))

	_, err := s.Run(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, int32(1), cam.closes.Load())
}

func TestRunIsExclusive(t *testing.T) {
	var s *Scanner
	var nested error
	dec := &scriptDecoder{script: []string{"", "CLASS:1"}, hook: func(call int) {
		if call == 1 {
			_, nested = s.Run(context.Background())
		}
	}}
	cam := &countingCamera{inner: ImageCamera{Frames: frames(2)}}
	s = New(cam, WithPrefix("CLASS:"), WithClock(Immediate{}), WithDecoder(dec))

	payload, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", payload)
	assert.ErrorIs(t, nested, ErrBusy)
	assert.Equal(t, int32(1), cam.opens.Load())
}

func qrFrame(t *testing.T, content string) image.Image {
	t.Helper()
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	require.NoError(t, err)
	img, err := DecodeFrame(png)
	require.NoError(t, err)
	return img
}

func TestZXingDecoderReadsRealCode(t *testing.T) {
	d := NewZXingDecoder()

	text, err := d.Decode(qrFrame(t, "CLASS:abc123"))
	require.NoError(t, err)
	assert.Equal(t, "CLASS:abc123", text)

	_, err = d.Decode(image.NewGray(image.Rect(0, 0, 64, 64)))
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestDirCameraEndToEnd(t *testing.T) {
	dir := t.TempDir()
	png, err := qrcode.Encode("CLASS:abc123", qrcode.Medium, 256)
	require.NoError(t, err)
	roomPNG, err := qrcode.Encode("ROOM:9", qrcode.Medium, 256)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001.png"), roomPNG, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0002.txt"), []byte("not a frame"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0003.png"), png, 0o600))

	s := New(DirCamera{Dir: dir}, WithPrefix("CLASS:"), WithClock(Immediate{}))
	payload, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", payload)
	assert.Equal(t, int64(1), s.InvalidCount())
}

func TestDirCameraMissingDir(t *testing.T) {
	s := New(DirCamera{Dir: filepath.Join(t.TempDir(), "none")}, WithClock(Immediate{}))
	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrCameraUnavailable)
}

func TestMatchPrefix(t *testing.T) {
	got, ok := MatchPrefix("CLASS:", "CLASS:abc123")
	assert.True(t, ok)
	assert.Equal(t, "abc123", got)

	_, ok = MatchPrefix("CLASS:", "class:abc123")
	assert.False(t, ok)

	got, ok = MatchPrefix("", "anything")
	assert.True(t, ok)
	assert.Equal(t, "anything", got)

	_, ok = MatchPrefix("CLASS:", "CLASS:")
	assert.False(t, ok)
	_, ok = MatchPrefix("", "")
	assert.False(t, ok)
}

func TestBarePrefixIsInvalid(t *testing.T) {
	cam := &countingCamera{inner: ImageCamera{Frames: frames(2)}}
	rec := notify.NewRecorder(nil)
	s := New(cam,
		WithPrefix("CLASS:"),
		WithClock(Immediate{}),
		WithNotifier(rec),
		WithDecoder(&scriptDecoder{script: []string{"CLASS:", "CLASS:9"}}),
	)

	payload, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9", payload)
	assert.Equal(t, int64(1), s.InvalidCount())
	require.Len(t, rec.Notices(), 2)
	assert.Equal(t, "Invalid QR Code", rec.Notices()[0].Title)
	assert.Equal(t, "QR Code Detected!", rec.Notices()[1].Title)
}

// hugePNG: 1x1 の PNG の IHDR だけを書き換え、ヘッダ上は w x h に見せる
func hugePNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	b := buf.Bytes()
	// signature(8) + length(4) + "IHDR"(4) の後ろが幅・高さ
	binary.BigEndian.PutUint32(b[16:20], w)
	binary.BigEndian.PutUint32(b[20:24], h)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func TestDecodeFrameRejectsHugeDimensions(t *testing.T) {
	_, err := DecodeFrame(hugePNG(t, 12000, 12000))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	img, err := DecodeFrame(hugePNG(t, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, img.Bounds().Dx())
}

func TestZXingDecoderRejectsHugeFrame(t *testing.T) {
	d := NewZXingDecoder()
	_, err := d.Decode(image.NewGray(image.Rect(0, 0, 4097, 4096)))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Nil(t, d.raster)
}
