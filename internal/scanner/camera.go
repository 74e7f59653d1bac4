package scanner

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Stream はカメラから得た映像。Close でトラックを解放する
type Stream interface {
	Frame() (image.Image, error)
	Close() error
}

type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// ImageCamera: メモリ上のフレーム列をそのまま映像として流す（アップロードされた画像など）
type ImageCamera struct {
	Frames []image.Image
}

func (c ImageCamera) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.Frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrCameraUnavailable)
	}
	return &sliceStream{frames: c.Frames}, nil
}

type sliceStream struct {
	mu     sync.Mutex
	frames []image.Image
	pos    int
	closed bool
}

func (s *sliceStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// DirCamera: ディレクトリ内の画像ファイルを名前順にフレームとして読む
type DirCamera struct {
	Dir string
}

var frameExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

func (c DirCamera) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(c.Dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", ErrCameraUnavailable, c.Dir)
	}
	sort.Strings(paths)
	return &dirStream{paths: paths}, nil
}

type dirStream struct {
	mu     sync.Mutex
	paths  []string
	pos    int
	closed bool
}

func (s *dirStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if s.pos >= len(s.paths) {
		return nil, io.EOF
	}
	p := s.paths[s.pos]
	s.pos++
	buf, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	img, err := DecodeFrame(buf)
	if err != nil {
		// 壊れたフレームは読み飛ばす
		return nil, ErrNoFrame
	}
	return img, nil
}

func (s *dirStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MaxFramePixels: 展開後の1フレームの画素数の上限
const MaxFramePixels = 4096 * 4096

// DecodeFrame: PNG / JPEG / GIF のバイト列を画像にする。
// 先にヘッダだけ読み、画素数が上限を超えるものは展開せずに ErrFrameTooLarge を返す
func DecodeFrame(buf []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxFramePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}
