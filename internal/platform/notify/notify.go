// Package notify: 利用者に見せる通知（トースト）を出席処理から表示側へ運ぶ
package notify

import (
	"context"
	"log"
	"sync"
)

type Level string

const (
	LevelInfo        Level = "info"
	LevelWarning     Level = "warning"
	LevelDestructive Level = "destructive"
)

type Notice struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type Notifier interface {
	Notify(n Notice)
}

// Func: 関数をそのまま Notifier として使う
type Func func(n Notice)

func (f Func) Notify(n Notice) { f(n) }

// Discard: 何もしない
var Discard Notifier = Func(func(Notice) {})

// LogNotifier: 通知をログにも残す
type LogNotifier struct{}

func (LogNotifier) Notify(n Notice) {
	switch n.Level {
	case LevelDestructive:
		log.Printf("[WARN] %s: %s", n.Title, n.Message)
	default:
		log.Printf("[INFO] %s: %s", n.Title, n.Message)
	}
}

// Recorder は1リクエスト分の通知を溜め、レスポンスに載せられるようにする
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
	next    Notifier
}

func NewRecorder(next Notifier) *Recorder {
	if next == nil {
		next = Discard
	}
	return &Recorder{next: next}
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
	r.next.Notify(n)
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Multi: nil 以外の全員に配る
type Multi []Notifier

func (m Multi) Notify(n Notice) {
	for _, x := range m {
		if x != nil {
			x.Notify(n)
		}
	}
}

type ctxKey struct{}

// NewContext: リクエスト単位の通知先（普通は Recorder）を ctx に載せる
func NewContext(ctx context.Context, n Notifier) context.Context {
	return context.WithValue(ctx, ctxKey{}, n)
}

// From: base と、ctx に載っている通知先の両方に配る Notifier を返す
func From(ctx context.Context, base Notifier) Notifier {
	n, ok := ctx.Value(ctxKey{}).(Notifier)
	if !ok || n == nil {
		return base
	}
	if base == nil {
		return n
	}
	return Multi{base, n}
}
