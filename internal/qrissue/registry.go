package qrissue

import (
	"sort"
	"sync"
	"time"
)

// Registry: 発行中のQRをクラスIDで保持する
type Registry struct {
	mu       sync.Mutex
	sessions map[int]Session
}

func NewRegistry() *Registry { return &Registry{sessions: make(map[int]Session)} }

// Put は同じクラスの既存コードを置き換える
func (r *Registry) Put(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ClassID] = s
}

func (r *Registry) Get(classID int) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[classID]
	return s, ok
}

func (r *Registry) Delete(classID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[classID]
	delete(r.sessions, classID)
	return ok
}

// DeleteIfSame: 期限切れ判定の間に再発行されていたら消さない
func (r *Registry) DeleteIfSame(s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[s.ClassID]
	if !ok || cur.ExpiresAt != s.ExpiresAt || cur.Payload != s.Payload {
		return false
	}
	delete(r.sessions, s.ClassID)
	return true
}

// List: クラスID順
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassID < out[j].ClassID })
	return out
}

// Sweep は now 時点で期限切れのコードを取り除いて返す
func (r *Registry) Sweep(now time.Time) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []Session
	for id, s := range r.sessions {
		if s.Countdown().Remaining(now) == 0 {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ClassID < expired[j].ClassID })
	return expired
}
