package appstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"EduTrack-web/internal/localstore"
)

const (
	HistoryKeyPrefix    = "attendance_history_"
	DefaultHistoryLimit = 10
)

func HistoryKey(studentID string) string { return HistoryKeyPrefix + studentID }

// State はダッシュボード全体で共有する状態。保存先は localstore に委ねる
type State struct {
	store        localstore.Store
	historyLimit int
}

func New(store localstore.Store, historyLimit int) *State {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &State{store: store, historyLimit: historyLimit}
}

func (s *State) HistoryLimit() int { return s.historyLimit }

// History: 新しい順。壊れた保存値は空として扱う
func (s *State) History(ctx context.Context, studentID string) ([]ScanResult, error) {
	raw, ok, err := s.store.Get(ctx, HistoryKey(studentID))
	if err != nil {
		return nil, fmt.Errorf("load scan history: %w", err)
	}
	if !ok {
		return []ScanResult{}, nil
	}
	return decodeHistory(studentID, raw), nil
}

// AppendHistory: 先頭に追加し、上限件数で切り詰める。更新後の履歴を返す
func (s *State) AppendHistory(ctx context.Context, studentID string, r ScanResult) ([]ScanResult, error) {
	var out []ScanResult
	err := s.store.Update(ctx, HistoryKey(studentID), func(old string, ok bool) (string, error) {
		var prev []ScanResult
		if ok {
			prev = decodeHistory(studentID, old)
		}
		keep := prev
		if len(keep) > s.historyLimit-1 {
			keep = keep[:s.historyLimit-1]
		}
		next := make([]ScanResult, 0, len(keep)+1)
		next = append(next, r)
		next = append(next, keep...)

		buf, err := json.Marshal(next)
		if err != nil {
			return "", err
		}
		out = next
		return string(buf), nil
	})
	if err != nil {
		return nil, fmt.Errorf("save scan history: %w", err)
	}
	return out, nil
}

func (s *State) ClearHistory(ctx context.Context, studentID string) error {
	return s.store.Remove(ctx, HistoryKey(studentID))
}

func decodeHistory(studentID, raw string) []ScanResult {
	var h []ScanResult
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		log.Printf("[WARN] Failed to load scan history for %s: %v", studentID, err)
		return []ScanResult{}
	}
	return h
}
