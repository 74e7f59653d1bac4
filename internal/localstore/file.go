package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File は全キーを1つの JSON ファイルに保持する。書き込みは一時ファイル経由の rename。
type File struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

func OpenFile(path string) (*File, error) {
	f := &File{path: path, data: make(map[string]string)}
	buf, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("localstore: read %s: %w", path, err)
	}
	if len(buf) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(buf, &f.data); err != nil {
		return nil, fmt.Errorf("localstore: parse %s: %w", path, err)
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.data[key]
	f.data[key] = value
	if err := f.flush(); err != nil {
		restore(f.data, key, prev, had)
		return err
	}
	return nil
}

func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.data[key]
	if !had {
		return nil
	}
	delete(f.data, key)
	if err := f.flush(); err != nil {
		restore(f.data, key, prev, had)
		return err
	}
	return nil
}

func (f *File) Update(_ context.Context, key string, fn UpdateFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.data[key]
	v, err := fn(prev, had)
	if err != nil {
		return err
	}
	f.data[key] = v
	if err := f.flush(); err != nil {
		restore(f.data, key, prev, had)
		return err
	}
	return nil
}

// flush: 呼び出し側で mu を保持していること
func (f *File) flush() error {
	buf, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("localstore: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".localstore-*.json")
	if err != nil {
		return fmt.Errorf("localstore: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("localstore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("localstore: replace %s: %w", f.path, err)
	}
	return nil
}

func restore(m map[string]string, key, prev string, had bool) {
	if had {
		m[key] = prev
		return
	}
	delete(m, key)
}
