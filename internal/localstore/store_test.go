package localstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EduTrack-web/internal/platform/config"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	f, err := OpenFile(filepath.Join(t.TempDir(), "nested", "store.json"))
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemory(),
		"file":   f,
	}
}

func TestStoreBasics(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "userRole")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "userRole", "teacher"))
			v, ok, err := s.Get(ctx, "userRole")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "teacher", v)

			require.NoError(t, s.Remove(ctx, "userRole"))
			_, ok, _ = s.Get(ctx, "userRole")
			assert.False(t, ok)

			// 無いキーの削除はエラーにしない
			assert.NoError(t, s.Remove(ctx, "userRole"))
		})
	}
}

func TestStoreUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const n = 50
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Update(ctx, "counter", func(old string, ok bool) (string, error) {
						c := 0
						if ok {
							c, _ = strconv.Atoi(old)
						}
						return strconv.Itoa(c + 1), nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			v, _, err := s.Get(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(n), v)
		})
	}
}

func TestStoreUpdateErrorKeepsValue(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "k", "v1"))
			err := s.Update(ctx, "k", func(string, bool) (string, error) { return "", boom })
			assert.ErrorIs(t, err, boom)
			v, _, _ := s.Get(ctx, "k")
			assert.Equal(t, "v1", v)
		})
	}
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "store.json")

	f1, err := OpenFile(p)
	require.NoError(t, err)
	require.NoError(t, f1.Set(ctx, "attendance_history_S001", `[{"status":"success"}]`))

	f2, err := OpenFile(p)
	require.NoError(t, err)
	v, ok, err := f2.Get(ctx, "attendance_history_S001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"status":"success"}]`, v)
}

func TestOpenFileRejectsCorruptFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o600))
	_, err := OpenFile(p)
	assert.Error(t, err)
}

func TestOpenByDriver(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := Open(ctx, config.StorageConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
	assert.NoError(t, closeFn())

	s, _, err = Open(ctx, config.StorageConfig{Driver: "file", FilePath: filepath.Join(t.TempDir(), "s.json")})
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	_, _, err = Open(ctx, config.StorageConfig{Driver: "etcd"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}
