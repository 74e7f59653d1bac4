package appstate

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EduTrack-web/internal/localstore"
)

func result(i int) ScanResult {
	return ScanResult{
		ID:        fmt.Sprintf("r%02d", i),
		Status:    ScanStatusSuccess,
		Message:   "Attendance marked",
		ScannedAt: time.Date(2024, 1, 8, 9, i, 0, 0, time.UTC),
	}
}

func TestHistoryCappedMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	st := New(localstore.NewMemory(), 10)

	for i := 1; i <= 13; i++ {
		_, err := st.AppendHistory(ctx, "S001", result(i))
		require.NoError(t, err)
	}

	h, err := st.History(ctx, "S001")
	require.NoError(t, err)
	require.Len(t, h, 10)
	for i, r := range h {
		assert.Equal(t, fmt.Sprintf("r%02d", 13-i), r.ID)
	}
}

func TestHistoryScopedByStudent(t *testing.T) {
	ctx := context.Background()
	st := New(localstore.NewMemory(), 0)
	assert.Equal(t, DefaultHistoryLimit, st.HistoryLimit())

	_, err := st.AppendHistory(ctx, "S001", result(1))
	require.NoError(t, err)

	h, err := st.History(ctx, "S002")
	require.NoError(t, err)
	assert.Empty(t, h)
	assert.NotNil(t, h)
}

func TestHistoryStoredUnderNamespacedKey(t *testing.T) {
	ctx := context.Background()
	mem := localstore.NewMemory()
	st := New(mem, 10)

	_, err := st.AppendHistory(ctx, "S001", result(1))
	require.NoError(t, err)

	raw, ok, err := mem.Get(ctx, "attendance_history_S001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"status":"success"`)

	require.NoError(t, st.ClearHistory(ctx, "S001"))
	_, ok, _ = mem.Get(ctx, "attendance_history_S001")
	assert.False(t, ok)
}

func TestCorruptHistoryTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := localstore.NewMemory()
	require.NoError(t, mem.Set(ctx, HistoryKey("S001"), "{oops"))
	st := New(mem, 10)

	h, err := st.History(ctx, "S001")
	require.NoError(t, err)
	assert.Empty(t, h)

	h, err = st.AppendHistory(ctx, "S001", result(1))
	require.NoError(t, err)
	assert.Len(t, h, 1)
}

func TestSessionAccessors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.False(t, SessionFrom(c).Authenticated)

	SetSession(c, Session{Authenticated: true, Role: RoleStudent, UserID: "S001"})
	s := SessionFrom(c)
	assert.True(t, s.Authenticated)
	assert.Equal(t, RoleStudent, s.Role)
	assert.Equal(t, "S001", s.UserID)

	assert.True(t, RoleTeacher.Valid())
	assert.False(t, Role("admin").Valid())
}
