package monitoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogStoreLevels(t *testing.T) {
	l := NewLogStore(16, nil)

	l.Debug("d", nil)
	l.Info("i", nil)
	l.Warn("w", nil)
	l.Error("e", nil)

	assert.Equal(t, 4, l.Len())

	all := l.Recent(LevelDebug, time.Time{}, 0)
	require.Len(t, all, 4)
	assert.Equal(t, LevelDebug, all[0].Level)
	assert.Equal(t, LevelError, all[3].Level)

	warnsAndUp := l.Recent(LevelWarn, time.Time{}, 0)
	require.Len(t, warnsAndUp, 2)
	assert.Equal(t, "w", warnsAndUp[0].Message)
	assert.Equal(t, "e", warnsAndUp[1].Message)
}

func TestLogStoreRecentSinceAndLimit(t *testing.T) {
	l := NewLogStore(16, nil)

	l.Info("old", nil)
	cut := time.Now()
	time.Sleep(5 * time.Millisecond)
	l.Info("new-1", nil)
	l.Info("new-2", nil)

	since := l.Recent(LevelDebug, cut, 0)
	require.Len(t, since, 2)
	assert.Equal(t, "new-1", since[0].Message)

	// Limit keeps the newest records.
	limited := l.Recent(LevelDebug, time.Time{}, 2)
	require.Len(t, limited, 2)
	assert.Equal(t, "new-1", limited[0].Message)
	assert.Equal(t, "new-2", limited[1].Message)
}

func TestLogStoreRecentErrors(t *testing.T) {
	l := NewLogStore(16, nil)

	for i := 0; i < 5; i++ {
		l.Error(fmt.Sprintf("err-%d", i), nil)
		l.Info(fmt.Sprintf("info-%d", i), nil)
	}

	errs := l.RecentErrors(3)
	require.Len(t, errs, 3)
	assert.Equal(t, "err-2", errs[0].Message)
	assert.Equal(t, "err-4", errs[2].Message)
	for _, rec := range errs {
		assert.Equal(t, LevelError, rec.Level)
	}
}

func TestLogStoreCapacityDropsOldest(t *testing.T) {
	l := NewLogStore(3, nil)

	for i := 0; i < 5; i++ {
		l.Info(fmt.Sprintf("msg-%d", i), nil)
	}

	assert.Equal(t, 3, l.Len())

	all := l.Recent(LevelDebug, time.Time{}, 0)
	require.Len(t, all, 3)
	assert.Equal(t, "msg-2", all[0].Message)
	assert.Equal(t, "msg-4", all[2].Message)
}

func TestLogStoreForwardsToZap(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	l := NewLogStore(16, zap.New(core))

	l.Warn("upstream flapping", map[string]interface{}{"mirror": "a", "failures": 3})

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "upstream flapping", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "a", fields["mirror"])
	assert.EqualValues(t, 3, fields["failures"])
}

func TestLogStoreRecordFields(t *testing.T) {
	l := NewLogStore(16, nil)

	l.Error("boom", map[string]interface{}{"requestID": "req_1"})

	recs := l.RecentErrors(1)
	require.Len(t, recs, 1)
	assert.Equal(t, "boom", recs[0].Message)
	assert.Equal(t, "req_1", recs[0].Fields["requestID"])
	assert.False(t, recs[0].At.IsZero())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "unknown", Level(42).String())
}
