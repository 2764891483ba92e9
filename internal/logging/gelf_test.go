package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var timeZero time.Time

type fakeGelf struct {
	messages []*gelf.Message
}

func (f *fakeGelf) WriteMessage(m *gelf.Message) error {
	f.messages = append(f.messages, m)
	return nil
}

func TestGelfHandler_Message(t *testing.T) {
	w := &fakeGelf{}
	logger := slog.New(NewGelfHandler(w, slog.LevelInfo))

	logger.Warn("write failed", "device", "pto2 (4098:BF05)", "attempt", 3, "reopen", true)

	require.Len(t, w.messages, 1)
	m := w.messages[0]
	assert.Equal(t, "1.1", m.Version)
	assert.Equal(t, "write failed", m.Short)
	assert.Equal(t, int32(4), m.Level)
	assert.Equal(t, "wwbridge", m.Facility)
	assert.NotZero(t, m.TimeUnix)
	assert.Equal(t, "pto2 (4098:BF05)", m.Extra["_device"])
	assert.Equal(t, int64(3), m.Extra["_attempt"])
	assert.Equal(t, true, m.Extra["_reopen"])
}

func TestGelfHandler_FiltersLevel(t *testing.T) {
	w := &fakeGelf{}
	logger := slog.New(NewGelfHandler(w, slog.LevelWarn))

	logger.Info("ignored")
	logger.Error("kept")

	require.Len(t, w.messages, 1)
	assert.Equal(t, int32(3), w.messages[0].Level)
}

func TestGelfHandler_AttrsAndGroups(t *testing.T) {
	w := &fakeGelf{}
	logger := slog.New(NewGelfHandler(w, slog.LevelDebug)).
		With("component", "device").
		WithGroup("report")

	logger.Debug("sent", "command", 4, slog.Group("value", "raw", 255))

	require.Len(t, w.messages, 1)
	extra := w.messages[0].Extra
	assert.Equal(t, "device", extra["_component"])
	assert.Equal(t, int64(4), extra["_report_command"])
	assert.Equal(t, int64(255), extra["_report_value_raw"])
	assert.Equal(t, int32(7), w.messages[0].Level)
}

func TestGelfHandler_Durations(t *testing.T) {
	w := &fakeGelf{}
	h := NewGelfHandler(w, slog.LevelInfo)

	r := slog.NewRecord(timeZero, slog.LevelInfo, "tick", 0)
	r.AddAttrs(slog.Duration("age", 1500*time.Millisecond))
	require.NoError(t, h.Handle(context.Background(), r))

	require.Len(t, w.messages, 1)
	assert.Equal(t, "1.5s", w.messages[0].Extra["_age"])
	assert.NotZero(t, w.messages[0].TimeUnix)
}
