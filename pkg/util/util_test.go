package util

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("development uses text handler at debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger("development", &buf)
		logger.Debug("hello", "k", "v")
		assert.Contains(t, buf.String(), "msg=hello")
		assert.Contains(t, buf.String(), "k=v")
	})

	t.Run("production uses json handler and skips debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger("production", &buf)
		logger.Debug("hidden")
		assert.Empty(t, buf.String())

		logger.Info("shown")
		assert.Contains(t, buf.String(), `"msg":"shown"`)
		assert.Contains(t, buf.String(), `"service":"taskeasy"`)
	})
}

func TestCron(t *testing.T) {
	require.NoError(t, ValidateCronExpr("0 3 * * *"))
	assert.Error(t, ValidateCronExpr("not a cron"))
	assert.Error(t, ValidateCronExpr("* * * * * *"))

	from := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	next, err := NextCronTime("0 3 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC), next)

	_, err = NextCronTime("bad", from)
	assert.Error(t, err)
}

func TestISOWeek(t *testing.T) {
	t.Run("label", func(t *testing.T) {
		assert.Equal(t, "2026-W42", ISOWeekLabel(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)))
		// Jan 1 2027 is a Friday and belongs to the last week of 2026.
		assert.Equal(t, "2026-W53", ISOWeekLabel(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("parse", func(t *testing.T) {
		start, end, err := ParseISOWeek("2026-W42")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), end)
		assert.Equal(t, time.Monday, start.Weekday())
	})

	t.Run("lowercase accepted", func(t *testing.T) {
		start, _, err := ParseISOWeek("2026-w01")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC), start)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, label := range []string{"", "2026", "2026-W00", "2026-W54", "abcd-W01", "2025-W53"} {
			_, _, err := ParseISOWeek(label)
			assert.Error(t, err, label)
		}
	})
}
