package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}

		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}

	return out
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json", "lineclient", zerolog.DebugLevel)

	l.Warn("protocol violation", Conn(3), Peer("GREEN"), Err(errors.New("boom")))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "protocol violation", entries[0]["message"])
	assert.Equal(t, "lineclient", entries[0]["service"])
	assert.Equal(t, float64(3), entries[0]["conn"])
	assert.Equal(t, "GREEN", entries[0]["peer"])
	assert.Equal(t, "boom", entries[0]["error"])
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json", "svc", zerolog.WarnLevel)

	l.Debug("hidden")
	l.Info("hidden")
	l.Error("shown")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["message"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "console", "svc", zerolog.InfoLevel)

	l.Info("connection closed", Conn(1))
	assert.Contains(t, buf.String(), "connection closed")
	assert.Contains(t, buf.String(), "conn=")
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	base := NewZerologLogger(zerolog.New(&buf), "svc", zerolog.InfoLevel)
	derived := base.With(Conn(9))

	derived.Info("derived")
	base.Info("base")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, float64(9), entries[0]["conn"])
	_, ok := entries[1]["conn"]
	assert.False(t, ok, "base logger must not inherit derived fields")
}

type closeCounter struct {
	bytes.Buffer
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestClose(t *testing.T) {
	w := &closeCounter{}
	l := New(w, "json", "svc", zerolog.InfoLevel)

	require.NoError(t, l.With(Conn(1)).Close())
	assert.Equal(t, 0, w.closes)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.Equal(t, 1, w.closes)
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Error("ignored", Err(errors.New("x")))
	assert.NoError(t, l.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"WARN", zerolog.WarnLevel, false},
		{"loud", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
