package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Output = &buf
	opts.Level = LevelInfo

	log := New(opts).Named("api").WithRequestID("req-1")
	log.Debug("hidden")
	log.Info("xp awarded", UserID("u1"), XPAmount(50), Skill("coding"))
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "xp awarded", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "api", entry["logger"])
	assert.Equal(t, "req-1", entry[RequestIDKey])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, float64(50), entry["xp_amount"])
}

func TestLogger_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campus.log")
	opts := DefaultOptions()
	opts.Output = &bytes.Buffer{}
	opts.FilePath = path

	log := New(opts)
	log.Warn("presence swept", LocationID("library"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "presence swept")
}

func TestContextPropagation(t *testing.T) {
	l := Nop()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
