package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLogger_WritesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, InitLogger(Options{Level: "info", File: file, MaxSize: 1}))

	Sugar.Debug("不应写入")
	zap.S().Infow("写入文件", "code", "abc123")
	_ = Logger.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "写入文件")
	assert.Contains(t, string(data), "abc123")
	assert.NotContains(t, string(data), "不应写入")
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	assert.Error(t, InitLogger(Options{Level: "loud"}))
}
