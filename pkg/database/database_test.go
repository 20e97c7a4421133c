package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shorturl-engine/internal/model"
)

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLDSN(Options{User: "root", Password: "secret", Host: "db", Port: 3306, Name: "shorturl"})
	assert.Equal(t, "root:secret@tcp(db:3306)/shorturl?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true", dsn)
}

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shorturl.db")
	db, err := Open(Options{Driver: "sqlite", Path: path}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, db.AutoMigrate(&model.ShortURL{}))
	assert.True(t, db.Migrator().HasTable(&model.ShortURL{}))
	assert.FileExists(t, path)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "oracle"}, zap.NewNop().Sugar())
	assert.Error(t, err)
}
