package bulkload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec("CREATE TABLE staging (id BIGINT, name TEXT)").Error)
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Table("staging").Count(&count).Error)
	return count
}

func TestNewValidatesInputs(t *testing.T) {
	conn := newTestDB(t)

	_, err := New(nil, "staging", []string{"id"}, 0, nil)
	require.Error(t, err)
	_, err = New(conn, "", []string{"id"}, 0, nil)
	require.Error(t, err)
	_, err = New(conn, "staging", nil, 0, nil)
	require.Error(t, err)

	loader, err := New(conn, "staging", []string{"id"}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultChunkSize, loader.chunkSize)
}

func TestAppendRejectsColumnMismatch(t *testing.T) {
	conn := newTestDB(t)
	loader, err := New(conn, "staging", []string{"id", "name"}, 10, nil)
	require.NoError(t, err)

	require.Error(t, loader.Append(context.Background(), int64(1)))
}

func TestAppendFlushesFullChunks(t *testing.T) {
	conn := newTestDB(t)
	loader, err := New(conn, "staging", []string{"id", "name"}, 3, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := int64(1); i <= 7; i++ {
		require.NoError(t, loader.Append(ctx, i, "p"))
	}

	// two full chunks flushed automatically, one row still staged
	require.EqualValues(t, 6, countRows(t, conn))
	require.Equal(t, 6, loader.Total())

	require.NoError(t, loader.Flush(ctx))
	require.EqualValues(t, 7, countRows(t, conn))
	require.Equal(t, 7, loader.Total())
}

func TestFlushOnEmptyBufferIsNoop(t *testing.T) {
	conn := newTestDB(t)
	loader, err := New(conn, "staging", []string{"id", "name"}, 3, nil)
	require.NoError(t, err)

	require.NoError(t, loader.Flush(context.Background()))
	require.EqualValues(t, 0, countRows(t, conn))
}

func TestNilValuesSurviveInsert(t *testing.T) {
	conn := newTestDB(t)
	loader, err := New(conn, "staging", []string{"id", "name"}, 10, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, loader.Append(ctx, int64(1), nil))
	require.NoError(t, loader.Flush(ctx))

	var name *string
	require.NoError(t, conn.Table("staging").Select("name").Where("id = ?", 1).Scan(&name).Error)
	require.Nil(t, name)
}
