package joblog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/xxljob-executor/pkg/core"
)

var _ core.LogSink = (*Store)(nil)

func TestStore_AppendAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, 7, "starting"))
	require.NoError(t, s.Append(ctx, 7, "step 1\nstep 2\n"))
	require.NoError(t, s.Append(ctx, 8, "other run"))

	frag, err := s.Read(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, frag.FromLineNum)
	assert.Equal(t, 3, frag.ToLineNum)
	assert.Equal(t, "starting\nstep 1\nstep 2\n", frag.LogContent)
	assert.False(t, frag.IsEnd)
}

func TestStore_ReadFromOffset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, l := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Append(ctx, 1, l))
	}

	frag, err := s.Read(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "c\nd\n", frag.LogContent)
	assert.Equal(t, 4, frag.ToLineNum)

	frag, err = s.Read(ctx, 1, 5)
	require.NoError(t, err)
	assert.Empty(t, frag.LogContent)
	assert.Equal(t, 5, frag.FromLineNum)
	assert.Equal(t, 4, frag.ToLineNum)
}

func TestStore_ReadUnknownLog(t *testing.T) {
	s := newTestStore(t)

	frag, err := s.Read(context.Background(), 404, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, frag.FromLineNum)
	assert.Equal(t, 0, frag.ToLineNum)
	assert.Empty(t, frag.LogContent)
}

func TestStore_ReadLimit(t *testing.T) {
	s := newTestStore(t, WithMaxReadLines(2))
	ctx := context.Background()
	for _, l := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(ctx, 1, l))
	}

	frag, err := s.Read(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", frag.LogContent)
	assert.Equal(t, 2, frag.ToLineNum)

	frag, err = s.Read(ctx, 1, frag.ToLineNum+1)
	require.NoError(t, err)
	assert.Equal(t, "c\n", frag.LogContent)
}

func TestStore_TruncatesLongLines(t *testing.T) {
	s := newTestStore(t, WithMaxLineBytes(8))
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, 1, strings.Repeat("x", 20)))

	frag, err := s.Read(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 8)+"\n", frag.LogContent)
}

func TestStore_TruncateKeepsValidUTF8(t *testing.T) {
	s := NewStore(nil, WithMaxLineBytes(4))

	got := s.truncate(1, "ab日本")

	assert.Equal(t, "ab", got)
}

func TestStore_Prune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.db.Create(&Line{LogID: 1, LineNum: 1, Content: "old", CreatedAt: old}).Error)
	require.NoError(t, s.Append(ctx, 2, "fresh"))

	n, err := s.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	frag, err := s.Read(ctx, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, frag.LogContent)

	frag, err = s.Read(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, "fresh\n", frag.LogContent)
}

func TestStore_TriggerContextLog(t *testing.T) {
	s := newTestStore(t)

	tc := core.NewTriggerContext(1, 77)
	tc.Bind(nil, s)
	tc.Log("processed %d rows", 42)

	frag, err := s.Read(context.Background(), 77, 1)
	require.NoError(t, err)
	assert.Equal(t, "processed 42 rows\n", frag.LogContent)
}

func TestOpen_SQLiteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	dsn := PathDSN(dir)
	assert.Equal(t, filepath.Join(dir, DefaultFileName), dsn)

	db, err := Open(dsn)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := NewStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Append(context.Background(), 1, "persisted"))
	assert.FileExists(t, dsn)
}

func TestPathDSN_Empty(t *testing.T) {
	assert.Equal(t, ":memory:", PathDSN(""))
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, IsPostgresDSN("postgres://user@localhost/db"))
	assert.True(t, IsPostgresDSN("postgresql://localhost/db"))
	assert.True(t, IsPostgresDSN("host=localhost user=x dbname=y"))
	assert.True(t, IsPostgresDSN("  dbname=y sslmode=disable"))
	assert.True(t, IsPostgresDSN("host=db password='a b' dbname=y"))
	assert.False(t, IsPostgresDSN("/var/log/xxl/executor-log.db"))
	assert.False(t, IsPostgresDSN("/var/log/host=a/executor-log.db"))
	assert.False(t, IsPostgresDSN("logs/host=primary.db"))
	assert.False(t, IsPostgresDSN("file:executor.db?host=x"))
	assert.False(t, IsPostgresDSN(":memory:"))
	assert.False(t, IsPostgresDSN(""))
}
