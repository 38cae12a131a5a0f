package repository

import (
	"context"
	"testing"
	"time"

	"gemini-chat-go/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 每个连接各有一份 :memory: 库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Message{}))
	return db
}

func contents(messages []model.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Content)
	}
	return out
}

func TestGormSameTimestampKeepsInsertionOrder(t *testing.T) {
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMessageRepositoryWithClock(newSQLiteDB(t), steppingClock(base))
	ctx := context.Background()

	turn := []model.NewMessage{
		{UserID: "u1", Role: model.RoleUser, Content: "cat"},
		{UserID: "u1", Role: model.RoleAssistant, Content: "meow"},
		{UserID: "u1", Role: model.RoleUser, Content: "dog"},
		{UserID: "u1", Role: model.RoleAssistant, Content: "woof"},
	}
	for _, m := range turn {
		_, err := repo.Create(ctx, m)
		require.NoError(t, err)
	}

	listed, err := repo.ListByUser(ctx, "u1", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "meow", "dog", "woof"}, contents(listed))
	assert.Equal(t, model.RoleUser, listed[0].Role)

	found, err := repo.SearchByUser(ctx, "u1", "", 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"woof", "dog", "meow", "cat"}, contents(found))
}

func TestGormListByUserPaginatesAscending(t *testing.T) {
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMessageRepositoryWithClock(newSQLiteDB(t), steppingClock(
		base.Add(2*time.Second), base, base.Add(time.Second), base.Add(3*time.Second), base.Add(4*time.Second),
	))
	ctx := context.Background()
	// created_at 乱序插入，结果仍按 created_at 升序
	for _, c := range []string{"three", "one", "two", "four"} {
		_, err := repo.Create(ctx, model.NewMessage{UserID: "u1", Role: model.RoleUser, Content: c})
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, model.NewMessage{UserID: "other", Role: model.RoleUser, Content: "foreign"})
	require.NoError(t, err)

	tests := []struct {
		name          string
		limit, offset int
		want          []string
	}{
		{"all", 50, 0, []string{"one", "two", "three", "four"}},
		{"first page", 2, 0, []string{"one", "two"}},
		{"second page", 2, 2, []string{"three", "four"}},
		{"middle", 2, 1, []string{"two", "three"}},
		{"past the end", 10, 4, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.ListByUser(ctx, "u1", tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, contents(page))
		})
	}

	created, err := repo.ListByUser(ctx, "u1", 1, 0)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.True(t, created[0].CreatedAt.Equal(base))
}

func TestGormSearchByUser(t *testing.T) {
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	instants := make([]time.Time, 0, 10)
	for i := 0; i < 10; i++ {
		instants = append(instants, base.Add(time.Duration(i)*time.Second))
	}
	repo := NewMessageRepositoryWithClock(newSQLiteDB(t), steppingClock(instants...))
	ctx := context.Background()
	for _, c := range []string{
		"Hello World", "say HELLO", "50% off", "5000 off", "snake_case", "snakeXcase", `C:\dir`, "wow", "wow!",
	} {
		_, err := repo.Create(ctx, model.NewMessage{UserID: "u1", Role: model.RoleUser, Content: c})
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, model.NewMessage{UserID: "other", Role: model.RoleUser, Content: "hello stranger"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{"mixed case newest first", "hello", 20, []string{"say HELLO", "Hello World"}},
		{"limit keeps newest", "HeLLo", 1, []string{"say HELLO"}},
		{"literal percent", "50%", 20, []string{"50% off"}},
		{"literal underscore", "e_c", 20, []string{"snake_case"}},
		{"literal backslash", `:\d`, 20, []string{`C:\dir`}},
		{"literal bang", "w!", 20, []string{"wow!"}},
		{"no match", "absent", 20, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := repo.SearchByUser(ctx, "u1", tt.query, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, contents(found))
		})
	}
}

func TestGormScanAfterVisitsEveryRowOnce(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	for i, u := range []string{"u1", "u2", "u1", "u3", "u2"} {
		_, err := repo.Create(ctx, model.NewMessage{UserID: u, Role: model.RoleUser, Content: string(rune('a' + i))})
		require.NoError(t, err)
	}

	scanner, ok := repo.(MessageScanner)
	require.True(t, ok)

	var seen []string
	after := ""
	for {
		page, err := scanner.ScanAfter(ctx, after, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			assert.Greater(t, m.ID, after)
			seen = append(seen, m.Content)
		}
		after = page[len(page)-1].ID
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}
