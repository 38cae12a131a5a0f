package repository

import (
	"context"
	"testing"
	"time"

	"gemini-chat-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock returns the queued instants in order, then repeats the last one.
func steppingClock(instants ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := instants[i]
		if i < len(instants)-1 {
			i++
		}
		return t
	}
}

func TestMemoryCreateAssignsIDAndTimestamp(t *testing.T) {
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryMessageRepositoryWithClock(steppingClock(base))

	m, err := repo.Create(context.Background(), model.NewMessage{UserID: "u1", Role: model.RoleUser, Content: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, base, m.CreatedAt)
	assert.Equal(t, model.RoleUser, m.Role)
}

func TestMemoryCreatedAtNeverGoesBackwards(t *testing.T) {
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryMessageRepositoryWithClock(steppingClock(base, base.Add(-time.Minute)))
	ctx := context.Background()

	first, err := repo.Create(ctx, model.NewMessage{UserID: "u1", Role: model.RoleUser, Content: "q"})
	require.NoError(t, err)
	second, err := repo.Create(ctx, model.NewMessage{UserID: "u1", Role: model.RoleAssistant, Content: "a"})
	require.NoError(t, err)

	assert.False(t, second.CreatedAt.Before(first.CreatedAt))
}

func TestMemoryListByUserPaginatesAscending(t *testing.T) {
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryMessageRepositoryWithClock(steppingClock(
		base, base.Add(time.Second), base.Add(2*time.Second), base.Add(3*time.Second),
	))
	ctx := context.Background()
	for _, c := range []string{"one", "two", "three"} {
		_, err := repo.Create(ctx, model.NewMessage{UserID: "u1", Role: model.RoleUser, Content: c})
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, model.NewMessage{UserID: "other", Role: model.RoleUser, Content: "foreign"})
	require.NoError(t, err)

	page, err := repo.ListByUser(ctx, "u1", 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "two", page[0].Content)
	assert.Equal(t, "three", page[1].Content)

	empty, err := repo.ListByUser(ctx, "u1", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemorySearchByUser(t *testing.T) {
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryMessageRepositoryWithClock(steppingClock(
		base, base.Add(time.Second), base.Add(2*time.Second), base.Add(3*time.Second),
	))
	ctx := context.Background()
	for _, c := range []string{"Hello world", "nothing here", "say HELLO", "hello again"} {
		_, err := repo.Create(ctx, model.NewMessage{UserID: "u1", Role: model.RoleUser, Content: c})
		require.NoError(t, err)
	}

	got, err := repo.SearchByUser(ctx, "u1", "hello", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hello again", got[0].Content)
	assert.Equal(t, "say HELLO", got[1].Content)

	none, err := repo.SearchByUser(ctx, "other", "hello", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50!% off`, EscapeLike("50% off"))
	assert.Equal(t, `snake!_case`, EscapeLike("snake_case"))
	assert.Equal(t, `wow!!`, EscapeLike("wow!"))
	assert.Equal(t, `C:\dir`, EscapeLike(`C:\dir`))
}

func TestMemoryTokenRepository(t *testing.T) {
	repo := NewMemoryTokenRepository().(*memoryTokenRepository)
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	revoked, err := repo.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, repo.Revoke(ctx, "tok", time.Hour))
	revoked, err = repo.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, err = repo.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryTokenRepositoryPrunesExpiredOnRevoke(t *testing.T) {
	repo := NewMemoryTokenRepository().(*memoryTokenRepository)
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, repo.Revoke(ctx, "short", time.Minute))
	require.NoError(t, repo.Revoke(ctx, "long", 3*time.Hour))

	now = now.Add(time.Hour)
	require.NoError(t, repo.Revoke(ctx, "fresh", time.Hour))

	assert.Len(t, repo.revoked, 2)
	assert.NotContains(t, repo.revoked, "short")
	assert.Contains(t, repo.revoked, "long")
	assert.Contains(t, repo.revoked, "fresh")
}
