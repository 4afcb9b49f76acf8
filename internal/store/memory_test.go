package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dwitter/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	created, err := repo.Create(ctx, types.User{Username: "ellie", Name: "Ellie", PasswordHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, 1, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ellie", byID.Username)

	byName, err := repo.GetByUsername(ctx, "ellie")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = repo.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepository_CreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	_, err := repo.Create(ctx, types.User{Username: "ellie"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, types.User{Username: "ellie"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestMemoryUserRepository_ConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Create(ctx, types.User{Username: "racer"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrDuplicateUsername):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}

func TestMemoryUserRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	user, err := repo.Create(ctx, types.User{Username: "temp"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, user.ID))
	_, err = repo.GetByUsername(ctx, "temp")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, user.ID), ErrNotFound)

	// The name is free again once the user is gone.
	_, err = repo.Create(ctx, types.User{Username: "temp"})
	assert.NoError(t, err)
}

func newMemoryTweetFixture(t *testing.T) (*MemoryUserRepository, *MemoryTweetRepository, types.User, types.User) {
	t.Helper()
	ctx := context.Background()
	users := NewMemoryUserRepository()
	ellie, err := users.Create(ctx, types.User{Username: "ellie", Name: "Ellie", URL: "https://ellie.dev"})
	require.NoError(t, err)
	bob, err := users.Create(ctx, types.User{Username: "bob", Name: "Bob"})
	require.NoError(t, err)
	return users, NewMemoryTweetRepository(users), ellie, bob
}

func TestMemoryTweetRepository_CreateJoinsAuthor(t *testing.T) {
	ctx := context.Background()
	_, tweets, ellie, _ := newMemoryTweetFixture(t)

	tweet, err := tweets.Create(ctx, "hello world", ellie.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", tweet.Text)
	assert.Equal(t, ellie.ID, tweet.UserID)
	assert.Equal(t, "ellie", tweet.Username)
	assert.Equal(t, "Ellie", tweet.Name)
	assert.Equal(t, "https://ellie.dev", tweet.URL)

	_, err = tweets.Create(ctx, "ghost", 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTweetRepository_ListNewestFirstAndFilter(t *testing.T) {
	ctx := context.Background()
	_, tweets, ellie, bob := newMemoryTweetFixture(t)

	first, err := tweets.Create(ctx, "first", ellie.ID)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := tweets.Create(ctx, "second", bob.ID)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	third, err := tweets.Create(ctx, "third", ellie.ID)
	require.NoError(t, err)

	all, err := tweets.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{third.ID, second.ID, first.ID}, []int{all[0].ID, all[1].ID, all[2].ID})

	mine, err := tweets.List(ctx, "ellie")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, tweet := range mine {
		assert.Equal(t, "ellie", tweet.Username)
	}

	none, err := tweets.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryTweetRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	_, tweets, ellie, _ := newMemoryTweetFixture(t)

	tweet, err := tweets.Create(ctx, "draft", ellie.ID)
	require.NoError(t, err)

	updated, err := tweets.Update(ctx, tweet.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Text)
	assert.Equal(t, "ellie", updated.Username)

	require.NoError(t, tweets.Delete(ctx, tweet.ID))
	_, err = tweets.Get(ctx, tweet.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tweets.Update(ctx, tweet.ID, "again")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, tweets.Delete(ctx, tweet.ID), ErrNotFound)
}
