package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dwitter/apiserver/types"
)

// MemoryUserRepository keeps users in process memory. It is safe for
// concurrent use; Create checks and inserts under one lock.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	nextID     int
	users      map[int]types.User
	byUsername map[string]int
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:      make(map[int]types.User),
		byUsername: make(map[string]int),
	}
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return r.users[id], nil
}

func (r *MemoryUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[user.Username]; taken {
		return types.User{}, ErrDuplicateUsername
	}

	r.nextID++
	now := time.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now

	r.users[user.ID] = user
	r.byUsername[user.Username] = user.ID
	return user, nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	delete(r.byUsername, user.Username)
	return nil
}

// UserLookup resolves tweet authors.
type UserLookup interface {
	GetByID(ctx context.Context, id int) (types.User, error)
}

// MemoryTweetRepository keeps tweets in process memory and joins the author
// profile from users on every read.
type MemoryTweetRepository struct {
	mu     sync.RWMutex
	nextID int
	tweets map[int]types.Tweet
	users  UserLookup
}

func NewMemoryTweetRepository(users UserLookup) *MemoryTweetRepository {
	return &MemoryTweetRepository{
		tweets: make(map[int]types.Tweet),
		users:  users,
	}
}

func (r *MemoryTweetRepository) List(ctx context.Context, username string) ([]types.Tweet, error) {
	r.mu.RLock()
	snapshot := make([]types.Tweet, 0, len(r.tweets))
	for _, tweet := range r.tweets {
		snapshot = append(snapshot, tweet)
	}
	r.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].CreatedAt.Equal(snapshot[j].CreatedAt) {
			return snapshot[i].ID > snapshot[j].ID
		}
		return snapshot[i].CreatedAt.After(snapshot[j].CreatedAt)
	})

	tweets := make([]types.Tweet, 0, len(snapshot))
	for _, tweet := range snapshot {
		joined, err := r.withAuthor(ctx, tweet)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if username != "" && joined.Username != username {
			continue
		}
		tweets = append(tweets, joined)
	}
	return tweets, nil
}

func (r *MemoryTweetRepository) Get(ctx context.Context, id int) (types.Tweet, error) {
	r.mu.RLock()
	tweet, ok := r.tweets[id]
	r.mu.RUnlock()
	if !ok {
		return types.Tweet{}, ErrNotFound
	}
	return r.withAuthor(ctx, tweet)
}

func (r *MemoryTweetRepository) Create(ctx context.Context, text string, userID int) (types.Tweet, error) {
	if _, err := r.users.GetByID(ctx, userID); err != nil {
		return types.Tweet{}, err
	}

	r.mu.Lock()
	r.nextID++
	now := time.Now()
	tweet := types.Tweet{
		ID:        r.nextID,
		Text:      text,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tweets[tweet.ID] = tweet
	r.mu.Unlock()

	return r.withAuthor(ctx, tweet)
}

func (r *MemoryTweetRepository) Update(ctx context.Context, id int, text string) (types.Tweet, error) {
	r.mu.Lock()
	tweet, ok := r.tweets[id]
	if !ok {
		r.mu.Unlock()
		return types.Tweet{}, ErrNotFound
	}
	tweet.Text = text
	tweet.UpdatedAt = time.Now()
	r.tweets[id] = tweet
	r.mu.Unlock()

	return r.withAuthor(ctx, tweet)
}

func (r *MemoryTweetRepository) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tweets[id]; !ok {
		return ErrNotFound
	}
	delete(r.tweets, id)
	return nil
}

func (r *MemoryTweetRepository) withAuthor(ctx context.Context, tweet types.Tweet) (types.Tweet, error) {
	user, err := r.users.GetByID(ctx, tweet.UserID)
	if err != nil {
		return types.Tweet{}, err
	}
	return tweet.WithAuthor(user), nil
}
