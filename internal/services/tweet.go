package services

import (
	"context"
	"time"

	"github.com/dwitter/apiserver/types"
	"github.com/google/uuid"
)

// TweetRepository defines persistence operations for tweets.
type TweetRepository interface {
	List(ctx context.Context, username string) ([]types.Tweet, error)
	Get(ctx context.Context, id int) (types.Tweet, error)
	Create(ctx context.Context, text string, userID int) (types.Tweet, error)
	Update(ctx context.Context, id int, text string) (types.Tweet, error)
	Delete(ctx context.Context, id int) error
}

// EventEmitter accepts events for asynchronous delivery. Emit must not block.
type EventEmitter interface {
	Emit(event types.Event)
}

// TweetService encapsulates tweet use-cases.
type TweetService struct {
	repo   TweetRepository
	events EventEmitter
}

func NewTweetService(repo TweetRepository, events EventEmitter) *TweetService {
	return &TweetService{repo: repo, events: events}
}

func (s *TweetService) List(ctx context.Context, username string) ([]types.Tweet, error) {
	return s.repo.List(ctx, username)
}

func (s *TweetService) Get(ctx context.Context, id int) (types.Tweet, error) {
	return s.repo.Get(ctx, id)
}

// Create stores the tweet and emits a "tweets" event carrying it.
func (s *TweetService) Create(ctx context.Context, text string, userID int) (types.Tweet, error) {
	tweet, err := s.repo.Create(ctx, text, userID)
	if err != nil {
		return types.Tweet{}, err
	}

	if s.events != nil {
		s.events.Emit(types.Event{
			ID:         uuid.NewString(),
			Name:       types.EventTweets,
			OccurredAt: time.Now(),
			Data:       tweet,
		})
	}
	return tweet, nil
}

// Update changes the text of a tweet owned by subjectID.
func (s *TweetService) Update(ctx context.Context, id int, text string, subjectID int) (types.Tweet, error) {
	if _, err := s.authorizeOwner(ctx, id, subjectID); err != nil {
		return types.Tweet{}, err
	}
	return s.repo.Update(ctx, id, text)
}

// Delete removes a tweet owned by subjectID.
func (s *TweetService) Delete(ctx context.Context, id int, subjectID int) error {
	if _, err := s.authorizeOwner(ctx, id, subjectID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// authorizeOwner loads the tweet and fails with store.ErrNotFound or
// ErrForbidden before any mutation is attempted.
func (s *TweetService) authorizeOwner(ctx context.Context, id int, subjectID int) (types.Tweet, error) {
	tweet, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Tweet{}, err
	}
	if tweet.UserID != subjectID {
		return types.Tweet{}, ErrForbidden
	}
	return tweet, nil
}
