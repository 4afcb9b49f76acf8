package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dwitter/apiserver/types"
)

const tweetColumns = `
		SELECT t.id, t.text, t.user_id, u.username, u.name, u.url, t.created_at, t.updated_at
		FROM tweets t
		JOIN users u ON u.id = t.user_id`

// TweetRepository handles persistence for tweets.
type TweetRepository struct {
	db *sql.DB
}

func NewTweetRepository(db *sql.DB) *TweetRepository {
	return &TweetRepository{db: db}
}

// List returns tweets newest first. A non-empty username limits the result
// to that author.
func (r *TweetRepository) List(ctx context.Context, username string) ([]types.Tweet, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if username == "" {
		rows, err = r.db.QueryContext(ctx, tweetColumns+`
		ORDER BY t.created_at DESC, t.id DESC`)
	} else {
		rows, err = r.db.QueryContext(ctx, tweetColumns+`
		WHERE u.username = $1
		ORDER BY t.created_at DESC, t.id DESC`, username)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tweets := make([]types.Tweet, 0)
	for rows.Next() {
		var tweet types.Tweet
		if err := rows.Scan(
			&tweet.ID,
			&tweet.Text,
			&tweet.UserID,
			&tweet.Username,
			&tweet.Name,
			&tweet.URL,
			&tweet.CreatedAt,
			&tweet.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tweets = append(tweets, tweet)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tweets, nil
}

func (r *TweetRepository) Get(ctx context.Context, id int) (types.Tweet, error) {
	var tweet types.Tweet
	err := r.db.QueryRowContext(ctx, tweetColumns+`
		WHERE t.id = $1`, id).Scan(
		&tweet.ID,
		&tweet.Text,
		&tweet.UserID,
		&tweet.Username,
		&tweet.Name,
		&tweet.URL,
		&tweet.CreatedAt,
		&tweet.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Tweet{}, ErrNotFound
		}
		return types.Tweet{}, err
	}
	return tweet, nil
}

func (r *TweetRepository) Create(ctx context.Context, text string, userID int) (types.Tweet, error) {
	now := time.Now()

	const query = `
		INSERT INTO tweets (text, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	var id int
	if err := r.db.QueryRowContext(ctx, query, text, userID, now, now).Scan(&id); err != nil {
		return types.Tweet{}, err
	}
	return r.Get(ctx, id)
}

func (r *TweetRepository) Update(ctx context.Context, id int, text string) (types.Tweet, error) {
	const query = `
		UPDATE tweets
		SET text = $1,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, text, time.Now(), id)
	if err != nil {
		return types.Tweet{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Tweet{}, err
	}
	if affected == 0 {
		return types.Tweet{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *TweetRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM tweets WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
