package types

import "time"

// Tweet is a short text post owned by a single user.
type Tweet struct {
	// ID is the unique identifier of the tweet.
	ID int `json:"id" db:"id"`

	// Text is the body of the tweet.
	Text string `json:"text" db:"text"`

	// UserID identifies the owner. Only the owner may update or delete the tweet.
	UserID int `json:"user_id" db:"user_id"`

	// Username, Name and URL are read from the owner's profile
	// whenever the tweet is loaded. They are never written through a tweet.
	Username string `json:"username" db:"username"`
	Name     string `json:"name" db:"name"`
	URL      string `json:"url,omitempty" db:"url"`

	// CreatedAt is the timestamp when the tweet was posted.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent edit.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WithAuthor copies the public profile fields of user onto the tweet.
func (t Tweet) WithAuthor(user User) Tweet {
	t.Username = user.Username
	t.Name = user.Name
	t.URL = user.URL
	return t
}
