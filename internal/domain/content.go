package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Content is the output of a generation step. It is immutable once created.
type Content struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Images    []string  `json:"images"`
	Videos    []string  `json:"videos"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

// NewContent creates validated content with a fresh ID.
func NewContent(title, text string, images, videos, tags []string) (*Content, error) {
	c := &Content{
		ID:        uuid.New(),
		Title:     strings.TrimSpace(title),
		Text:      text,
		Images:    nonNil(images),
		Videos:    nonNil(videos),
		Tags:      nonNil(tags),
		CreatedAt: time.Now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that the content has an identity and something to post.
func (c *Content) Validate() error {
	if c.ID == uuid.Nil {
		return fmt.Errorf("%w: content ID cannot be empty", ErrValidation)
	}
	if strings.TrimSpace(c.Text) == "" && len(c.Images) == 0 && len(c.Videos) == 0 {
		return fmt.Errorf("%w: content has no text or media", ErrValidation)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
