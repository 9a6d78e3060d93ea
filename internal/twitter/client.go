// Package twitter is a minimal X API v2 client covering what the mention bot
// needs: the authenticated account, its mentions and replies.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/xuegao65/agent-back/internal/apperror"
)

// DefaultBaseURL is the X API v2 root.
const DefaultBaseURL = "https://api.x.com/2"

// Credentials authenticate the client. The bearer token is used for reads;
// the OAuth 1.0a user context signs account lookups and posts.
type Credentials struct {
	BearerToken    string
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// User is an X account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ReferencedTweet links a post to the one it quotes or replies to.
type ReferencedTweet struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Tweet is a post.
type Tweet struct {
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	AuthorID         string            `json:"author_id"`
	ReferencedTweets []ReferencedTweet `json:"referenced_tweets,omitempty"`
}

// IsReply reports whether the post replies to another post.
func (t Tweet) IsReply() bool {
	for _, ref := range t.ReferencedTweets {
		if ref.Type == "replied_to" {
			return true
		}
	}
	return false
}

// Client talks to the X API.
type Client struct {
	baseURL     string
	bearerToken string
	app         *http.Client
	user        *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// New creates a client from credentials.
func New(ctx context.Context, creds Credentials, opts ...Option) *Client {
	config := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	user := config.Client(ctx, oauth1.NewToken(creds.AccessToken, creds.AccessSecret))
	user.Timeout = 30 * time.Second

	c := &Client{
		baseURL:     DefaultBaseURL,
		bearerToken: creds.BearerToken,
		app:         &http.Client{Timeout: 30 * time.Second},
		user:        user,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out struct {
		Data User `json:"data"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if err := c.do(c.user, req, &out); err != nil {
		return nil, err
	}
	if out.Data.ID == "" {
		return nil, apperror.Transport("x users/me", fmt.Errorf("empty account id"))
	}
	return &out.Data, nil
}

// Mentions returns up to max posts mentioning userID, newest first. When
// sinceID is set only newer posts are returned.
func (c *Client) Mentions(ctx context.Context, userID, sinceID string, max int) ([]Tweet, error) {
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(max))
	q.Set("expansions", "author_id,referenced_tweets.id")
	q.Set("tweet.fields", "author_id,id,text,referenced_tweets")
	q.Set("user.fields", "id,username")
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}

	endpoint := fmt.Sprintf("%s/users/%s/mentions?%s", c.baseURL, url.PathEscape(userID), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	var out struct {
		Data []Tweet `json:"data"`
	}
	if err := c.do(c.app, req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Reply posts text as a reply to the given post.
func (c *Client) Reply(ctx context.Context, text, inReplyTo string) (*Tweet, error) {
	payload := map[string]interface{}{
		"text": text,
		"reply": map[string]string{
			"in_reply_to_tweet_id": inReplyTo,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Data Tweet `json:"data"`
	}
	if err := c.do(c.user, req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) do(hc *http.Client, req *http.Request, out interface{}) error {
	service := "x " + req.URL.Path

	resp, err := hc.Do(req)
	if err != nil {
		return apperror.Transport(service, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return apperror.Upstream(service, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return apperror.Transport(service, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
