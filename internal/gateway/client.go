// Package gateway implements the HTTP client for the remote data gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/plumeapp/plume/internal/config"
	"github.com/plumeapp/plume/internal/model"
	"github.com/plumeapp/plume/internal/ops"
)

// Client talks JSON over HTTP to the remote data gateway
type Client struct {
	baseURL  string
	token    string
	pageSize int
	http     *http.Client
	logger   *ops.Logger
}

// New creates a gateway client from config
func New(cfg *config.Gateway, logger *ops.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		pageSize: cfg.PageSize,
		http: &http.Client{
			Timeout: cfg.Timeout(),
		},
		logger: logger.WithComponent("gateway"),
	}
}

// HasSession reports whether an authenticated session token is present
func (c *Client) HasSession() bool {
	return c.token != ""
}

// SetToken replaces the session token (login/logout boundary)
func (c *Client) SetToken(token string) {
	c.token = token
}

// serverError is the error descriptor shape the gateway returns
type serverError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do issues one request and decodes the response into out (if non-nil)
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	start := time.Now()
	err := c.doOnce(ctx, op, method, path, body, out)
	c.logger.LogGatewayRequest(op, time.Since(start), err)
	return err
}

func (c *Client) doOnce(ctx context.Context, op, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and unreachable hosts land here
		return &Error{Kind: ErrKindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var se serverError
		_ = json.NewDecoder(resp.Body).Decode(&se)

		kind := ErrKindServer
		switch {
		case resp.StatusCode == http.StatusNotFound:
			kind = ErrKindNotFound
		case resp.StatusCode == http.StatusTooManyRequests:
			kind = ErrKindRateLimited
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			kind = ErrKindValidation
		}

		return &Error{
			Kind:    kind,
			Op:      op,
			Status:  resp.StatusCode,
			Message: se.Error.Message,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// FetchCurrentUser returns the authenticated user's profile
func (c *Client) FetchCurrentUser(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, "fetch_current_user", http.MethodGet, "/v1/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FetchNotifications returns the user's notification list
func (c *Client) FetchNotifications(ctx context.Context) ([]model.Notification, error) {
	var out struct {
		Notifications []model.Notification `json:"notifications"`
	}
	if err := c.do(ctx, "fetch_notifications", http.MethodGet, "/v1/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

// FetchStories returns the current ephemeral stories
func (c *Client) FetchStories(ctx context.Context) ([]model.Story, error) {
	var out struct {
		Stories []model.Story `json:"stories"`
	}
	if err := c.do(ctx, "fetch_stories", http.MethodGet, "/v1/stories", nil, &out); err != nil {
		return nil, err
	}
	return out.Stories, nil
}

// postsPage is one page of the feed, newest first
type postsPage struct {
	Posts   []model.Post `json:"posts"`
	HasMore bool         `json:"has_more"`
	LastID  string       `json:"last_id,omitempty"`
}

// FetchPosts returns the full feed, walking the page cursor until exhausted
func (c *Client) FetchPosts(ctx context.Context) ([]model.Post, error) {
	var all []model.Post
	cursor := ""

	for {
		path := fmt.Sprintf("/v1/posts?limit=%d", c.pageSize)
		if cursor != "" {
			path += "&before=" + url.QueryEscape(cursor)
		}

		var page postsPage
		if err := c.do(ctx, "fetch_posts", http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Posts...)
		if !page.HasMore || page.LastID == "" {
			return all, nil
		}
		cursor = page.LastID
	}
}

// FetchConversations returns all conversations with nested message history
func (c *Client) FetchConversations(ctx context.Context) ([]model.Conversation, error) {
	var out struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, "fetch_conversations", http.MethodGet, "/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// CreatePost publishes a new post and returns the server's copy
func (c *Client) CreatePost(ctx context.Context, content string) (*model.Post, error) {
	var post model.Post
	body := map[string]string{"content": content}
	if err := c.do(ctx, "create_post", http.MethodPost, "/v1/posts", body, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// EditPost replaces a post's content and returns the updated copy
func (c *Client) EditPost(ctx context.Context, postID, content string) (*model.Post, error) {
	var post model.Post
	body := map[string]string{"content": content}
	path := "/v1/posts/" + url.PathEscape(postID)
	if err := c.do(ctx, "edit_post", http.MethodPut, path, body, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes a post
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	path := "/v1/posts/" + url.PathEscape(postID)
	return c.do(ctx, "delete_post", http.MethodDelete, path, nil, nil)
}

// React records a reaction of the given kind on a post
func (c *Client) React(ctx context.Context, postID, kind string) error {
	body := map[string]string{"kind": kind}
	path := "/v1/posts/" + url.PathEscape(postID) + "/reactions"
	return c.do(ctx, "react", http.MethodPost, path, body, nil)
}

// Reply publishes a reply under a post and returns the server's copy
func (c *Client) Reply(ctx context.Context, postID, content string) (*model.Post, error) {
	var post model.Post
	body := map[string]string{"content": content}
	path := "/v1/posts/" + url.PathEscape(postID) + "/replies"
	if err := c.do(ctx, "reply", http.MethodPost, path, body, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// Vote records a poll vote on a post
func (c *Client) Vote(ctx context.Context, postID string, option int) error {
	body := map[string]int{"option": option}
	path := "/v1/posts/" + url.PathEscape(postID) + "/votes"
	return c.do(ctx, "vote", http.MethodPost, path, body, nil)
}

// Follow subscribes the current user to another user's posts
func (c *Client) Follow(ctx context.Context, userID string) error {
	path := "/v1/users/" + url.PathEscape(userID) + "/follow"
	return c.do(ctx, "follow", http.MethodPost, path, nil, nil)
}

// Unfollow removes a follow
func (c *Client) Unfollow(ctx context.Context, userID string) error {
	path := "/v1/users/" + url.PathEscape(userID) + "/follow"
	return c.do(ctx, "unfollow", http.MethodDelete, path, nil, nil)
}

// SendMessage submits a chat message and returns the confirmed server copy
func (c *Client) SendMessage(ctx context.Context, conversationID, body string) (*model.Message, error) {
	var msg model.Message
	payload := map[string]string{"body": body}
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, "send_message", http.MethodPost, path, payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkConversationRead clears the unread counter server-side
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.do(ctx, "mark_read", http.MethodPost, path, nil, nil)
}
