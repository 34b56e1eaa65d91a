// Package api is the client for the external comment write API and the
// pull-fallback read endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gigboard/internal/model"
)

// WriteAPI is the surface the sync engine consumes. The concrete Client
// talks HTTP; tests substitute a mock.
type WriteAPI interface {
	CreateComment(ctx context.Context, threadID, body, correlationID string) (*model.Comment, error)
	CreateReply(ctx context.Context, threadID, commentID, body, correlationID string) (*model.Reply, error)
	ToggleLike(ctx context.Context, threadID, commentID string, replyID *string) (bool, error)
	DeleteComment(ctx context.Context, threadID, commentID string, replyID *string) (bool, error)
	GetThread(ctx context.Context, threadID string) (*model.Snapshot, error)
}

// Client implements WriteAPI over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an API client. token is the caller's bearer credential.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreateComment posts a new top-level comment.
// POST /threads/{threadID}/comments
func (c *Client) CreateComment(ctx context.Context, threadID, body, correlationID string) (*model.Comment, error) {
	var comment model.Comment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/threads/%s/comments", threadID),
		correlationID, model.CreateCommentRequest{Body: body}, &comment)
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// CreateReply adds a reply to an existing comment.
// PUT /threads/{threadID}/comments
func (c *Client) CreateReply(ctx context.Context, threadID, commentID, body, correlationID string) (*model.Reply, error) {
	var reply model.Reply
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/threads/%s/comments", threadID),
		correlationID, model.CreateReplyRequest{CommentID: commentID, Body: body}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// ToggleLike flips the caller's like on a comment (replyID nil) or a reply.
// POST /threads/{threadID}/comments/{commentID}/like
func (c *Client) ToggleLike(ctx context.Context, threadID, commentID string, replyID *string) (bool, error) {
	var resp model.LikeResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/threads/%s/comments/%s/like", threadID, commentID),
		"", model.LikeRequest{ReplyID: replyID}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Liked, nil
}

// DeleteComment removes a comment (and its replies) or a single reply.
// DELETE /threads/{threadID}/comments
func (c *Client) DeleteComment(ctx context.Context, threadID, commentID string, replyID *string) (bool, error) {
	var resp model.DeleteResponse
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/threads/%s/comments", threadID),
		"", model.DeleteCommentRequest{CommentID: commentID, ReplyID: replyID}, &resp)
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// GetThread fetches the full snapshot. Used only as the pull fallback while
// the live channel is down.
// GET /threads/{threadID}/comments
func (c *Client) GetThread(ctx context.Context, threadID string) (*model.Snapshot, error) {
	var snap model.Snapshot
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/threads/%s/comments", threadID), "", nil, &snap)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// do runs one JSON round trip. Non-2xx responses become *model.WriteError.
func (c *Client) do(ctx context.Context, method, path, correlationID string, in, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if correlationID != "" {
		// Echoed back on the stored comment so reconciliation can match it.
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseWriteError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// parseWriteError decodes the server's error envelope, falling back to the
// bare status when the body is not the expected shape.
func parseWriteError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Error struct {
			Code    string   `json:"code"`
			Message string   `json:"message"`
			Reasons []string `json:"reasons"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		if envelope.Error.Code == "MODERATION_REJECTED" {
			return &model.ModerationError{Reasons: envelope.Error.Reasons}
		}
		return &model.WriteError{
			Status:  resp.StatusCode,
			Code:    envelope.Error.Code,
			Message: envelope.Error.Message,
		}
	}
	return &model.WriteError{Status: resp.StatusCode}
}
