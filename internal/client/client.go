package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nicoplay/nicoplay/internal/danmaku"
)

var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusBadRequest || e.Status == http.StatusRequestEntityTooLarge:
		return danmaku.ErrInvalidInput
	case e.Status == http.StatusTooManyRequests || e.Status >= 500:
		return danmaku.ErrTransientIO
	}
	return nil
}

type Video struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ContentType  string `json:"contentType"`
	FileSize     int64  `json:"fileSize"`
	Status       string `json:"status"`
	URL          string `json:"url"`
	CommentCount int    `json:"commentCount"`
	Viewers      int    `json:"viewers"`
	CreatedAt    string `json:"createdAt"`
}

// Client talks to a nicoplay server. It implements the comment API and live
// feed a player session needs.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) ListVideos(ctx context.Context) ([]Video, error) {
	var videos []Video
	if err := c.do(ctx, http.MethodGet, "/api/videos", nil, &videos); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

func (c *Client) GetVideo(ctx context.Context, id string) (Video, error) {
	var v Video
	if err := c.do(ctx, http.MethodGet, "/api/videos/"+url.PathEscape(id), nil, &v); err != nil {
		return Video{}, fmt.Errorf("get video: %w", err)
	}
	return v, nil
}

type commentsResponse struct {
	Comments []danmaku.Comment `json:"comments"`
}

func (c *Client) FetchComments(ctx context.Context, videoID string) ([]danmaku.Comment, error) {
	var resp commentsResponse
	if err := c.do(ctx, http.MethodGet, commentsPath(videoID), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch comments: %w", err)
	}
	return resp.Comments, nil
}

func (c *Client) PostComment(ctx context.Context, videoID string, d danmaku.Draft) (danmaku.Comment, error) {
	var stored danmaku.Comment
	if err := c.do(ctx, http.MethodPost, commentsPath(videoID), d, &stored); err != nil {
		return danmaku.Comment{}, fmt.Errorf("post comment: %w", err)
	}
	return stored, nil
}

func commentsPath(videoID string) string {
	return "/api/videos/" + url.PathEscape(videoID) + "/comments"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: send request: %w", danmaku.ErrTransientIO, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", danmaku.ErrTransientIO, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
