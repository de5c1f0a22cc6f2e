package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultUploadURL is the multipart videos.insert endpoint.
const DefaultUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos"

// DefaultAPIURL is the Data API root used for metadata updates.
const DefaultAPIURL = "https://www.googleapis.com/youtube/v3"

// Metadata carries the snippet and status fields for an upload.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string
}

// Uploader defines the behaviour required by the upload handler.
type Uploader interface {
	Upload(ctx context.Context, filePath string, meta Metadata) (string, error)
	UpdateDescription(ctx context.Context, videoID string, meta Metadata) error
	AppendDescriptionLink(ctx context.Context, videoID, link string) error
}

// TokenSource supplies a bearer token for API calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client publishes timelapses through the YouTube upload API.
type Client struct {
	uploadURL  string
	apiURL     string
	tokens     TokenSource
	httpClient *http.Client
}

var _ Uploader = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIURL overrides the metadata API root (primarily for tests).
func WithAPIURL(apiURL string) Option {
	return func(c *Client) {
		if apiURL = strings.TrimSpace(apiURL); apiURL != "" {
			c.apiURL = strings.TrimRight(apiURL, "/")
		}
	}
}

// New creates an upload client.
func New(uploadURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("token source required")
	}
	uploadURL = strings.TrimSpace(uploadURL)
	if uploadURL == "" {
		uploadURL = DefaultUploadURL
	}
	client := &Client{
		uploadURL: strings.TrimRight(uploadURL, "/"),
		apiURL:    DefaultAPIURL,
		tokens:    tokens,
		// Uploads move gigabytes; rely on context deadlines instead of a
		// client-wide timeout.
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type videoResource struct {
	ID      string `json:"id,omitempty"`
	Snippet struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags,omitempty"`
		CategoryID  string   `json:"categoryId,omitempty"`
	} `json:"snippet"`
	Status *struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status,omitempty"`
}

// Upload sends the file with its metadata as one multipart videos.insert
// request and returns the new video id.
func (c *Client) Upload(ctx context.Context, filePath string, meta Metadata) (string, error) {
	if strings.TrimSpace(meta.Title) == "" {
		return "", errors.New("upload title required")
	}
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open upload file: %w", err)
	}
	defer file.Close()

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire access token: %w", err)
	}

	var resource videoResource
	resource.Snippet.Title = meta.Title
	resource.Snippet.Description = meta.Description
	resource.Snippet.Tags = meta.Tags
	resource.Snippet.CategoryID = meta.CategoryID
	if privacy := strings.TrimSpace(meta.Privacy); privacy != "" {
		resource.Status = &struct {
			PrivacyStatus string `json:"privacyStatus"`
		}{PrivacyStatus: privacy}
	}
	metaJSON, err := json.Marshal(resource)
	if err != nil {
		return "", fmt.Errorf("encode upload metadata: %w", err)
	}

	// The body is streamed through a pipe so multi-gigabyte files never
	// need to be buffered in memory.
	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		jsonHeader := textproto.MIMEHeader{}
		jsonHeader.Set("Content-Type", "application/json; charset=UTF-8")
		part, err := form.CreatePart(jsonHeader)
		if err != nil {
			writer.CloseWithError(err)
			return
		}
		if _, err := part.Write(metaJSON); err != nil {
			writer.CloseWithError(err)
			return
		}

		videoHeader := textproto.MIMEHeader{}
		videoHeader.Set("Content-Type", "video/*")
		part, err = form.CreatePart(videoHeader)
		if err != nil {
			writer.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			writer.CloseWithError(err)
			return
		}
		writer.CloseWithError(form.Close())
	}()

	endpoint, err := url.Parse(c.uploadURL)
	if err != nil {
		return "", fmt.Errorf("parse upload url: %w", err)
	}
	params := url.Values{}
	params.Set("uploadType", "multipart")
	params.Set("part", "snippet,status")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), reader)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+form.Boundary())

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return "", fmt.Errorf("execute upload (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("upload returned %d (latency=%v): %s", resp.StatusCode, latency, strings.TrimSpace(string(body)))
	}

	var created videoResource
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("upload response missing video id")
	}
	return created.ID, nil
}

// VideoSnippet fetches the current snippet for a video the channel owns.
func (c *Client) VideoSnippet(ctx context.Context, videoID string) (Metadata, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return Metadata{}, errors.New("video id required")
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("acquire access token: %w", err)
	}

	endpoint, err := url.Parse(c.apiURL + "/videos")
	if err != nil {
		return Metadata{}, fmt.Errorf("parse api url: %w", err)
	}
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("id", videoID)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("build snippet request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("execute snippet fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("snippet fetch returned %d", resp.StatusCode)
	}

	var payload struct {
		Items []videoResource `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Metadata{}, fmt.Errorf("decode snippet response: %w", err)
	}
	if len(payload.Items) == 0 {
		return Metadata{}, fmt.Errorf("video %s not found", videoID)
	}
	snippet := payload.Items[0].Snippet
	return Metadata{
		Title:       snippet.Title,
		Description: snippet.Description,
		Tags:        snippet.Tags,
		CategoryID:  snippet.CategoryID,
	}, nil
}

// AppendDescriptionLink adds the given link to the end of a video's
// description. A description that already carries the link is left alone.
func (c *Client) AppendDescriptionLink(ctx context.Context, videoID, link string) error {
	link = strings.TrimSpace(link)
	if link == "" {
		return errors.New("link required")
	}

	meta, err := c.VideoSnippet(ctx, videoID)
	if err != nil {
		return err
	}
	if strings.Contains(meta.Description, link) {
		return nil
	}
	if meta.Description != "" {
		meta.Description += "\n\n"
	}
	meta.Description += "Timelapse: " + link
	return c.UpdateDescription(ctx, videoID, meta)
}

// UpdateDescription rewrites the uploaded video's snippet, used to add the
// link back to the source stream once its URL is known.
func (c *Client) UpdateDescription(ctx context.Context, videoID string, meta Metadata) error {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return errors.New("video id required")
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("acquire access token: %w", err)
	}

	var resource videoResource
	resource.ID = videoID
	resource.Snippet.Title = meta.Title
	resource.Snippet.Description = meta.Description
	resource.Snippet.Tags = meta.Tags
	resource.Snippet.CategoryID = meta.CategoryID
	payload, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("encode update metadata: %w", err)
	}

	endpoint, err := url.Parse(c.apiURL + "/videos")
	if err != nil {
		return fmt.Errorf("parse api url: %w", err)
	}
	params := url.Values{}
	params.Set("part", "snippet")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint.String(), strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("video update returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
