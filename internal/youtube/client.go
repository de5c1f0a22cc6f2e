package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the YouTube Data API v3 endpoint root.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

// maxDetailBatch is the videos.list upper bound on ids per call.
const maxDetailBatch = 50

// PlaylistItem is one entry from a playlistItems.list page.
type PlaylistItem struct {
	VideoID     string
	Title       string
	PublishedAt time.Time
}

// PlaylistPage holds one page of an uploads playlist.
type PlaylistPage struct {
	Items         []PlaylistItem
	NextPageToken string
}

// Video carries the videos.list detail fields discovery relies on.
type Video struct {
	ID              string
	Title           string
	PublishedAt     time.Time
	ActualStartTime time.Time
	ActualEndTime   time.Time
	IsLiveBroadcast bool
}

// URL returns the canonical watch URL for the video.
func (v Video) URL() string {
	return WatchURL(v.ID)
}

// WatchURL builds the canonical watch URL for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// CompletedStream reports whether the video was a livestream that has both
// started and finished.
func (v Video) CompletedStream() bool {
	return v.IsLiveBroadcast && !v.ActualStartTime.IsZero() && !v.ActualEndTime.IsZero()
}

// API defines the Data API operations discovery uses.
type API interface {
	UploadsPlaylistID(ctx context.Context, channelID string) (string, error)
	ListPlaylistPage(ctx context.Context, playlistID, pageToken string, maxResults int) (*PlaylistPage, error)
	VideoDetails(ctx context.Context, ids []string) ([]Video, error)
}

// Client provides typed access to the YouTube Data API v3.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

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

// New creates a Data API client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("youtube api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type channelListResponse struct {
	Items []struct {
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// UploadsPlaylistID resolves a channel id to its uploads playlist id.
func (c *Client) UploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return "", errors.New("channel id must not be empty")
	}
	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("id", channelID)

	var payload channelListResponse
	if err := c.get(ctx, "/channels", params, &payload); err != nil {
		return "", err
	}
	if len(payload.Items) == 0 {
		return "", fmt.Errorf("channel %s not found", channelID)
	}
	uploads := payload.Items[0].ContentDetails.RelatedPlaylists.Uploads
	if uploads == "" {
		return "", fmt.Errorf("channel %s has no uploads playlist", channelID)
	}
	return uploads, nil
}

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			ResourceID  struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

// ListPlaylistPage fetches one page of an uploads playlist in the API's
// native newest-first order.
func (c *Client) ListPlaylistPage(ctx context.Context, playlistID, pageToken string, maxResults int) (*PlaylistPage, error) {
	playlistID = strings.TrimSpace(playlistID)
	if playlistID == "" {
		return nil, errors.New("playlist id must not be empty")
	}
	if maxResults <= 0 || maxResults > maxDetailBatch {
		maxResults = maxDetailBatch
	}
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", strconv.Itoa(maxResults))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var payload playlistItemsResponse
	if err := c.get(ctx, "/playlistItems", params, &payload); err != nil {
		return nil, err
	}

	page := &PlaylistPage{NextPageToken: payload.NextPageToken}
	for _, item := range payload.Items {
		videoID := item.Snippet.ResourceID.VideoID
		if videoID == "" {
			continue
		}
		page.Items = append(page.Items, PlaylistItem{
			VideoID:     videoID,
			Title:       item.Snippet.Title,
			PublishedAt: parseAPITime(item.Snippet.PublishedAt),
		})
	}
	return page, nil
}

// videoDetailFields trims the videos.list response to what the pipeline
// reads; the default snippet payload carries thumbnails and descriptions.
const videoDetailFields = "items(id,snippet(title,publishedAt),liveStreamingDetails(actualStartTime,actualEndTime))"

type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
		} `json:"snippet"`
		LiveStreamingDetails *struct {
			ActualStartTime string `json:"actualStartTime"`
			ActualEndTime   string `json:"actualEndTime"`
		} `json:"liveStreamingDetails"`
	} `json:"items"`
}

// VideoDetails fetches livestream detail for the given ids, batching
// transparently at the API's 50-id limit. Results preserve input order;
// ids the API does not return are simply absent.
func (c *Client) VideoDetails(ctx context.Context, ids []string) ([]Video, error) {
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}

	byID := make(map[string]Video, len(cleaned))
	for start := 0; start < len(cleaned); start += maxDetailBatch {
		end := start + maxDetailBatch
		if end > len(cleaned) {
			end = len(cleaned)
		}
		batch := cleaned[start:end]

		params := url.Values{}
		params.Set("part", "snippet,liveStreamingDetails")
		params.Set("id", strings.Join(batch, ","))
		params.Set("fields", videoDetailFields)

		var payload videoListResponse
		if err := c.get(ctx, "/videos", params, &payload); err != nil {
			return nil, err
		}
		for _, item := range payload.Items {
			video := Video{
				ID:          item.ID,
				Title:       item.Snippet.Title,
				PublishedAt: parseAPITime(item.Snippet.PublishedAt),
			}
			if item.LiveStreamingDetails != nil {
				video.IsLiveBroadcast = true
				video.ActualStartTime = parseAPITime(item.LiveStreamingDetails.ActualStartTime)
				video.ActualEndTime = parseAPITime(item.LiveStreamingDetails.ActualEndTime)
			}
			byID[item.ID] = video
		}
	}

	videos := make([]Video, 0, len(byID))
	for _, id := range cleaned {
		if video, ok := byID[id]; ok {
			videos = append(videos, video)
			delete(byID, id)
		}
	}
	return videos, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse youtube url: %w", err)
	}
	params.Set("key", c.apiKey)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("youtube %s returned %d (latency=%v)", path, resp.StatusCode, latency)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode youtube response: %w", err)
	}
	return nil
}

func parseAPITime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
