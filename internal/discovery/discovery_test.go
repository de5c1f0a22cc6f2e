package discovery_test

import (
	"context"
	"testing"
	"time"

	"streamlapse/internal/config"
	"streamlapse/internal/discovery"
	"streamlapse/internal/ledger"
	"streamlapse/internal/logging"
	"streamlapse/internal/youtube"
)

type fakeAPI struct {
	items      []youtube.PlaylistItem
	videos     map[string]youtube.Video
	detailIDs  [][]string
	pageCalls  int
	pageSizeIn int
}

func (f *fakeAPI) UploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	return "UU" + channelID, nil
}

func (f *fakeAPI) ListPlaylistPage(ctx context.Context, playlistID, pageToken string, maxResults int) (*youtube.PlaylistPage, error) {
	f.pageCalls++
	f.pageSizeIn = maxResults
	start := 0
	if pageToken != "" {
		start = int(pageToken[0] - '0')
	}
	end := start + maxResults
	if end > len(f.items) {
		end = len(f.items)
	}
	page := &youtube.PlaylistPage{Items: f.items[start:end]}
	if end < len(f.items) {
		page.NextPageToken = string(rune('0' + end))
	}
	return page, nil
}

func (f *fakeAPI) VideoDetails(ctx context.Context, ids []string) ([]youtube.Video, error) {
	f.detailIDs = append(f.detailIDs, append([]string(nil), ids...))
	out := make([]youtube.Video, 0, len(ids))
	for _, id := range ids {
		if video, ok := f.videos[id]; ok {
			out = append(out, video)
		}
	}
	return out, nil
}

func ts(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func completedStream(id, published, started string) youtube.Video {
	return youtube.Video{
		ID:              id,
		Title:           "Stream " + id,
		PublishedAt:     ts(published),
		ActualStartTime: ts(started),
		ActualEndTime:   ts(started).Add(2 * time.Hour),
		IsLiveBroadcast: true,
	}
}

func playlistItems(videos ...youtube.Video) []youtube.PlaylistItem {
	items := make([]youtube.PlaylistItem, 0, len(videos))
	for _, v := range videos {
		items = append(items, youtube.PlaylistItem{VideoID: v.ID, Title: v.Title, PublishedAt: v.PublishedAt})
	}
	return items
}

func videoMap(videos ...youtube.Video) map[string]youtube.Video {
	m := make(map[string]youtube.Video, len(videos))
	for _, v := range videos {
		m[v.ID] = v
	}
	return m
}

func newDiscoverer(api youtube.API, floor string, budget int) *discovery.Discoverer {
	cfg := &config.Config{}
	cfg.YouTube.ChannelID = "chan"
	cfg.Discovery.PageSize = 50
	cfg.Discovery.ScanBudget = budget
	cfg.Discovery.ScanFloor = floor
	return discovery.New(api, cfg, logging.NewNop())
}

func TestLatestPicksMostRecentStartTime(t *testing.T) {
	// Publish order and start order deliberately disagree.
	a := completedStream("a", "2025-04-01T12:00:00Z", "2025-04-01T08:00:00Z")
	b := completedStream("b", "2025-04-05T12:00:00Z", "2025-04-05T08:00:00Z")
	c := completedStream("c", "2025-04-03T12:00:00Z", "2025-04-03T08:00:00Z")
	api := &fakeAPI{items: playlistItems(b, c, a), videos: videoMap(a, b, c)}

	video, err := newDiscoverer(api, "", 0).Latest(context.Background(), ledger.Set{})
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if video == nil || video.ID != "b" {
		t.Fatalf("expected stream b, got %#v", video)
	}
}

func TestLatestTieBreakIsStable(t *testing.T) {
	first := completedStream("first", "2025-04-05T12:00:00Z", "2025-04-05T08:00:00Z")
	second := completedStream("second", "2025-04-04T12:00:00Z", "2025-04-05T08:00:00Z")
	api := &fakeAPI{items: playlistItems(first, second), videos: videoMap(first, second)}
	disc := newDiscoverer(api, "", 0)

	for i := 0; i < 3; i++ {
		video, err := disc.Latest(context.Background(), ledger.Set{})
		if err != nil {
			t.Fatalf("Latest returned error: %v", err)
		}
		if video == nil || video.ID != "first" {
			t.Fatalf("pass %d: expected stable pick of first-listed stream, got %#v", i, video)
		}
	}
}

func TestLatestSkipsProcessedStreams(t *testing.T) {
	newest := completedStream("newest", "2025-04-05T12:00:00Z", "2025-04-05T08:00:00Z")
	older := completedStream("older", "2025-04-03T12:00:00Z", "2025-04-03T08:00:00Z")
	api := &fakeAPI{items: playlistItems(newest, older), videos: videoMap(newest, older)}

	processed := ledger.Set{youtube.WatchURL("newest"): struct{}{}}
	video, err := newDiscoverer(api, "", 0).Latest(context.Background(), processed)
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if video == nil || video.ID != "older" {
		t.Fatalf("expected older stream, got %#v", video)
	}
}

func TestLatestIgnoresIncompleteStreams(t *testing.T) {
	live := completedStream("live", "2025-04-06T12:00:00Z", "2025-04-06T08:00:00Z")
	live.ActualEndTime = time.Time{}
	plain := youtube.Video{ID: "plain", PublishedAt: ts("2025-04-07T12:00:00Z")}
	done := completedStream("done", "2025-04-05T12:00:00Z", "2025-04-05T08:00:00Z")
	api := &fakeAPI{items: playlistItems(live, plain, done), videos: videoMap(live, plain, done)}

	video, err := newDiscoverer(api, "", 0).Latest(context.Background(), ledger.Set{})
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if video == nil || video.ID != "done" {
		t.Fatalf("expected completed stream, got %#v", video)
	}
}

func TestLatestHonorsScanFloor(t *testing.T) {
	before := completedStream("before", "2025-04-17T23:00:00Z", "2025-04-17T23:59:59Z")
	at := completedStream("at", "2025-04-18T01:00:00Z", "2025-04-18T00:00:00Z")
	api := &fakeAPI{items: playlistItems(at, before), videos: videoMap(at, before)}

	video, err := newDiscoverer(api, "2025-04-18T00:00:00Z", 0).Latest(context.Background(), ledger.Set{})
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if video == nil || video.ID != "at" {
		t.Fatalf("floor should be inclusive, got %#v", video)
	}

	only := &fakeAPI{items: playlistItems(before), videos: videoMap(before)}
	video, err = newDiscoverer(only, "2025-04-18T00:00:00Z", 0).Latest(context.Background(), ledger.Set{})
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if video != nil {
		t.Fatalf("stream before floor should be excluded, got %#v", video)
	}
}

func TestScanBudgetLimitsExamination(t *testing.T) {
	inBudget := completedStream("in", "2025-04-05T12:00:00Z", "2025-04-05T08:00:00Z")
	overBudget := completedStream("over", "2025-04-06T12:00:00Z", "2025-04-06T08:00:00Z")
	api := &fakeAPI{items: playlistItems(inBudget, overBudget), videos: videoMap(inBudget, overBudget)}

	video, err := newDiscoverer(api, "", 1).Latest(context.Background(), ledger.Set{})
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if video == nil || video.ID != "in" {
		t.Fatalf("expected only the first entry to be examined, got %#v", video)
	}
}

func TestScanAllOrdersByPublishDate(t *testing.T) {
	a := completedStream("a", "2025-04-05T12:00:00Z", "2025-04-05T08:00:00Z")
	b := completedStream("b", "2025-04-01T12:00:00Z", "2025-04-01T08:00:00Z")
	c := completedStream("c", "2025-04-03T12:00:00Z", "2025-04-03T08:00:00Z")
	api := &fakeAPI{items: playlistItems(a, c, b), videos: videoMap(a, b, c)}

	videos, err := newDiscoverer(api, "", 0).ScanAll(context.Background(), ledger.Set{})
	if err != nil {
		t.Fatalf("ScanAll returned error: %v", err)
	}
	if len(videos) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(videos))
	}
	if videos[0].ID != "b" || videos[1].ID != "c" || videos[2].ID != "a" {
		t.Fatalf("expected oldest-first order, got %v %v %v", videos[0].ID, videos[1].ID, videos[2].ID)
	}
}

func TestScanWalksMultiplePages(t *testing.T) {
	videos := make([]youtube.Video, 0, 8)
	for i := 0; i < 8; i++ {
		day := 8 - i
		videos = append(videos, completedStream(
			string(rune('a'+i)),
			time.Date(2025, 4, day, 12, 0, 0, 0, time.UTC).Format(time.RFC3339),
			time.Date(2025, 4, day, 8, 0, 0, 0, time.UTC).Format(time.RFC3339),
		))
	}
	api := &fakeAPI{items: playlistItems(videos...), videos: videoMap(videos...)}

	cfg := &config.Config{}
	cfg.YouTube.ChannelID = "chan"
	cfg.Discovery.PageSize = 3
	disc := discovery.New(api, cfg, logging.NewNop())

	found, err := disc.ScanAll(context.Background(), ledger.Set{})
	if err != nil {
		t.Fatalf("ScanAll returned error: %v", err)
	}
	if len(found) != 8 {
		t.Fatalf("expected all 8 streams across pages, got %d", len(found))
	}
	if api.pageCalls < 3 {
		t.Fatalf("expected at least 3 page fetches, got %d", api.pageCalls)
	}
}
