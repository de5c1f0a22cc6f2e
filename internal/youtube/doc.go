// Package youtube wraps the YouTube Data API v3 calls used to discover
// completed livestreams: channel resolution, uploads playlist paging, and
// batched video detail lookups.
package youtube
