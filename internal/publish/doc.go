// Package publish uploads finished timelapses through the YouTube upload
// API, refreshing OAuth credentials from a token file as needed.
package publish
