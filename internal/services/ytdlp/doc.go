// Package ytdlp wraps the yt-dlp CLI for fetching stream source files.
package ytdlp
