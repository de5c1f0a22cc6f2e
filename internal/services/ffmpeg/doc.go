// Package ffmpeg wraps the ffmpeg CLI for the timelapse speed-up recipe.
package ffmpeg
