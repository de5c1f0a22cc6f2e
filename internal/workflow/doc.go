// Package workflow drives queue items through the fetch, transcode, and
// upload stages. Processing is strictly sequential: one pass discovers new
// completed streams, seeds the queue, and drains it one item and one stage
// at a time, because the staging layout and the processed log are only
// safe under a single writer.
package workflow
