package queue

import (
	"database/sql"
	"strings"
	"time"
)

const itemColumns = "id, video_id, url, title, start_time, end_time, published_at, status, source_file, output_file, uploaded_video_id, committed, error_message, progress_stage, progress_message, needs_review, review_reason, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id              int64
		videoID         string
		url             string
		title           sql.NullString
		startTime       sql.NullString
		endTime         sql.NullString
		publishedAt     sql.NullString
		statusStr       string
		sourceFile      sql.NullString
		outputFile      sql.NullString
		uploadedVideoID sql.NullString
		committed       sql.NullInt64
		errorMessage    sql.NullString
		progressStage   sql.NullString
		progressMessage sql.NullString
		needsReview     sql.NullInt64
		reviewReason    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&videoID,
		&url,
		&title,
		&startTime,
		&endTime,
		&publishedAt,
		&statusStr,
		&sourceFile,
		&outputFile,
		&uploadedVideoID,
		&committed,
		&errorMessage,
		&progressStage,
		&progressMessage,
		&needsReview,
		&reviewReason,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		VideoID:         videoID,
		URL:             url,
		Title:           title.String,
		StartTime:       startTime.String,
		EndTime:         endTime.String,
		PublishedAt:     publishedAt.String,
		Status:          Status(statusStr),
		SourceFile:      sourceFile.String,
		OutputFile:      outputFile.String,
		UploadedVideoID: uploadedVideoID.String,
		ErrorMessage:    errorMessage.String,
		ProgressStage:   progressStage.String,
		ProgressMessage: progressMessage.String,
		ReviewReason:    reviewReason.String,
	}
	if committed.Valid {
		item.Committed = committed.Int64 != 0
	}
	if needsReview.Valid {
		item.NeedsReview = needsReview.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, sql.ErrNoRows
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}
