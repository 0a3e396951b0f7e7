package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tubeindex/internal/config"
)

// Store manages pipeline state persistence backed by SQLite.
//
// The design assumes a single active pipeline run writing at a time
// (enforced by the run lock); reads may come from any process. Every
// write is committed before the call returns, so a crash mid-run loses
// at most the in-flight item.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the state database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "state.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the location of the state database file.
func (s *Store) Path() string {
	return s.path
}

// UpsertVideo inserts a discovered video or refreshes its metadata fields.
// Identity (video_id) and created_at are preserved across upserts.
func (s *Store) UpsertVideo(ctx context.Context, video *Video) error {
	if video == nil {
		return errors.New("video is nil")
	}
	if strings.TrimSpace(video.VideoID) == "" {
		return errors.New("video_id is required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO videos (
            video_id, title, published_at, duration_seconds, channel_title,
            thumbnail_url, caption_available, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (video_id) DO UPDATE SET
            title = excluded.title,
            published_at = excluded.published_at,
            duration_seconds = excluded.duration_seconds,
            channel_title = excluded.channel_title,
            thumbnail_url = excluded.thumbnail_url,
            caption_available = excluded.caption_available,
            updated_at = excluded.updated_at`,
		video.VideoID,
		nullableString(video.Title),
		nullableTime(video.PublishedAt),
		video.DurationSeconds,
		nullableString(video.ChannelTitle),
		nullableString(video.ThumbnailURL),
		boolToInt(video.CaptionAvailable),
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert video: %w", err)
	}
	return nil
}

// GetVideo fetches a video by identifier. Returns nil when absent.
func (s *Store) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_id = ?`, videoID)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	return video, nil
}

// ListVideos returns all tracked videos in discovery order.
func (s *Store) ListVideos(ctx context.Context) ([]*Video, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY created_at, video_id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

// CountVideos returns the total number of tracked videos.
func (s *Store) CountVideos(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM videos`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return count, nil
}

// GetStatus returns the stage status record for a (video, stage) pair.
// A video with no recorded status for the stage reports pending.
func (s *Store) GetStatus(ctx context.Context, videoID string, stage Stage) (*StageStatus, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT video_id, stage, status, attempt_count, last_error, updated_at
         FROM stage_status WHERE video_id = ? AND stage = ?`,
		videoID, stage,
	)
	status, err := scanStageStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return &StageStatus{VideoID: videoID, Stage: stage, Status: StatusPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return status, nil
}

// SetStatus records the outcome of a stage for a video. The write is
// committed before return so subsequent reads in the same run observe it.
func (s *Store) SetStatus(ctx context.Context, videoID string, stage Stage, status Status, lastError string) error {
	if strings.TrimSpace(videoID) == "" {
		return errors.New("video_id is required")
	}
	if _, ok := ParseStatus(string(status)); !ok {
		return fmt.Errorf("unknown status %q", status)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO stage_status (video_id, stage, status, attempt_count, last_error, updated_at)
         VALUES (?, ?, ?, 0, ?, ?)
         ON CONFLICT (video_id, stage) DO UPDATE SET
            status = excluded.status,
            last_error = excluded.last_error,
            updated_at = excluded.updated_at`,
		videoID, stage, status, nullableString(lastError), timestamp,
	)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// MarkInProgress transitions a (video, stage) pair to in_progress and
// increments its attempt counter.
func (s *Store) MarkInProgress(ctx context.Context, videoID string, stage Stage) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO stage_status (video_id, stage, status, attempt_count, last_error, updated_at)
         VALUES (?, ?, ?, 1, NULL, ?)
         ON CONFLICT (video_id, stage) DO UPDATE SET
            status = excluded.status,
            attempt_count = stage_status.attempt_count + 1,
            last_error = NULL,
            updated_at = excluded.updated_at`,
		videoID, stage, StatusInProgress, timestamp,
	)
	if err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}
	return nil
}

// CandidateFilter controls candidate selection for a stage run.
type CandidateFilter struct {
	// Incremental excludes items already done for the stage.
	Incremental bool
	// RetryBlocked selects failed_retryable items alongside pending
	// ones; done items are never re-selected on a retry run.
	RetryBlocked bool
	// Limit caps the number of returned candidates when > 0.
	Limit int
}

// ListCandidates returns video ids eligible for a stage run, in discovery
// order. Only videos whose every prior stage is done are eligible;
// failed_permanent items are never selected.
func (s *Store) ListCandidates(ctx context.Context, stage Stage, filter CandidateFilter) ([]string, error) {
	if StageIndex(stage) < 0 {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}

	statuses := candidateStatuses(filter)
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, 0, len(statuses)+8)
	args = append(args, stage)
	for _, status := range statuses {
		args = append(args, status)
	}

	query := `SELECT v.video_id FROM videos v
        LEFT JOIN stage_status ss ON ss.video_id = v.video_id AND ss.stage = ?
        WHERE COALESCE(ss.status, 'pending') IN (` + placeholders + `)`

	prior := PriorStages(stage)
	if len(prior) > 0 {
		priorPlaceholders := makePlaceholders(len(prior))
		query += ` AND (SELECT COUNT(1) FROM stage_status p
            WHERE p.video_id = v.video_id AND p.status = 'done'
              AND p.stage IN (` + priorPlaceholders + `)) = ?`
		for _, p := range prior {
			args = append(args, p)
		}
		args = append(args, len(prior))
	}

	query += ` ORDER BY v.created_at, v.video_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func candidateStatuses(filter CandidateFilter) []Status {
	statuses := []Status{StatusPending}
	if filter.RetryBlocked {
		// Retry runs resume pending and failed_retryable work only;
		// done items stay untouched.
		return append(statuses, StatusFailedRetryable)
	}
	if !filter.Incremental {
		statuses = append(statuses, StatusDone, StatusFailedRetryable)
	}
	return statuses
}

// CountEligibleDone returns how many videos are eligible for the stage
// (every prior stage done) and already done for it.
func (s *Store) CountEligibleDone(ctx context.Context, stage Stage) (int, error) {
	if StageIndex(stage) < 0 {
		return 0, fmt.Errorf("unknown stage %q", stage)
	}

	args := []any{stage}
	query := `SELECT COUNT(1) FROM videos v
        LEFT JOIN stage_status ss ON ss.video_id = v.video_id AND ss.stage = ?
        WHERE COALESCE(ss.status, 'pending') = 'done'`

	prior := PriorStages(stage)
	if len(prior) > 0 {
		priorPlaceholders := makePlaceholders(len(prior))
		query += ` AND (SELECT COUNT(1) FROM stage_status p
            WHERE p.video_id = v.video_id AND p.status = 'done'
              AND p.stage IN (` + priorPlaceholders + `)) = ?`
		for _, p := range prior {
			args = append(args, p)
		}
		args = append(args, len(prior))
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count eligible done: %w", err)
	}
	return count, nil
}

// InvalidateDownstream resets every stage after the given stage back to
// pending for a video. Called when a stage regenerates its artifact so
// derived work is recomputed.
func (s *Store) InvalidateDownstream(ctx context.Context, videoID string, stage Stage) (int64, error) {
	downstream := DownstreamStages(stage)
	if len(downstream) == 0 {
		return 0, nil
	}
	placeholders := makePlaceholders(len(downstream))
	args := make([]any, 0, len(downstream)+3)
	args = append(args, StatusPending, time.Now().UTC().Format(time.RFC3339Nano), videoID)
	for _, d := range downstream {
		args = append(args, d)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE stage_status SET status = ?, last_error = NULL, updated_at = ?
         WHERE video_id = ? AND stage IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("invalidate downstream: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckInProgress returns in_progress rows to pending. Run at
// startup to recover items abandoned by a crashed run.
func (s *Store) ResetStuckInProgress(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE stage_status SET status = ?, updated_at = ? WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed_retryable rows back to pending, across all
// stages, optionally restricted to specific videos.
func (s *Store) RetryFailed(ctx context.Context, videoIDs ...string) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(videoIDs) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE stage_status SET status = ?, last_error = NULL, updated_at = ? WHERE status = ?`,
			StatusPending, timestamp, StatusFailedRetryable,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(videoIDs))
	args := make([]any, 0, len(videoIDs)+3)
	args = append(args, StatusPending, timestamp, StatusFailedRetryable)
	for _, id := range videoIDs {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE stage_status SET status = ?, last_error = NULL, updated_at = ?
         WHERE status = ? AND video_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}

// StageStats returns item counts per status for a single stage. Videos
// with no row for the stage count as pending.
func (s *Store) StageStats(ctx context.Context, stage Stage) (StageCounts, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT COALESCE(ss.status, 'pending'), COUNT(1)
         FROM videos v
         LEFT JOIN stage_status ss ON ss.video_id = v.video_id AND ss.stage = ?
         GROUP BY COALESCE(ss.status, 'pending')`,
		stage,
	)
	if err != nil {
		return StageCounts{}, fmt.Errorf("stage stats: %w", err)
	}
	defer rows.Close()

	counts := StageCounts{}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return StageCounts{}, err
		}
		switch status {
		case StatusPending:
			counts.Pending += count
		case StatusInProgress:
			counts.InProgress += count
		case StatusDone:
			counts.Done += count
		case StatusFailedRetryable:
			counts.FailedRetryable += count
		case StatusFailedPermanent:
			counts.FailedPermanent += count
		}
	}
	return counts, rows.Err()
}

// FailedStatuses returns the failure records for a stage, most recent first.
func (s *Store) FailedStatuses(ctx context.Context, stage Stage) ([]*StageStatus, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT video_id, stage, status, attempt_count, last_error, updated_at
         FROM stage_status
         WHERE stage = ? AND status IN (?, ?)
         ORDER BY updated_at DESC`,
		stage, StatusFailedRetryable, StatusFailedPermanent,
	)
	if err != nil {
		return nil, fmt.Errorf("list failed statuses: %w", err)
	}
	defer rows.Close()

	var statuses []*StageStatus
	for rows.Next() {
		status, err := scanStageStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

// CheckHealth returns diagnostic information about the state database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("state database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat state database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("state database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("state database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping state database: %w", err)
	}
	health.DatabaseReadable = true

	expected := map[string]struct{}{"videos": {}, "stage_status": {}}
	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table info: %w", err)
		}
		if _, ok := expected[name]; ok {
			health.TablesPresent = append(health.TablesPresent, name)
			delete(expected, name)
		}
	}
	if err := rows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate table info: %w", err)
	}
	for name := range expected {
		health.MissingTables = append(health.MissingTables, name)
	}

	if len(health.MissingTables) == 0 {
		row := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM videos")
		if err := row.Scan(&health.TotalVideos); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count videos: %w", err)
		}
	}

	row := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

const videoColumns = "video_id, title, published_at, duration_seconds, channel_title, thumbnail_url, caption_available, created_at, updated_at"

func scanVideo(scanner interface{ Scan(dest ...any) error }) (*Video, error) {
	var (
		videoID          string
		title            sql.NullString
		publishedRaw     sql.NullString
		durationSeconds  sql.NullInt64
		channelTitle     sql.NullString
		thumbnailURL     sql.NullString
		captionAvailable sql.NullInt64
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)

	if err := scanner.Scan(
		&videoID,
		&title,
		&publishedRaw,
		&durationSeconds,
		&channelTitle,
		&thumbnailURL,
		&captionAvailable,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	video := &Video{
		VideoID:         videoID,
		Title:           title.String,
		DurationSeconds: durationSeconds.Int64,
		ChannelTitle:    channelTitle.String,
		ThumbnailURL:    thumbnailURL.String,
	}
	if captionAvailable.Valid {
		video.CaptionAvailable = captionAvailable.Int64 != 0
	}
	if published, err := parseTimeString(publishedRaw.String); err == nil {
		video.PublishedAt = published
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		video.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		video.UpdatedAt = updated
	}
	return video, nil
}

func scanStageStatus(scanner interface{ Scan(dest ...any) error }) (*StageStatus, error) {
	var (
		videoID      string
		stageStr     string
		statusStr    string
		attemptCount sql.NullInt64
		lastError    sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(&videoID, &stageStr, &statusStr, &attemptCount, &lastError, &updatedRaw); err != nil {
		return nil, err
	}
	status := &StageStatus{
		VideoID:      videoID,
		Stage:        Stage(stageStr),
		Status:       Status(statusStr),
		AttemptCount: int(attemptCount.Int64),
		LastError:    lastError.String,
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		status.UpdatedAt = updated
	}
	return status, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
