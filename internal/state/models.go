package state

import (
	"strings"
	"time"
)

// Stage identifies one phase of the ingestion pipeline.
type Stage string

const (
	StageDiscovery     Stage = "discovery"
	StageMetadata      Stage = "metadata"
	StageTranscription Stage = "transcription"
	StageChunking      Stage = "chunking"
	StageEmbedding     Stage = "embedding"
	StageUpload        Stage = "upload"
)

var stageOrder = []Stage{
	StageDiscovery,
	StageMetadata,
	StageTranscription,
	StageChunking,
	StageEmbedding,
	StageUpload,
}

// Stages returns the pipeline stages in dependency order.
func Stages() []Stage {
	cp := make([]Stage, len(stageOrder))
	copy(cp, stageOrder)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, stage := range stageOrder {
		if stage == normalized {
			return stage, true
		}
	}
	return "", false
}

// StageIndex returns the position of a stage in dependency order, or -1.
func StageIndex(stage Stage) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// PriorStages returns every stage that must be done before the given stage runs.
func PriorStages(stage Stage) []Stage {
	idx := StageIndex(stage)
	if idx <= 0 {
		return nil
	}
	prior := make([]Stage, idx)
	copy(prior, stageOrder[:idx])
	return prior
}

// DownstreamStages returns every stage after the given stage in dependency order.
func DownstreamStages(stage Stage) []Stage {
	idx := StageIndex(stage)
	if idx < 0 || idx == len(stageOrder)-1 {
		return nil
	}
	downstream := make([]Stage, len(stageOrder)-idx-1)
	copy(downstream, stageOrder[idx+1:])
	return downstream
}

// Status represents per-item progress for a single stage.
type Status string

const (
	StatusPending         Status = "pending"
	StatusInProgress      Status = "in_progress"
	StatusDone            Status = "done"
	StatusFailedRetryable Status = "failed_retryable"
	StatusFailedPermanent Status = "failed_permanent"
)

var allStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusDone,
	StatusFailedRetryable,
	StatusFailedPermanent,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsFailed reports whether a status records a failure of either kind.
func (s Status) IsFailed() bool {
	return s == StatusFailedRetryable || s == StatusFailedPermanent
}

// Video is a discovered channel video tracked by the pipeline.
// Identity fields are immutable after discovery; only bookkeeping
// columns change on later runs.
type Video struct {
	VideoID          string
	Title            string
	PublishedAt      time.Time
	DurationSeconds  int64
	ChannelTitle     string
	ThumbnailURL     string
	CaptionAvailable bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StageStatus is the persisted progress record for one (video, stage) pair.
type StageStatus struct {
	VideoID      string
	Stage        Stage
	Status       Status
	AttemptCount int
	LastError    string
	UpdatedAt    time.Time
}

// StageCounts aggregates item counts per status for a single stage.
type StageCounts struct {
	Pending         int
	InProgress      int
	Done            int
	FailedRetryable int
	FailedPermanent int
}

// Total returns the number of tracked items for the stage.
func (c StageCounts) Total() int {
	return c.Pending + c.InProgress + c.Done + c.FailedRetryable + c.FailedPermanent
}

// DatabaseHealth captures diagnostic information about the state database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalVideos      int
	Error            string
}
