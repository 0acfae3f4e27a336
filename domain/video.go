// domain/video.go
package domain

import (
	"fmt"
	"time"
)

type VideoStatus string

const (
	VideoStatusQueued      VideoStatus = "QUEUED"
	VideoStatusDownloading VideoStatus = "DOWNLOADING"
	VideoStatusDownloaded  VideoStatus = "DOWNLOADED"
	VideoStatusProcessing  VideoStatus = "PROCESSING"
	VideoStatusCompleted   VideoStatus = "COMPLETED"
	VideoStatusFailed      VideoStatus = "FAILED"
)

// Messages recorded on failed jobs. They are shown on the dashboard, so they
// never carry raw diagnostics except for composition errors.
const (
	FailureDownload   = "failed to download video"
	FailureCopy       = "couldn't copy video"
	FailureNoGameplay = "couldn't get gameplay video"
	FailureAborted    = "job interrupted"
	FailureSuperseded = "superseded by a later request"
	failureProcessing = "error during processing"
)

// FailureProcessing formats the message stored when composition fails.
func FailureProcessing(err error) string {
	if err == nil {
		return failureProcessing
	}
	return fmt.Sprintf("%s: %v", failureProcessing, err)
}

var videoTransitions = map[VideoStatus][]VideoStatus{
	VideoStatusQueued:      {VideoStatusDownloading, VideoStatusFailed},
	VideoStatusDownloading: {VideoStatusDownloaded, VideoStatusFailed},
	VideoStatusDownloaded:  {VideoStatusProcessing, VideoStatusCompleted, VideoStatusFailed},
	VideoStatusProcessing:  {VideoStatusCompleted, VideoStatusFailed},
}

// IsTerminal reports whether no further transition is allowed.
func (s VideoStatus) IsTerminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusFailed
}

// CanTransition reports whether the job state machine allows s -> next.
func (s VideoStatus) CanTransition(next VideoStatus) bool {
	for _, allowed := range videoTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// VideoJob is one unit of work tracking a single video from acquisition to a
// terminal status.
type VideoJob struct {
	ID           string
	UserID       string
	ConfigID     string
	Caption      string
	Reference    VideoReference
	GameplayID   string
	Status       VideoStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transition moves the job to next, rejecting anything the state machine
// does not allow. errorMessage is kept only for FAILED.
func (j *VideoJob) Transition(next VideoStatus, errorMessage string) error {
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.Status, next)
	}
	j.Status = next
	if next == VideoStatusFailed {
		j.ErrorMessage = errorMessage
	}
	return nil
}
