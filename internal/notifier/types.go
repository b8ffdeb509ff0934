package notifier

import "time"

// Config controls the notification queue.
type Config struct {
	QueueSize int
	// RatePerSec is the sustained publish rate; Burst the bucket size.
	RatePerSec float64
	Burst      int
	// DedupWindow suppresses a second notification for the same revision.
	DedupWindow     time.Duration
	DedupMaxEntries int
	SendTimeout     time.Duration
	HistorySize     int
}

type HistoryItem struct {
	At         time.Time `json:"at"`
	RevisionID int64     `json:"revision_id"`
	Text       string    `json:"text"`
	Error      string    `json:"error,omitempty"`
}

// Event is the bus payload for notifier.* events.
type Event struct {
	Publisher  string    `json:"publisher"`
	RevisionID int64     `json:"revision_id"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}

type Stats struct {
	Queued  uint64 `json:"queued"`
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Deduped uint64 `json:"deduped"`
	Dropped uint64 `json:"dropped"`
	Pending int    `json:"pending"`
}
