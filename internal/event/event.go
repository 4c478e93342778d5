// Package event carries scan lifecycle notifications from the indexer to any
// interested consumer (log forwarding, the HTTP event endpoint).
package event

// Kind discriminates scan events.
type Kind string

const (
	// KindProgress is emitted periodically while a crawl is running, after
	// the covering batch has been committed.
	KindProgress Kind = "progress"
	// KindCompleted terminates a run that finished every root.
	KindCompleted Kind = "completed"
	// KindStopped terminates a run that was cancelled; the total counts only
	// what was durably committed before the stop.
	KindStopped Kind = "stopped"
)

// Event is one scan notification.
type Event struct {
	Kind Kind `json:"kind"`

	// Count is the running indexed-file count (progress) or the final total
	// (completed/stopped).
	Count int `json:"count"`

	// Path is the directory being walked when a progress event fired.
	Path string `json:"path,omitempty"`
}
