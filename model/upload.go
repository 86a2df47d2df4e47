package model

import "time"

// UploadStatus is the lifecycle state of a queued upload.
type UploadStatus string

const (
	StatusPending   UploadStatus = "pending"
	StatusUploading UploadStatus = "uploading"
	StatusComplete  UploadStatus = "complete"
	StatusFailed    UploadStatus = "failed"
	StatusPaused    UploadStatus = "paused"
)

// UploadItem is one file awaiting or undergoing upload. The payload stays on
// disk and is referenced by path; the queue never copies the bytes.
type UploadItem struct {
	ID       string `json:"id"`
	FilePath string `json:"filePath"`

	Title  string   `json:"title"`
	Artist string   `json:"artist"`
	Album  string   `json:"album,omitempty"`
	Genres []string `json:"genres,omitempty"`

	Status   UploadStatus `json:"status"`
	Progress float64      `json:"progress"` // 0..100, monotonic while uploading
	Error    string       `json:"error,omitempty"`

	// RemoteID is the server-assigned song ID, set once the upload completes.
	RemoteID  int64     `json:"remoteId,omitempty"`
	Duplicate bool      `json:"duplicate,omitempty"` // rejected as a known duplicate
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy so observers never alias queue-owned state.
func (it *UploadItem) Clone() UploadItem {
	cp := *it
	if it.Genres != nil {
		cp.Genres = append([]string(nil), it.Genres...)
	}
	return cp
}

// QueueSnapshot is an immutable view of the queue handed to observers.
// Revision increases with every mutation; a snapshot with a lower revision
// is older than one with a higher revision.
type QueueSnapshot struct {
	Items         []UploadItem `json:"items"`
	ActiveCount   int          `json:"activeCount"`
	MaxConcurrent int          `json:"maxConcurrent"`
	IsPaused      bool         `json:"isPaused"`
	Revision      uint64       `json:"revision"`
}

// PersistedQueue is the durable form of a queue snapshot. Only pending,
// failed and paused items are persisted; payload bytes never are.
type PersistedQueue struct {
	SavedAt time.Time    `json:"savedAt"`
	Items   []UploadItem `json:"items"`
}

// MaxSnapshotAge is how long a persisted queue stays usable. Older
// snapshots are discarded on load.
const MaxSnapshotAge = 24 * time.Hour

// Stale reports whether the persisted queue is too old to restore.
func (p *PersistedQueue) Stale(now time.Time) bool {
	return now.Sub(p.SavedAt) > MaxSnapshotAge
}

// FilterPersistable keeps only the items worth restoring after a restart.
// In-flight and completed items are dropped: uploading items cannot be
// resumed mid-stream, and completed items need no recovery.
func FilterPersistable(items []UploadItem) []UploadItem {
	out := make([]UploadItem, 0, len(items))
	for _, it := range items {
		switch it.Status {
		case StatusPending, StatusFailed, StatusPaused:
			out = append(out, it)
		}
	}
	return out
}
