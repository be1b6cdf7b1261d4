package dto

// SnapshotOutput mirrors the persisted projection in display-friendly form.
type SnapshotOutput struct {
	SessionID      string `json:"sessionId"`
	Status         string `json:"status"`
	StartTimeMs    int64  `json:"startTime"`
	Duration       int64  `json:"duration"`
	PausedAtMs     int64  `json:"pausedAt,omitempty"`
	PausedDuration int64  `json:"pausedDuration"`
}

type ViewOutput struct {
	Snapshot        SnapshotOutput `json:"snapshot"`
	SessionEarnings string         `json:"sessionEarnings"`
	ProjectedDaily  string         `json:"projectedDaily"`
	BusConnected    bool           `json:"busConnected"`
}

type NoticeOutput struct {
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// EventOutput is pushed to the tab UI whenever the projection changes or a notice is raised.
type EventOutput struct {
	View   ViewOutput
	Notice *NoticeOutput
}
