package entity

// ChangeKind tells subscribers what happened to a game record.
type ChangeKind string

const (
	Changed ChangeKind = "changed"
	Removed ChangeKind = "removed"
)

// ChangeEvent is one notification of a game record feed.
// For Removed events Game holds the last known version of the record.
type ChangeEvent struct {
	Kind ChangeKind `json:"type"`
	Game *Game      `json:"game"`
}

// Feed delivers change events for a single game id in the order they were committed.
type Feed interface {
	Events() <-chan ChangeEvent
	Close() error
}
