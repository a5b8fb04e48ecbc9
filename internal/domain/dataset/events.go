package dataset

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a published state change.
type EventType string

const (
	EventDisplayDepthChanged EventType = "view.display_depth_changed"
	EventExpansionAdded      EventType = "view.expansion_added"
	EventCollapseAdded       EventType = "view.collapse_added"
	EventExpansionCleared    EventType = "view.expansion_cleared"
	EventCollapseCleared     EventType = "view.collapse_cleared"
	EventViewReset           EventType = "view.reset"
	EventImported            EventType = "dataset.imported"
)

// IsViewEvent reports whether t belongs on the view topic.
func (t EventType) IsViewEvent() bool {
	return t != EventImported
}

// Event is the envelope for every published change.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	DatasetID  string    `json:"dataset_id"`
	Payload    any       `json:"payload,omitempty"`
}

// NewEvent stamps a fresh envelope.
func NewEvent(t EventType, datasetID string, payload any) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		DatasetID:  datasetID,
		Payload:    payload,
	}
}

// OverridePayload accompanies expansion and collapse events.
type OverridePayload struct {
	Taxon   string `json:"taxon"`
	ToDepth int    `json:"to_depth,omitempty"`
}

// DepthPayload accompanies EventDisplayDepthChanged.
type DepthPayload struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// ImportedPayload accompanies EventImported.
type ImportedPayload struct {
	Name         string `json:"name"`
	Source       string `json:"source"`
	FeatureCount int    `json:"feature_count"`
	SampleCount  int    `json:"sample_count"`
}
