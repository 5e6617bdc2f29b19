// Package event defines the telemetry event model shared by the client,
// the ingestion service, and the store.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type identifies one kind of kiosk interaction.
type Type string

const (
	TypeEnterApp         Type = "enter_app"
	TypeStageView        Type = "stage_view"
	TypeDomainViewStart  Type = "domain_view_start"
	TypeDomainViewEnd    Type = "domain_view_end"
	TypeQuizSkipped      Type = "quiz_skipped"
	TypeQuestionAnswered Type = "question_answered"
	TypeExitToAttract    Type = "exit_to_attract"
	TypeScreensaverShown Type = "screensaver_shown"
	TypeScreensaverExit  Type = "screensaver_exit"
	TypeProjectViewStart Type = "project_view_start"
	TypeProjectViewEnd   Type = "project_view_end"
)

// Types lists every known event type in declaration order.
func Types() []Type {
	return []Type{
		TypeEnterApp,
		TypeStageView,
		TypeDomainViewStart,
		TypeDomainViewEnd,
		TypeQuizSkipped,
		TypeQuestionAnswered,
		TypeExitToAttract,
		TypeScreensaverShown,
		TypeScreensaverExit,
		TypeProjectViewStart,
		TypeProjectViewEnd,
	}
}

// Valid reports whether the type is one of the known kiosk event types.
func (t Type) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

// Payload is the optional structured attachment of an event. Its shape
// depends on the event type; every field is optional so one struct covers
// all variants while keeping the wire format flexible.
type Payload struct {
	DurationMs          int64  `json:"durationMs,omitempty"`
	ProjectID           string `json:"projectId,omitempty"`
	QuestionID          string `json:"questionId,omitempty"`
	Correct             *bool  `json:"correct,omitempty"`
	SelectedOptionIndex *int   `json:"selectedOptionIndex,omitempty"`
	TotalOptions        *int   `json:"totalOptions,omitempty"`
	ProjectsViewed      *int   `json:"projectsViewed,omitempty"`
	Index               *int   `json:"index,omitempty"`
	Reason              string `json:"reason,omitempty"`
}

// UnmarshalJSON decodes a payload tolerantly: fields with an unexpected
// type are dropped rather than failing the whole batch, and a non-numeric
// durationMs is treated as zero.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if p == nil {
		return fmt.Errorf("payload target is required")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	*p = Payload{}
	if value, ok := raw["durationMs"]; ok {
		var duration float64
		if err := json.Unmarshal(value, &duration); err == nil {
			p.DurationMs = int64(duration)
		}
	}
	decodeString(raw, "projectId", &p.ProjectID)
	decodeString(raw, "questionId", &p.QuestionID)
	decodeString(raw, "reason", &p.Reason)
	if value, ok := raw["correct"]; ok {
		var correct bool
		if err := json.Unmarshal(value, &correct); err == nil {
			p.Correct = &correct
		}
	}
	decodeInt(raw, "selectedOptionIndex", &p.SelectedOptionIndex)
	decodeInt(raw, "totalOptions", &p.TotalOptions)
	decodeInt(raw, "projectsViewed", &p.ProjectsViewed)
	decodeInt(raw, "index", &p.Index)
	return nil
}

func decodeString(raw map[string]json.RawMessage, key string, target *string) {
	value, ok := raw[key]
	if !ok {
		return
	}
	var decoded string
	if err := json.Unmarshal(value, &decoded); err == nil {
		*target = decoded
	}
}

func decodeInt(raw map[string]json.RawMessage, key string, target **int) {
	value, ok := raw[key]
	if !ok {
		return
	}
	var decoded float64
	if err := json.Unmarshal(value, &decoded); err == nil {
		truncated := int(decoded)
		*target = &truncated
	}
}

// Event is one immutable telemetry record describing a session action.
// The id is assigned by the client at creation time so that re-delivered
// batches stay idempotent.
type Event struct {
	ID         string   `json:"id"`
	SessionID  string   `json:"sessionId"`
	Timestamp  int64    `json:"ts"`
	Type       Type     `json:"type"`
	StageID    string   `json:"stageId,omitempty"`
	DomainID   string   `json:"domainId,omitempty"`
	AppVersion string   `json:"appVersion,omitempty"`
	Payload    *Payload `json:"payload,omitempty"`
}

// Validate checks the fields the store depends on.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		return fmt.Errorf("event type is required")
	}
	return nil
}

// Batch is the wire envelope for one ingestion call. Events missing their
// own session id inherit the envelope's.
type Batch struct {
	SessionID  string  `json:"sessionId"`
	AppVersion string  `json:"appVersion,omitempty"`
	Events     []Event `json:"events"`
}
