package event

import (
	"encoding/json"
	"testing"
)

func TestTypeValid(t *testing.T) {
	t.Parallel()

	for _, known := range Types() {
		if !known.Valid() {
			t.Fatalf("expected %q to be valid", known)
		}
	}
	if Type("page_view").Valid() {
		t.Fatal("expected unknown type to be invalid")
	}
	if Type("").Valid() {
		t.Fatal("expected empty type to be invalid")
	}
}

func TestPayloadUnmarshalTolerantTypes(t *testing.T) {
	t.Parallel()

	raw := `{
		"durationMs": "not-a-number",
		"projectId": 42,
		"questionId": "q1",
		"correct": "yes",
		"selectedOptionIndex": 2,
		"totalOptions": "four",
		"reason": "timeout"
	}`

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.DurationMs != 0 {
		t.Fatalf("durationMs = %d, want 0 for non-numeric input", p.DurationMs)
	}
	if p.ProjectID != "" {
		t.Fatalf("projectId = %q, want dropped", p.ProjectID)
	}
	if p.QuestionID != "q1" {
		t.Fatalf("questionId = %q, want q1", p.QuestionID)
	}
	if p.Correct != nil {
		t.Fatal("expected mistyped correct to be dropped")
	}
	if p.SelectedOptionIndex == nil || *p.SelectedOptionIndex != 2 {
		t.Fatalf("selectedOptionIndex = %v, want 2", p.SelectedOptionIndex)
	}
	if p.TotalOptions != nil {
		t.Fatal("expected mistyped totalOptions to be dropped")
	}
	if p.Reason != "timeout" {
		t.Fatalf("reason = %q, want timeout", p.Reason)
	}
}

func TestPayloadUnmarshalTruncatesFractionalDuration(t *testing.T) {
	t.Parallel()

	var p Payload
	if err := json.Unmarshal([]byte(`{"durationMs": 1500.9}`), &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.DurationMs != 1500 {
		t.Fatalf("durationMs = %d, want 1500", p.DurationMs)
	}
}

func TestPayloadUnmarshalRejectsNonObject(t *testing.T) {
	t.Parallel()

	var p Payload
	if err := json.Unmarshal([]byte(`"duration"`), &p); err == nil {
		t.Fatal("expected error for non-object payload")
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := Event{ID: "evt-1", Type: TypeEnterApp, Timestamp: 1700000000000}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}

	missingID := Event{Type: TypeEnterApp}
	if err := missingID.Validate(); err == nil {
		t.Fatal("expected error for missing id")
	}

	missingType := Event{ID: "evt-2"}
	if err := missingType.Validate(); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestEventJSONFieldNames(t *testing.T) {
	t.Parallel()

	correct := true
	evt := Event{
		ID:        "evt-1",
		SessionID: "sess-1",
		Timestamp: 1700000000000,
		Type:      TypeQuestionAnswered,
		StageID:   "discover",
		DomainID:  "energy",
		Payload:   &Payload{QuestionID: "q1", Correct: &correct},
	}
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode event json: %v", err)
	}
	for _, key := range []string{"id", "sessionId", "ts", "type", "stageId", "domainId", "payload"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("expected key %q in %s", key, data)
		}
	}
}
