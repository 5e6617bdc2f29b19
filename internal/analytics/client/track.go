package client

import "github.com/meridianworks/kiosk-analytics/internal/analytics/event"

// Convenience helpers mirroring the kiosk's trackable actions.

// TrackEnterApp records the kiosk leaving the attract loop.
func (c *Client) TrackEnterApp() {
	c.Track(Input{Type: event.TypeEnterApp})
}

// TrackStageVisit records a stage screen view.
func (c *Client) TrackStageVisit(stageID string) {
	c.Track(Input{Type: event.TypeStageView, StageID: stageID})
}

// TrackDomainStart records entry into a domain panel.
func (c *Client) TrackDomainStart(stageID, domainID string) {
	c.Track(Input{Type: event.TypeDomainViewStart, StageID: stageID, DomainID: domainID})
}

// TrackDomainEnd records leaving a domain panel with the dwell duration.
func (c *Client) TrackDomainEnd(stageID, domainID string, durationMs int64, projectsViewed int) {
	payload := &event.Payload{DurationMs: durationMs}
	if projectsViewed > 0 {
		payload.ProjectsViewed = &projectsViewed
	}
	c.Track(Input{Type: event.TypeDomainViewEnd, StageID: stageID, DomainID: domainID, Payload: payload})
}

// TrackQuizSkipped records a declined quiz.
func (c *Client) TrackQuizSkipped(stageID, domainID string) {
	c.Track(Input{Type: event.TypeQuizSkipped, StageID: stageID, DomainID: domainID})
}

// QuizAnswer describes one answered quiz question.
type QuizAnswer struct {
	StageID             string
	DomainID            string
	QuestionID          string
	Correct             bool
	SelectedOptionIndex int
	TotalOptions        int
}

// TrackQuestionAnswered records one quiz answer.
func (c *Client) TrackQuestionAnswered(answer QuizAnswer) {
	correct := answer.Correct
	payload := &event.Payload{
		QuestionID: answer.QuestionID,
		Correct:    &correct,
	}
	if answer.TotalOptions > 0 {
		payload.SelectedOptionIndex = &answer.SelectedOptionIndex
		payload.TotalOptions = &answer.TotalOptions
	}
	c.Track(Input{Type: event.TypeQuestionAnswered, StageID: answer.StageID, DomainID: answer.DomainID, Payload: payload})
}

// TrackExitToAttract records a return to the attract loop.
func (c *Client) TrackExitToAttract(reason string) {
	var payload *event.Payload
	if reason != "" {
		payload = &event.Payload{Reason: reason}
	}
	c.Track(Input{Type: event.TypeExitToAttract, Payload: payload})
}

// TrackScreensaverShown records the screensaver appearing.
func (c *Client) TrackScreensaverShown() {
	c.Track(Input{Type: event.TypeScreensaverShown})
}

// TrackScreensaverExit records the screensaver being dismissed.
func (c *Client) TrackScreensaverExit() {
	c.Track(Input{Type: event.TypeScreensaverExit})
}

// TrackProjectStart records entry into a project detail view.
func (c *Client) TrackProjectStart(stageID, domainID, projectID string, index int) {
	c.Track(Input{Type: event.TypeProjectViewStart, StageID: stageID, DomainID: domainID, Payload: &event.Payload{
		ProjectID: projectID,
		Index:     &index,
	}})
}

// TrackProjectEnd records leaving a project detail view with dwell time.
func (c *Client) TrackProjectEnd(stageID, domainID, projectID string, durationMs int64) {
	c.Track(Input{Type: event.TypeProjectViewEnd, StageID: stageID, DomainID: domainID, Payload: &event.Payload{
		ProjectID:  projectID,
		DurationMs: durationMs,
	}})
}
