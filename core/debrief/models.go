package debrief

import "time"

type Debrief struct {
	ID           string    `json:"id"`
	AttemptID    string    `json:"attempt_id"`
	UserID       string    `json:"user_id"`
	Summary      string    `json:"summary"`
	Strengths    []string  `json:"strengths"`
	Improvements []string  `json:"improvements"`
	Rating       int       `json:"rating"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
}

// Prompt is what a Generator is asked to complete.
type Prompt struct {
	System string
	User   string
}

// Completion is the raw answer of a Generator.
type Completion struct {
	Text  string
	Model string
}

// feedback is the JSON document the model is asked to answer with.
type feedback struct {
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Rating       int      `json:"rating"`
}
