package quiz

import "time"

// NoSelection is the sentinel selection index meaning the user made no
// choice before the countdown ran out. Distinct from every valid option
// index so a timed-out question stays distinguishable from a wrong
// answer in the persisted record.
const NoSelection = -1

type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	TimeLimitSec int      `json:"time_limit_sec"`
	Points       int      `json:"points"`
	ImageURL     string   `json:"image_url,omitempty"`
	CreatedAt    int64    `json:"created_at,omitempty"`
}

// Student returns a copy safe to send to a test-taker: the correct
// index is stripped.
func (q Question) Student() Question {
	q.CorrectIndex = NoSelection
	return q
}

// AnswerRecord is the immutable outcome of one answered (or timed-out)
// question. Created exactly once per question, never mutated.
type AnswerRecord struct {
	QuestionID   string `json:"question_id"`
	Prompt       string `json:"prompt"`
	Selected     int    `json:"selected"` // NoSelection when time ran out unanswered
	SelectedText string `json:"selected_text"`
	CorrectText  string `json:"correct_text"`
	Correct      bool   `json:"correct"`
	Points       int    `json:"points"`
	MaxPoints    int    `json:"max_points"`
}

type Summary struct {
	TotalPoints  int     `json:"total_points"`
	MaxPoints    int     `json:"max_points"`
	Percentage   float64 `json:"percentage"`
	CorrectCount int     `json:"correct_count"`
	TotalCount   int     `json:"total_count"`
}

// Result is the document persisted when a session is submitted.
type Result struct {
	ID       string         `json:"id"`
	UserID   string         `json:"user_id"`
	UserName string         `json:"user_name"`
	Answers  []AnswerRecord `json:"answers"`
	Summary
	CompletedAt time.Time `json:"completed_at"`
}

// Identity is the authenticated test-taker.
type Identity struct {
	ID          string
	DisplayName string
}
