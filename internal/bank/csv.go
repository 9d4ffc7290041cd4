package bank

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/examind/quiz-portal/internal/quiz"
)

const (
	defaultTimeLimitSec = 30
	defaultPoints       = 1
)

// ParseQuestionsCSV reads a question bank upload. Required columns:
// prompt, option1..option4, correct (0-based index). Optional: id,
// time_limit, points, image_url. Header names are case-insensitive.
func ParseQuestionsCSV(r io.Reader) ([]quiz.Question, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	required := []string{"prompt", "option1", "option2", "option3", "option4", "correct"}
	for _, k := range required {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}

	var out []quiz.Question
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		q := quiz.Question{
			Prompt: strings.TrimSpace(rec[idx["prompt"]]),
			Options: []string{
				strings.TrimSpace(rec[idx["option1"]]),
				strings.TrimSpace(rec[idx["option2"]]),
				strings.TrimSpace(rec[idx["option3"]]),
				strings.TrimSpace(rec[idx["option4"]]),
			},
			TimeLimitSec: defaultTimeLimitSec,
			Points:       defaultPoints,
		}
		if i, ok := idx["id"]; ok {
			q.ID = strings.TrimSpace(rec[i])
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		ci, err := strconv.Atoi(strings.TrimSpace(rec[idx["correct"]]))
		if err != nil {
			return nil, fmt.Errorf("row %d: bad correct index: %w", line, err)
		}
		q.CorrectIndex = ci
		if i, ok := idx["time_limit"]; ok && strings.TrimSpace(rec[i]) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(rec[i]))
			if err != nil {
				return nil, fmt.Errorf("row %d: bad time_limit: %w", line, err)
			}
			q.TimeLimitSec = n
		}
		if i, ok := idx["points"]; ok && strings.TrimSpace(rec[i]) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(rec[i]))
			if err != nil {
				return nil, fmt.Errorf("row %d: bad points: %w", line, err)
			}
			q.Points = n
		}
		if i, ok := idx["image_url"]; ok {
			q.ImageURL = NormalizeImageURL(strings.TrimSpace(rec[i]))
		}
		if err := ValidateQuestion(q); err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		out = append(out, q)
	}
	return out, nil
}

// ValidateQuestion checks the invariants a Question must satisfy before
// it enters the bank.
func ValidateQuestion(q quiz.Question) error {
	if q.Prompt == "" {
		return errors.New("empty prompt")
	}
	if len(q.Options) < 2 {
		return errors.New("need at least 2 options")
	}
	for i, o := range q.Options {
		if o == "" {
			return fmt.Errorf("option %d is empty", i+1)
		}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("correct index %d out of range", q.CorrectIndex)
	}
	if q.TimeLimitSec <= 0 {
		return errors.New("time limit must be positive")
	}
	if q.Points <= 0 {
		return errors.New("points must be positive")
	}
	return nil
}

var driveFileRe = regexp.MustCompile(`drive\.google\.com/file/d/([^/?#]+)`)

// NormalizeImageURL rewrites Google Drive share links to a form that
// serves the raw image; anything else passes through untouched.
func NormalizeImageURL(raw string) string {
	if raw == "" || !strings.Contains(raw, "drive.google.com") {
		return raw
	}
	if m := driveFileRe.FindStringSubmatch(raw); m != nil {
		return "https://lh3.googleusercontent.com/d/" + m[1]
	}
	if u, err := url.Parse(raw); err == nil {
		if id := u.Query().Get("id"); id != "" {
			return "https://lh3.googleusercontent.com/d/" + id
		}
	}
	return raw
}
