package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/examind/quiz-portal/internal/bank"
	"github.com/examind/quiz-portal/internal/quiz"
)

// ListQuestionsHandler returns the full bank, answer keys included.
// Admin-only; students only ever see questions through a live session.
func ListQuestionsHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := store.FetchQuestions(r.Context())
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if qs == nil {
			qs = []quiz.Question{}
		}
		_ = json.NewEncoder(w).Encode(qs)
	}
}

func GetQuestionHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "questionID")
		q, err := store.GetQuestion(r.Context(), id)
		if err != nil {
			if errors.Is(err, bank.ErrQuestionNotFound) {
				http.Error(w, "not found", 404)
				return
			}
			http.Error(w, err.Error(), 500)
			return
		}
		_ = json.NewEncoder(w).Encode(q)
	}
}

// PutQuestionHandler creates or replaces one question.
func PutQuestionHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", 400)
			return
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.TimeLimitSec <= 0 {
			q.TimeLimitSec = 30
		}
		if q.Points <= 0 {
			q.Points = 1
		}
		q.ImageURL = bank.NormalizeImageURL(q.ImageURL)
		if err := bank.ValidateQuestion(q); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := store.PutQuestion(r.Context(), q); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		_ = json.NewEncoder(w).Encode(q)
	}
}

func DeleteQuestionHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "questionID")
		if err := store.DeleteQuestion(r.Context(), id); err != nil {
			if errors.Is(err, bank.ErrQuestionNotFound) {
				http.Error(w, "not found", 404)
				return
			}
			http.Error(w, err.Error(), 500)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ImportQuestionsCSVHandler loads a batch of questions from a multipart
// CSV upload. Any invalid row rejects the whole file, with the row
// number in the error.
func ImportQuestionsCSVHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", 400)
			return
		}
		defer f.Close()

		qs, err := bank.ParseQuestionsCSV(f)
		if err != nil {
			http.Error(w, "bad csv: "+err.Error(), 400)
			return
		}
		for _, q := range qs {
			if err := store.PutQuestion(r.Context(), q); err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"imported": len(qs)})
	}
}
