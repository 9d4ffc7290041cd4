package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/examind/quiz-portal/internal/bank"
	"github.com/examind/quiz-portal/internal/proctor"
	"github.com/examind/quiz-portal/internal/quiz"
	"github.com/examind/quiz-portal/internal/rbac"
)

// ListResultsHandler lists submitted results newest first. Admins see
// everyone; students are pinned to their own user id regardless of the
// query string.
func ListResultsHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := bank.ResultListOpts{
			UserID: r.URL.Query().Get("user_id"),
			Limit:  queryInt(r, "limit", 50),
			Offset: queryInt(r, "offset", 0),
		}
		role := rbac.RoleFromContext(r.Context())
		if role != "admin" {
			opts.UserID = rbac.SubjectFromContext(r.Context())
		}
		out, err := store.ListResults(r.Context(), opts)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if out == nil {
			out = []quiz.Result{}
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

func GetResultHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "resultID")
		res, err := store.GetResult(r.Context(), id)
		if err != nil {
			if errors.Is(err, bank.ErrResultNotFound) {
				http.Error(w, "not found", 404)
				return
			}
			http.Error(w, err.Error(), 500)
			return
		}
		role := rbac.RoleFromContext(r.Context())
		if role != "admin" && res.UserID != rbac.SubjectFromContext(r.Context()) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(res)
	}
}

// ListSessionEventsHandler returns the proctoring audit trail for one
// quiz session.
func ListSessionEventsHandler(store bank.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		evs, err := store.ListEvents(r.Context(), sessionID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if evs == nil {
			evs = []proctor.EventRecord{}
		}
		_ = json.NewEncoder(w).Encode(evs)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
