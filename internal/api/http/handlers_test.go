package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	api "github.com/examind/quiz-portal/internal/api/http"
	"github.com/examind/quiz-portal/internal/bank"
	"github.com/examind/quiz-portal/internal/proctor"
	"github.com/examind/quiz-portal/internal/quiz"
	"github.com/examind/quiz-portal/internal/rbac"
)

func questionRouter(store bank.Store) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/questions", api.PutQuestionHandler(store))
	r.Post("/questions/import", api.ImportQuestionsCSVHandler(store))
	r.Get("/questions", api.ListQuestionsHandler(store))
	r.Get("/questions/{questionID}", api.GetQuestionHandler(store))
	r.Delete("/questions/{questionID}", api.DeleteQuestionHandler(store))
	r.Get("/results", api.ListResultsHandler(store))
	r.Get("/results/{resultID}", api.GetResultHandler(store))
	r.Get("/sessions/{sessionID}/events", api.ListSessionEventsHandler(store))
	return r
}

func asUser(req *http.Request, sub, role string) *http.Request {
	ctx := rbac.WithSubject(req.Context(), sub)
	ctx = rbac.WithRole(ctx, role)
	return req.WithContext(ctx)
}

func TestQuestionCRUD(t *testing.T) {
	store := bank.NewInMemoryStore()
	r := questionRouter(store)

	body := `{"prompt":"2+2?","options":["3","4"],"correct_index":1}`
	req := httptest.NewRequest("POST", "/questions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	var created quiz.Question
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 30, created.TimeLimitSec) // default
	assert.Equal(t, 1, created.Points)        // default

	req = httptest.NewRequest("GET", "/questions/"+created.ID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	req = httptest.NewRequest("GET", "/questions", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var list []quiz.Question
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	req = httptest.NewRequest("DELETE", "/questions/"+created.ID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest("GET", "/questions/"+created.ID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateQuestionRejectsInvalid(t *testing.T) {
	store := bank.NewInMemoryStore()
	r := questionRouter(store)

	body := `{"prompt":"","options":["3","4"],"correct_index":1}`
	req := httptest.NewRequest("POST", "/questions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)

	body = `{"prompt":"x","options":["3","4"],"correct_index":5}`
	req = httptest.NewRequest("POST", "/questions", strings.NewReader(body))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestImportQuestionsCSV(t *testing.T) {
	store := bank.NewInMemoryStore()
	r := questionRouter(store)

	csv := strings.Join([]string{
		"prompt,option1,option2,option3,option4,correct",
		"Q one?,a,b,c,d,0",
		"Q two?,a,b,c,d,3",
	}, "\n")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "questions.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/questions/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	var out struct {
		Imported int `json:"imported"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Imported)

	qs, err := store.FetchQuestions(context.Background())
	require.NoError(t, err)
	assert.Len(t, qs, 2)
}

func seedResults(t *testing.T, store bank.Store) {
	t.Helper()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, res := range []quiz.Result{
		{ID: "r1", UserID: "stu-1", UserName: "Ada", CompletedAt: base},
		{ID: "r2", UserID: "stu-2", UserName: "Bob", CompletedAt: base.Add(time.Minute)},
	} {
		require.NoError(t, store.SaveResult(context.Background(), res))
	}
}

func TestListResultsScopedByRole(t *testing.T) {
	store := bank.NewInMemoryStore()
	seedResults(t, store)
	r := questionRouter(store)

	// Admin sees everything.
	req := asUser(httptest.NewRequest("GET", "/results", nil), "admin-1", "admin")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var all []quiz.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	// A student is pinned to their own results, even when asking for
	// someone else's.
	req = asUser(httptest.NewRequest("GET", "/results?user_id=stu-2", nil), "stu-1", "student")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var mine []quiz.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "stu-1", mine[0].UserID)
}

func TestGetResultOwnership(t *testing.T) {
	store := bank.NewInMemoryStore()
	seedResults(t, store)
	r := questionRouter(store)

	req := asUser(httptest.NewRequest("GET", "/results/r2", nil), "stu-1", "student")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = asUser(httptest.NewRequest("GET", "/results/r1", nil), "stu-1", "student")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	req = asUser(httptest.NewRequest("GET", "/results/r2", nil), "admin-1", "admin")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)

	req = asUser(httptest.NewRequest("GET", "/results/ghost", nil), "admin-1", "admin")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessionEvents(t *testing.T) {
	store := bank.NewInMemoryStore()
	require.NoError(t, store.SaveEvent(context.Background(), proctor.EventRecord{
		SessionID: "s1", UserID: "stu-1", Type: proctor.EventTabSwitch, Severity: 3,
	}))
	r := questionRouter(store)

	req := asUser(httptest.NewRequest("GET", "/sessions/s1/events", nil), "admin-1", "admin")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	var evs []proctor.EventRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evs))
	require.Len(t, evs, 1)
	assert.Equal(t, proctor.EventTabSwitch, evs[0].Type)

	// Unknown session yields an empty trail, not an error.
	req = asUser(httptest.NewRequest("GET", "/sessions/nope/events", nil), "admin-1", "admin")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}
