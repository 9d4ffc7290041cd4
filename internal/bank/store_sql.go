package bank

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/examind/quiz-portal/internal/proctor"
	"github.com/examind/quiz-portal/internal/quiz"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) PutQuestion(ctx context.Context, q quiz.Question) error {
	oj, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	created := q.CreatedAt
	if created == 0 {
		created = time.Now().Unix()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions (id,prompt,options_json,correct_index,time_limit_sec,points,image_url,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET prompt=EXCLUDED.prompt, options_json=EXCLUDED.options_json,
			correct_index=EXCLUDED.correct_index, time_limit_sec=EXCLUDED.time_limit_sec,
			points=EXCLUDED.points, image_url=EXCLUDED.image_url`,
		q.ID, q.Prompt, string(oj), q.CorrectIndex, q.TimeLimitSec, q.Points, q.ImageURL, created)
	return err
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (quiz.Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,prompt,options_json,correct_index,time_limit_sec,points,image_url,created_at
		FROM questions WHERE id=$1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return quiz.Question{}, ErrQuestionNotFound
	}
	return q, err
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

func (s *SQLStore) FetchQuestions(ctx context.Context) ([]quiz.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,prompt,options_json,correct_index,time_limit_sec,points,image_url,created_at
		FROM questions ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []quiz.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row scanner) (quiz.Question, error) {
	var q quiz.Question
	var oj string
	if err := row.Scan(&q.ID, &q.Prompt, &oj, &q.CorrectIndex, &q.TimeLimitSec, &q.Points, &q.ImageURL, &q.CreatedAt); err != nil {
		return quiz.Question{}, err
	}
	if err := json.Unmarshal([]byte(oj), &q.Options); err != nil {
		return quiz.Question{}, err
	}
	return q, nil
}

func (s *SQLStore) SaveResult(ctx context.Context, res quiz.Result) error {
	aj, err := json.Marshal(res.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO results (id,user_id,user_name,answers_json,total_points,max_points,percentage,correct_count,total_count,completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		res.ID, res.UserID, res.UserName, string(aj),
		res.TotalPoints, res.MaxPoints, res.Percentage, res.CorrectCount, res.TotalCount,
		res.CompletedAt.Unix())
	return err
}

func (s *SQLStore) GetResult(ctx context.Context, id string) (quiz.Result, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,user_id,user_name,answers_json,total_points,max_points,percentage,correct_count,total_count,completed_at
		FROM results WHERE id=$1`, id)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return quiz.Result{}, ErrResultNotFound
	}
	return res, err
}

func (s *SQLStore) ListResults(ctx context.Context, opts ResultListOpts) ([]quiz.Result, error) {
	q := `SELECT id,user_id,user_name,answers_json,total_points,max_points,percentage,correct_count,total_count,completed_at
		FROM results`
	var args []any
	if opts.UserID != "" {
		q += ` WHERE user_id=$1`
		args = append(args, opts.UserID)
	}
	q += ` ORDER BY completed_at DESC`
	if opts.Limit > 0 {
		q += ` LIMIT ` + strconv.Itoa(opts.Limit)
		if opts.Offset > 0 {
			q += ` OFFSET ` + strconv.Itoa(opts.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []quiz.Result{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanResult(row scanner) (quiz.Result, error) {
	var res quiz.Result
	var aj string
	var completed int64
	if err := row.Scan(&res.ID, &res.UserID, &res.UserName, &aj,
		&res.TotalPoints, &res.MaxPoints, &res.Percentage, &res.CorrectCount, &res.TotalCount,
		&completed); err != nil {
		return quiz.Result{}, err
	}
	if err := json.Unmarshal([]byte(aj), &res.Answers); err != nil {
		return quiz.Result{}, err
	}
	res.CompletedAt = time.Unix(completed, 0).UTC()
	return res, nil
}

func (s *SQLStore) SaveEvent(ctx context.Context, ev proctor.EventRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO proctor_events (session_id,user_id,typ,severity,detail,created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		ev.SessionID, ev.UserID, string(ev.Type), ev.Severity, ev.Detail, ev.CreatedAt.Unix())
	return err
}

func (s *SQLStore) ListEvents(ctx context.Context, sessionID string) ([]proctor.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id,user_id,typ,severity,detail,created_at
		FROM proctor_events WHERE session_id=$1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []proctor.EventRecord{}
	for rows.Next() {
		var ev proctor.EventRecord
		var typ string
		var created int64
		if err := rows.Scan(&ev.SessionID, &ev.UserID, &typ, &ev.Severity, &ev.Detail, &created); err != nil {
			return nil, err
		}
		ev.Type = proctor.EventType(typ)
		ev.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
