package auth_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/examind/quiz-portal/internal/auth"
	"github.com/examind/quiz-portal/internal/db"
)

var testDBSeq int

func openUserStore(t *testing.T) *auth.UserStore {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:userstest%d?mode=memory&cache=shared", testDBSeq)
	h, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	h.SetMaxOpenConns(1)
	t.Cleanup(func() { h.Close() })
	return auth.NewUserStore(h)
}

func TestCreateAndAuthenticate(t *testing.T) {
	s := openUserStore(t)
	ctx := context.Background()

	u, err := s.Create(ctx, auth.NewUser{Username: "ada", Password: "secret1", Role: "student"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == "" || u.Role != "student" {
		t.Fatalf("created user = %+v", u)
	}
	if u.DisplayName != "ada" {
		t.Fatalf("display name should default to username, got %q", u.DisplayName)
	}

	got, err := s.Authenticate(ctx, "ada", "secret1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("authenticated wrong user: %+v", got)
	}

	if _, err := s.Authenticate(ctx, "ada", "wrong"); err == nil {
		t.Fatalf("bad password accepted")
	}
	if _, err := s.Authenticate(ctx, "ghost", "secret1"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("unknown user = %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	s := openUserStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, auth.NewUser{Username: "x", Password: "short", Role: "student"}); err == nil {
		t.Fatalf("short password accepted")
	}
	if _, err := s.Create(ctx, auth.NewUser{Username: "x", Password: "secret1", Role: "superuser"}); err == nil {
		t.Fatalf("invalid role accepted")
	}
	if _, err := s.Create(ctx, auth.NewUser{Username: "", Password: "secret1", Role: "student"}); err == nil {
		t.Fatalf("empty username accepted")
	}

	if _, err := s.Create(ctx, auth.NewUser{Username: "dup", Password: "secret1", Role: "student"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(ctx, auth.NewUser{Username: "dup", Password: "secret2", Role: "student"}); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("duplicate username = %v", err)
	}
}

func TestBulkCreateReportsRowErrors(t *testing.T) {
	s := openUserStore(t)
	ctx := context.Background()

	_, err := s.BulkCreate(ctx, []auth.NewUser{
		{Username: "a1", Password: "secret1", Role: "student"},
		{Username: "a2", Password: "no", Role: "student"}, // too short
	})
	if err == nil {
		t.Fatalf("bulk with bad row must fail")
	}

	// The failed batch must not have been partially applied.
	if _, err := s.Authenticate(ctx, "a1", "secret1"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("partial bulk applied: %v", err)
	}

	users, err := s.BulkCreate(ctx, []auth.NewUser{
		{Username: "b1", Password: "secret1", Role: "student"},
		{Username: "b2", Password: "secret2", Role: "student"},
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("created %d, want 2", len(users))
	}
}

func TestUpdateAndPasswordFlow(t *testing.T) {
	s := openUserStore(t)
	ctx := context.Background()

	u, err := s.Create(ctx, auth.NewUser{Username: "carol", Password: "secret1", Role: "student", DisplayName: "Carol"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Empty fields keep current values.
	got, err := s.Update(ctx, u.ID, "", "", "Carol D.")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Username != "carol" || got.Role != "student" || got.DisplayName != "Carol D." {
		t.Fatalf("update mangled user: %+v", got)
	}

	if err := s.SetPassword(ctx, u.ID, "newsecret"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if _, err := s.Authenticate(ctx, "carol", "secret1"); err == nil {
		t.Fatalf("old password still valid")
	}
	if _, err := s.Authenticate(ctx, "carol", "newsecret"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	if err := s.SetPassword(ctx, "missing", "whatever12"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("set password missing user = %v", err)
	}
}

func TestDeleteAndBulkDelete(t *testing.T) {
	s := openUserStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		u, err := s.Create(ctx, auth.NewUser{Username: fmt.Sprintf("u%d", i), Password: "secret1", Role: "student"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, u.ID)
	}

	if err := s.Delete(ctx, ids[0]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, ids[0]); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("double delete = %v", err)
	}

	// Missing ids are counted out, not fatal.
	n, err := s.BulkDelete(ctx, []string{ids[1], ids[2], "ghost"})
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}

	left, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("users remaining: %+v", left)
	}
}

func TestEnsureAdminBootstrapsOnce(t *testing.T) {
	s := openUserStore(t)
	ctx := context.Background()

	if err := s.EnsureAdmin(ctx, "admin", "changeme99"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	u, err := s.Authenticate(ctx, "admin", "changeme99")
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if u.Role != "admin" {
		t.Fatalf("role = %q", u.Role)
	}

	// Second call with a different password must not clobber.
	if err := s.EnsureAdmin(ctx, "admin", "other-pass"); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if _, err := s.Authenticate(ctx, "admin", "changeme99"); err != nil {
		t.Fatalf("bootstrap password overwritten: %v", err)
	}

	// No password configured, no user created.
	if err := s.EnsureAdmin(ctx, "root", ""); err != nil {
		t.Fatalf("ensure with empty password: %v", err)
	}
	if _, err := s.Authenticate(ctx, "root", ""); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("empty-password admin created: %v", err)
	}
}
