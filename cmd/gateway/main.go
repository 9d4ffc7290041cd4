package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/examind/quiz-portal/internal/api/http"
	"github.com/examind/quiz-portal/internal/api/ws"
	"github.com/examind/quiz-portal/internal/auth"
	"github.com/examind/quiz-portal/internal/bank"
	"github.com/examind/quiz-portal/internal/config"
	"github.com/examind/quiz-portal/internal/db"
	"github.com/examind/quiz-portal/internal/rbac"
	"github.com/examind/quiz-portal/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := bank.NewSQLStore(dbh, cfg.DBDriver)
	users := auth.NewUserStore(dbh)

	if err := users.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassword); err != nil {
		log.Fatalf("admin bootstrap: %v", err)
	}

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, users))

	// Live quiz session. The websocket is the whole student flow:
	// questions, timers, proctoring, and submission. It outlives any
	// request timeout, so it gets its own group.
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.With(rbac.Require("quiz:take")).
			Get("/quiz/session", ws.QuizSessionHandler(store, ws.SessionConfig{
				RequireFullscreen: cfg.RequireFullscreen,
				GraceSeconds:      cfg.FullscreenGraceSec,
			}))
	})

	// Protected API (JWT -> subject/role in context -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.Timeout(30 * time.Second))
		pr.Use(auth.JWTMiddleware(authSvc))

		// Question bank (admin)
		pr.With(rbac.Require("question:create")).
			Post("/questions", api.PutQuestionHandler(store))
		pr.With(rbac.Require("question:create")).
			Post("/questions/import", api.ImportQuestionsCSVHandler(store))
		pr.With(rbac.Require("question:list")).
			Get("/questions", api.ListQuestionsHandler(store))
		pr.With(rbac.Require("question:list")).
			Get("/questions/{questionID}", api.GetQuestionHandler(store))
		pr.With(rbac.Require("question:delete")).
			Delete("/questions/{questionID}", api.DeleteQuestionHandler(store))

		// Results
		pr.With(rbac.RequireAny("result:view-own", "result:view-all")).
			Get("/results", api.ListResultsHandler(store))
		pr.With(rbac.RequireAny("result:view-own", "result:view-all")).
			Get("/results/{resultID}", api.GetResultHandler(store))
		pr.With(rbac.Require("proctor:view")).
			Get("/sessions/{sessionID}/events", api.ListSessionEventsHandler(store))

		// User administration
		pr.With(rbac.Require("user:manage")).
			Get("/users", api.ListUsersHandler(users))
		pr.With(rbac.Require("user:manage")).
			Post("/users", api.CreateUserHandler(users))
		pr.With(rbac.Require("user:manage")).
			Post("/users/bulk", api.BulkCreateUsersHandler(users))
		pr.With(rbac.Require("user:manage")).
			Post("/users/bulk-delete", api.BulkDeleteUsersHandler(users))
		pr.With(rbac.Require("user:manage")).
			Patch("/users/{userID}", api.UpdateUserHandler(users))
		pr.With(rbac.Require("user:manage")).
			Delete("/users/{userID}", api.DeleteUserHandler(users))
		pr.With(rbac.Require("user:manage")).
			Post("/users/{userID}/password", api.ResetPasswordHandler(users))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", api.ChangePasswordHandler(users))

		// Question image assets
		pr.Route("/assets", func(ar chi.Router) {
			api.MountAssets(ar, bs)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := dbh.PingContext(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
