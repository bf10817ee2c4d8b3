package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/coinwork/backend/internal/auth"
	"github.com/coinwork/backend/internal/dashboard"
	"github.com/coinwork/backend/internal/handlers"
	"github.com/coinwork/backend/internal/middleware"
	"github.com/coinwork/backend/internal/models"
)

// Deps is everything the API router mounts.
type Deps struct {
	Auth        *auth.Handler
	Tasks       *handlers.TaskHandler
	Submissions *handlers.SubmissionHandler
	Withdrawals *handlers.WithdrawalHandler
	Payments    *handlers.PaymentHandler
	Dashboard   *dashboard.Handler

	Tokens      middleware.TokenValidator
	Users       middleware.UserLookup
	RateLimiter *middleware.RateLimiter
	Idempotency middleware.IdempotencyStore

	CORSAllowedOrigins []string
	Logger             *slog.Logger
}

// New returns an http.Handler that serves the API under /api/v1.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public: rate limited per client address.
		r.Group(func(r chi.Router) {
			r.Use(d.RateLimiter.Middleware)
			r.Post("/auth/register", d.Auth.Register)
			r.Post("/auth/login", d.Auth.Login)
		})

		// Authenticated: rate limited per user.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(d.Tokens, d.Users))
			r.Use(d.RateLimiter.Middleware)
			mountAPI(r, d)
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins:   d.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.IdempotencyHeader},
		ExposedHeaders:   []string{"Retry-After", "Idempotent-Replayed"},
		AllowCredentials: true,
	}).Handler(r)
}

func mountAPI(r chi.Router, d Deps) {
	buyer := middleware.RequireRole(models.RoleBuyer)
	worker := middleware.RequireRole(models.RoleWorker)
	admin := middleware.RequireRole(models.RoleAdmin)
	idem := middleware.Idempotency(d.Idempotency, d.Logger)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", d.Tasks.ListTasks)
		r.With(buyer, idem).Post("/", d.Tasks.CreateTask)
		r.With(buyer).Get("/mine", d.Tasks.MyTasks)
		r.Get("/{id}", d.Tasks.GetTask)
		r.With(buyer).Patch("/{id}", d.Tasks.UpdateTask)
		r.With(buyer).Delete("/{id}", d.Tasks.DeleteTask)
	})

	r.Route("/submissions", func(r chi.Router) {
		r.With(worker, idem).Post("/", d.Submissions.Create)
		r.With(buyer).Get("/", d.Submissions.ListForReview)
		r.With(worker).Get("/mine", d.Submissions.Mine)
		r.With(buyer).Patch("/{id}/approve", d.Submissions.Approve)
		r.With(buyer).Patch("/{id}/reject", d.Submissions.Reject)
	})

	r.Route("/withdrawals", func(r chi.Router) {
		r.With(worker, idem).Post("/", d.Withdrawals.Create)
		r.With(worker).Get("/mine", d.Withdrawals.Mine)
		r.With(admin).Patch("/{id}/approve", d.Withdrawals.Approve)
		r.With(admin).Patch("/{id}/reject", d.Withdrawals.Reject)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Get("/plans", d.Payments.Plans)
		r.With(buyer, idem).Post("/", d.Payments.Purchase)
		r.Get("/mine", d.Payments.History)
	})

	r.Route("/me", func(r chi.Router) {
		r.Get("/", d.Dashboard.GetMe)
		r.Patch("/", d.Dashboard.UpdateMe)
		r.Get("/ledger", d.Dashboard.MyLedger)
		r.Get("/stats", d.Dashboard.MyStats)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(admin)
		r.Get("/stats", d.Dashboard.AdminStats)
		r.Get("/users", d.Dashboard.ListUsers)
		r.Patch("/users/{id}/role", d.Dashboard.UpdateUserRole)
		r.Delete("/users/{id}", d.Dashboard.RemoveUser)
		r.Get("/tasks", d.Dashboard.ListTasks)
		r.Delete("/tasks/{id}", d.Dashboard.RemoveTask)
		r.Get("/withdrawals", d.Withdrawals.List)
	})
}
