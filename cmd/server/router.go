package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vietguard/vietguard-api/internal/api"
	apiMiddleware "github.com/vietguard/vietguard-api/internal/api/middleware"
)

// setupRouter creates the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:         300,
	}))

	maxUpload := app.config.Server.MaxUploadBytes
	memberHandler := api.NewMemberHandler(app.memberService, app.taskService, maxUpload, app.logger)
	serviceHandler := api.NewServiceHandler(
		app.scanner,
		app.taskService,
		app.downloadService,
		app.historyRecorder,
		maxUpload,
		app.logger,
	)
	externalHandler := api.NewExternalHandler(app.scanner, app.logger)
	accessLogHandler := api.NewAccessLogHandler(app.accessLogService, app.logger)

	var pinger api.Pinger
	if app.db != nil {
		pinger = app.db
	}
	healthHandler := api.NewHealthHandler(pinger, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/members", func(r chi.Router) {
			r.Post("/send-otp", memberHandler.SendOTP)
			r.Post("/verify-otp", memberHandler.VerifyOTP)
			r.Post("/submit-info", memberHandler.SubmitUserInfo)
			r.Post("/create-with-service", memberHandler.CreateMemberWithService)
			r.Post("/tasks", memberHandler.CreateTask)
			r.Get("/verifications", memberHandler.ListVerifications)
			r.Get("/{email}/can-scan", memberHandler.CanScan)
			r.Get("/{email}", memberHandler.GetMemberInfo)
		})

		r.Route("/service", func(r chi.Router) {
			r.Post("/app-total-go", serviceHandler.SubmitAppTotalGo)
			r.Get("/app-total-go/status/{id}", serviceHandler.GetStatus)
			r.Get("/app-total-go/files/{id}", serviceHandler.GetFiles)
			r.Get("/app-total-go/history", serviceHandler.GetHistory)
			r.Get("/app-total-go/download/{token}", serviceHandler.Download)
			r.Get("/tasks/{id}/history", serviceHandler.GetTaskHistory)
		})

		r.Post("/external/members", externalHandler.CreateMember)
		r.Get("/external/members", externalHandler.ListMembers)
		r.Post("/external/members/services", externalHandler.AssignServices)
		r.Get("/dealers/export-service-usage-logs", externalHandler.ExportServiceUsageLogs)
	})

	r.Route("/access-logs", func(r chi.Router) {
		r.Post("/record", accessLogHandler.Record)
		r.Get("/", accessLogHandler.List)
		r.Get("/count", accessLogHandler.Count)
	})

	r.Get("/health", healthHandler.Health)

	return r
}
