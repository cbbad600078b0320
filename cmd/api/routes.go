package main

import (
	"context"
	"net/http"

	"accountapi/internal/auth"
	"accountapi/internal/config"
	"accountapi/internal/httpx"
	"accountapi/internal/user"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const apiPrefix = "/api/1.0"

type routes struct {
	auth    *auth.HTTPHandler
	users   *user.HTTPHandler
	tokens  httpx.Verifier
	metrics http.Handler
	// ready reports whether dependencies can serve traffic; nil means always.
	ready func(ctx context.Context) error
}

func newRouter(rt routes, cfg config.AppConfig, log zerolog.Logger) http.Handler {
	router := http.NewServeMux()

	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.ready != nil {
			if err := rt.ready(r.Context()); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	metrics := rt.metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.Handle("GET /metrics", metrics)

	router.HandleFunc("POST "+apiPrefix+"/auth", rt.auth.Login)
	router.HandleFunc("POST "+apiPrefix+"/logout", rt.auth.Logout)

	router.HandleFunc("POST "+apiPrefix+"/users", rt.users.Register)
	router.HandleFunc("POST "+apiPrefix+"/users/token/{token}", rt.users.Activate)
	router.HandleFunc("GET "+apiPrefix+"/users", rt.users.List)
	router.HandleFunc("GET "+apiPrefix+"/users/{id}", rt.users.Get)
	router.HandleFunc("PUT "+apiPrefix+"/users/{id}", rt.users.Update)
	router.HandleFunc("DELETE "+apiPrefix+"/users/{id}", rt.users.Delete)
	router.HandleFunc("POST "+apiPrefix+"/user/password", rt.users.RequestPasswordReset)
	router.HandleFunc("PUT "+apiPrefix+"/user/password", rt.users.ResetPassword)

	router.HandleFunc("GET /images/{name}", rt.users.Image)

	return httpx.Chain(router,
		httpx.Recovery(log),
		httpx.RequestIDMiddleware,
		httpx.SecurityHeadersMiddleware(cfg.EnableHSTS),
		httpx.CORSMiddleware(cfg.AllowedOrigins),
		httpx.RequestSizeLimitMiddleware(cfg.MaxBodyBytes),
		httpx.Authenticate(rt.tokens, log),
		httpx.AccessLog(log),
	)
}
