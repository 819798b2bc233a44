// Package web serves the outcome dashboard and its JSON API.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/slotbook/internal/auth"
	"github.com/example/slotbook/internal/booking"
	"github.com/example/slotbook/internal/store"
)

//go:embed templates/*.html static/*
var fs embed.FS

type Outcomes interface {
	ListOutcomes(ctx context.Context, f store.Filter) ([]booking.Outcome, error)
	GetOutcome(ctx context.Context, id string) (booking.Outcome, error)
	Ping(ctx context.Context) error
}

type Server struct {
	Auth     *auth.Store
	Outcomes Outcomes
	Log      *slog.Logger
}

type tmplData struct {
	Title string
	User  int64

	Flash    string
	Account  string
	Outcomes []booking.Outcome
	Outcome  booking.Outcome
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.FileServer(http.FS(fs)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	protect := func(h http.HandlerFunc) http.Handler { return s.Auth.RequireAuth(h) }
	mux.Handle("GET /{$}", protect(s.handleHome))
	mux.Handle("GET /outcomes/{id}", protect(s.handleOutcome))
	mux.Handle("GET /outcomes/{id}/screenshot", protect(s.handleScreenshot))
	mux.Handle("GET /api/outcomes", protect(s.handleAPIList))
	mux.Handle("GET /api/outcomes/{id}", protect(s.handleAPIGet))

	return mux
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.Outcomes.Ping(r.Context()); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready\n"))
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	f := filterFromQuery(r)
	outs, err := s.Outcomes.ListOutcomes(r.Context(), f)
	if err != nil {
		s.Log.Error("list outcomes", "err", err)
		http.Error(w, "failed to list outcomes", http.StatusInternalServerError)
		return
	}
	s.render(w, "templates/outcomes.html", tmplData{
		Title:    "Outcomes",
		User:     uid,
		Account:  f.Account,
		Outcomes: outs,
	})
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	o, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.render(w, "templates/outcome.html", tmplData{Title: "Attempt " + o.ID, User: uid, Outcome: o})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	o, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if o.Screenshot == "" {
		http.NotFound(w, r)
		return
	}
	if _, err := os.Stat(o.Screenshot); err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, o.Screenshot)
}

func (s *Server) handleAPIList(w http.ResponseWriter, r *http.Request) {
	outs, err := s.Outcomes.ListOutcomes(r.Context(), filterFromQuery(r))
	if err != nil {
		s.Log.Error("list outcomes", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list outcomes"})
		return
	}
	views := make([]outcomeView, 0, len(outs))
	for _, o := range outs {
		views = append(views, toView(o))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGet(w http.ResponseWriter, r *http.Request) {
	o, err := s.Outcomes.GetOutcome(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		s.Log.Error("get outcome", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load outcome"})
		return
	}
	writeJSON(w, http.StatusOK, toView(o))
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (booking.Outcome, bool) {
	o, err := s.Outcomes.GetOutcome(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return booking.Outcome{}, false
	}
	if err != nil {
		s.Log.Error("get outcome", "err", err)
		http.Error(w, "failed to load outcome", http.StatusInternalServerError)
		return booking.Outcome{}, false
	}
	return o, true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, "templates/login.html", tmplData{Title: "Login"})
		return
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")
		id, err := s.Auth.Authenticate(r.Context(), username, password)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidCredentials) {
				s.Log.Error("authenticate", "err", err)
			}
			s.render(w, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid username/password"})
			return
		}
		if err := s.Auth.SetSession(w, r, id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func filterFromQuery(r *http.Request) store.Filter {
	q := r.URL.Query()
	f := store.Filter{Account: strings.TrimSpace(q.Get("account"))}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		f.Limit = n
	}
	if v, err := strconv.ParseBool(q.Get("success")); err == nil {
		f.Success = &v
	}
	return f
}

type outcomeView struct {
	ID         string    `json:"id"`
	Account    string    `json:"account"`
	Success    bool      `json:"success"`
	State      string    `json:"state"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
	BasketID   string    `json:"basket_id,omitempty"`
	Activity   string    `json:"activity,omitempty"`
	Screenshot bool      `json:"has_screenshot"`
}

func toView(o booking.Outcome) outcomeView {
	return outcomeView{
		ID:         o.ID,
		Account:    o.Account,
		Success:    o.Success,
		State:      string(o.State),
		ErrorKind:  o.ErrorKind,
		ErrorCode:  o.ErrorCode,
		Error:      o.Error,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		DurationMS: o.Duration().Milliseconds(),
		BasketID:   o.BasketID,
		Activity:   o.Activity,
		Screenshot: o.Screenshot != "",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	t, err := template.New("").Funcs(funcs).ParseFS(fs, "templates/base.html", name)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
	}
}

var funcs = template.FuncMap{
	"when": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") },
	"dur":  func(o booking.Outcome) string { return o.Duration().Round(time.Second).String() },
}

func Start(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("dashboard listening", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
