package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/WessleyAI/wessley-pricing/engine/domain"
	"github.com/WessleyAI/wessley-pricing/engine/pricing"
	"github.com/WessleyAI/wessley-pricing/engine/store"
	"github.com/WessleyAI/wessley-pricing/pkg/auth"
	"github.com/WessleyAI/wessley-pricing/pkg/metrics"
	"github.com/WessleyAI/wessley-pricing/pkg/mid"
	"github.com/WessleyAI/wessley-pricing/pkg/repo"
)

const (
	maxBodyBytes = 1 << 20
	maxPageSize  = 1000
)

type predictor interface {
	Predict(ctx context.Context, r domain.VehicleRecord) (pricing.Estimate, error)
}

type userStore interface {
	Create(ctx context.Context, email, passwordHash string) (store.User, error)
	ByEmail(ctx context.Context, email string) (store.User, error)
}

type predictionStore interface {
	Save(ctx context.Context, p store.Prediction) (store.Prediction, error)
	List(ctx context.Context, owner int64, limit, offset int) ([]store.Prediction, error)
	Get(ctx context.Context, owner, id int64) (store.Prediction, error)
	Delete(ctx context.Context, owner, id int64) error
}

type eventPublisher interface {
	Publish(ctx context.Context, e store.PredictionCreated) error
}

// server holds the handler dependencies.
type server struct {
	predictor   predictor
	users       userStore
	predictions predictionStore
	events      eventPublisher
	tokens      *auth.Tokens
	ready       func() bool
	reg         *metrics.Registry
	logger      *slog.Logger
}

func (s *server) routes(cfg Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.reg.Handler())
	mux.HandleFunc("POST /users", s.handleCreateUser)
	mux.HandleFunc("POST /login", s.handleLogin)

	authed := s.tokens.Require()
	for _, p := range []string{"/predict", "/predict/{$}"} {
		mux.Handle("POST "+p, authed(http.HandlerFunc(s.handlePredict)))
		mux.Handle("GET "+p, authed(http.HandlerFunc(s.handleListPredictions)))
	}
	mux.Handle("GET /predict/{id}", authed(http.HandlerFunc(s.handleGetPrediction)))
	mux.Handle("DELETE /predict/{id}", authed(http.HandlerFunc(s.handleDeletePrediction)))

	return mid.Chain(mux,
		mid.Recover(s.logger),
		mid.RequestID(),
		mid.Logger(s.logger),
		mid.Metrics(s.reg, routeOf),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		mid.OTel("wessley-pricing"),
	)
}

// routeOf maps a request path to its route pattern for metric labels.
func routeOf(r *http.Request) string {
	p := strings.TrimSuffix(r.URL.Path, "/")
	switch p {
	case "/healthcheck", "/readyz", "/metrics", "/users", "/login", "/predict":
		return p
	}
	if rest, ok := strings.CutPrefix(p, "/predict/"); ok && !strings.Contains(rest, "/") {
		return "/predict/{id}"
	}
	return "other"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error from the engine or the stores to a response.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		mid.WriteJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicate):
		mid.WriteJSONError(w, http.StatusConflict, "email already registered")
	case pricing.Classify(err) == pricing.ClassClient:
		mid.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled):
		s.logger.Info("request canceled", "path", r.URL.Path, "request_id", mid.RequestIDFrom(r.Context()))
		mid.WriteJSONError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "err", err, "request_id", mid.RequestIDFrom(r.Context()))
		mid.WriteJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready == nil || !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		mid.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if at := strings.IndexByte(req.Email, '@'); at <= 0 || at == len(req.Email)-1 {
		mid.WriteJSONError(w, http.StatusUnprocessableEntity, "invalid email address")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		mid.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.users.Create(r.Context(), req.Email, hash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// loginCredentials reads username/password from a form body or a JSON body.
func loginCredentials(r *http.Request) (user, pass string, err error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", "", err
		}
		if body.Username == "" {
			body.Username = body.Email
		}
		return body.Username, body.Password, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", "", err
	}
	return r.PostFormValue("username"), r.PostFormValue("password"), nil
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	user, pass, err := loginCredentials(r)
	if err != nil {
		mid.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if user == "" || pass == "" {
		mid.WriteJSONError(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	u, err := s.users.ByEmail(r.Context(), user)
	if err == nil {
		err = auth.CheckPassword(u.Password, pass)
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, auth.ErrBadPassword) {
		mid.WriteJSONError(w, http.StatusForbidden, "Invalid Credentials")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (s *server) handlePredict(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		mid.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := domain.DecodeRecord(body)
	if err != nil {
		if errors.Is(err, domain.ErrSchemaMismatch) {
			mid.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		} else {
			mid.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		}
		return
	}

	est, err := s.predictor.Predict(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	saved, err := s.predictions.Save(r.Context(), store.NewPrediction(claims.UserID, rec, est.Rounded))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Publisher failures are logged by the publisher.
	_ = s.events.Publish(r.Context(), store.NewPredictionCreated(saved))

	writeJSON(w, http.StatusCreated, map[string][]float64{"prediction": {est.Value}})
}

// pageParams reads limit and offset from the query string.
func pageParams(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit, offset = repo.DefaultLimit, 0
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 || limit > maxPageSize {
			return 0, 0, errors.New("limit must be between 1 and 1000")
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func (s *server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	limit, offset, err := pageParams(r)
	if err != nil {
		mid.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	ps, err := s.predictions.List(r.Context(), claims.UserID, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(ps) == 0 {
		mid.WriteJSONError(w, http.StatusNotFound, "no predictions for this user")
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func predictionID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	id, ok := predictionID(r)
	if !ok {
		mid.WriteJSONError(w, http.StatusUnprocessableEntity, "prediction id must be a positive integer")
		return
	}
	p, err := s.predictions.Get(r.Context(), claims.UserID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleDeletePrediction(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	id, ok := predictionID(r)
	if !ok {
		mid.WriteJSONError(w, http.StatusUnprocessableEntity, "prediction id must be a positive integer")
		return
	}
	if err := s.predictions.Delete(r.Context(), claims.UserID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
