package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/WessleyAI/wessley-pricing/engine/domain"
	"github.com/WessleyAI/wessley-pricing/engine/pricing"
	"github.com/WessleyAI/wessley-pricing/engine/store"
	"github.com/WessleyAI/wessley-pricing/pkg/auth"
	"github.com/WessleyAI/wessley-pricing/pkg/metrics"
)

// --- fakes ---

type stubPredictor struct {
	value float64
	err   error
	calls int
}

func (p *stubPredictor) Predict(_ context.Context, r domain.VehicleRecord) (pricing.Estimate, error) {
	p.calls++
	if err := domain.ValidateRecord(r); err != nil {
		return pricing.Estimate{}, err
	}
	if p.err != nil {
		return pricing.Estimate{}, p.err
	}
	return pricing.Estimate{Value: p.value, Rounded: decimal.NewFromFloat(p.value).Round(2)}, nil
}

type memUsers struct {
	mu     sync.Mutex
	byMail map[string]store.User
}

func (m *memUsers) Create(_ context.Context, email, hash string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(email)
	if _, ok := m.byMail[email]; ok {
		return store.User{}, store.ErrDuplicate
	}
	u := store.User{ID: int64(len(m.byMail) + 1), Email: email, Password: hash, CreatedAt: time.Now()}
	m.byMail[email] = u
	return u, nil
}

func (m *memUsers) ByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byMail[strings.ToLower(email)]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

type memPredictions struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]store.Prediction
	err    error
}

func (m *memPredictions) Save(_ context.Context, p store.Prediction) (store.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return store.Prediction{}, m.err
	}
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	m.rows[p.ID] = p
	return p, nil
}

func (m *memPredictions) List(_ context.Context, owner int64, limit, offset int) ([]store.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Prediction
	for _, p := range m.rows {
		if p.OwnerID == owner {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPredictions) Get(_ context.Context, owner, id int64) (store.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.OwnerID != owner {
		return store.Prediction{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memPredictions) Delete(_ context.Context, owner, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.OwnerID != owner {
		return store.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type recordingEvents struct {
	mu   sync.Mutex
	got  []store.PredictionCreated
	fail error
}

func (e *recordingEvents) Publish(_ context.Context, ev store.PredictionCreated) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, ev)
	return e.fail
}

// --- harness ---

type harness struct {
	t           *testing.T
	srv         *server
	handler     http.Handler
	predictor   *stubPredictor
	predictions *memPredictions
	events      *recordingEvents
	ready       bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		t:           t,
		predictor:   &stubPredictor{value: 23499.876},
		predictions: &memPredictions{rows: map[int64]store.Prediction{}},
		events:      &recordingEvents{},
	}
	h.srv = &server{
		predictor:   h.predictor,
		users:       &memUsers{byMail: map[string]store.User{}},
		predictions: h.predictions,
		events:      h.events,
		tokens:      tokens,
		ready:       func() bool { return h.ready },
		reg:         metrics.NewBare(),
		logger:      slog.New(slog.DiscardHandler),
	}
	h.handler = h.srv.routes(Config{CORSOrigin: "*"})
	return h
}

func (h *harness) do(method, path, token, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

// signup registers email and returns a bearer token for it.
func (h *harness) signup(email string) string {
	h.t.Helper()
	rec := h.do("POST", "/users", "", "application/json", `{"email":"`+email+`","password":"s3cret-pass"}`)
	if rec.Code != http.StatusCreated {
		h.t.Fatalf("signup: %d %s", rec.Code, rec.Body.String())
	}
	form := url.Values{"username": {email}, "password": {"s3cret-pass"}}
	rec = h.do("POST", "/login", "", "application/x-www-form-urlencoded", form.Encode())
	if rec.Code != http.StatusOK {
		h.t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		h.t.Fatal(err)
	}
	return resp["access_token"]
}

const toyotaBody = `{"Brand":"Toyota","Year":2015,"UsedOrNew":"USED","Transmission":"Automatic",
"DriveType":"AWD","FuelType":"Diesel","FuelConsumption":7.5,"Kilometres":80000,
"CylindersinEngine":4,"BodyType":"Sedan","Doors":4,"Seats":5}`

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

// --- tests ---

func TestHealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealth(rec, httptest.NewRequest("GET", "/healthcheck", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
}

func TestReadyz(t *testing.T) {
	h := newHarness(t)
	if rec := h.do("GET", "/readyz", "", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before load, got %d", rec.Code)
	}
	h.ready = true
	if rec := h.do("GET", "/readyz", "", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after load, got %d", rec.Code)
	}
}

func TestCreateUser(t *testing.T) {
	h := newHarness(t)

	rec := h.do("POST", "/users", "", "application/json", `{"email":"A@Example.com","password":"longenough"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("password leaked: %s", rec.Body.String())
	}

	rec = h.do("POST", "/users", "", "application/json", `{"email":"a@example.com","password":"longenough"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rec.Code)
	}

	for name, body := range map[string]string{
		"weak password": `{"email":"b@example.com","password":"short"}`,
		"bad email":     `{"email":"nobody","password":"longenough"}`,
	} {
		if rec := h.do("POST", "/users", "", "application/json", body); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", name, rec.Code)
		}
	}
	if rec := h.do("POST", "/users", "", "application/json", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on bad JSON, got %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	token := h.signup("driver@example.com")
	if token == "" {
		t.Fatal("empty token")
	}

	rec := h.do("POST", "/login", "", "application/json", `{"username":"driver@example.com","password":"s3cret-pass"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("JSON login: expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["token_type"] != "bearer" {
		t.Fatalf("token_type = %q", resp["token_type"])
	}

	bad := url.Values{"username": {"driver@example.com"}, "password": {"wrong-pass"}}
	if rec := h.do("POST", "/login", "", "application/x-www-form-urlencoded", bad.Encode()); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong password: expected 403, got %d", rec.Code)
	}
	unknown := url.Values{"username": {"ghost@example.com"}, "password": {"whatever1"}}
	if rec := h.do("POST", "/login", "", "application/x-www-form-urlencoded", unknown.Encode()); rec.Code != http.StatusForbidden {
		t.Fatalf("unknown user: expected 403, got %d", rec.Code)
	}
	if rec := h.do("POST", "/login", "", "application/x-www-form-urlencoded", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty form: expected 422, got %d", rec.Code)
	}
}

func TestPredictRequiresToken(t *testing.T) {
	h := newHarness(t)
	rec := h.do("POST", "/predict", "", "application/json", toyotaBody)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := h.do("GET", "/predict", "not-a-token", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", rec.Code)
	}
	if h.predictor.calls != 0 {
		t.Fatal("predictor called without auth")
	}
}

func TestPredict(t *testing.T) {
	h := newHarness(t)
	token := h.signup("driver@example.com")

	rec := h.do("POST", "/predict", token, "application/json", toyotaBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Prediction []float64 `json:"prediction"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Prediction) != 1 || resp.Prediction[0] != 23499.876 {
		t.Fatalf("prediction = %v", resp.Prediction)
	}

	saved, err := h.predictions.Get(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("prediction not persisted: %v", err)
	}
	if saved.PredictionPrice.String() != "23499.88" || saved.Brand != "Toyota" || saved.CylinderInEngine != 4 {
		t.Fatalf("saved %+v", saved)
	}
	if len(h.events.got) != 1 || h.events.got[0].PredictionID != 1 || h.events.got[0].OwnerID != 1 {
		t.Fatalf("events = %+v", h.events.got)
	}

	if rec := h.do("POST", "/predict/", token, "application/json", toyotaBody); rec.Code != http.StatusCreated {
		t.Fatalf("trailing slash: expected 201, got %d", rec.Code)
	}
}

func TestPredictRejections(t *testing.T) {
	h := newHarness(t)
	token := h.signup("driver@example.com")

	newWithKm := strings.Replace(strings.Replace(toyotaBody, `"USED"`, `"NEW"`, 1), `80000`, `5000`, 1)
	missing := strings.Replace(toyotaBody, `"Seats":5`, `"Other":5`, 1)
	wrongType := strings.Replace(toyotaBody, `"Year":2015`, `"Year":"2015"`, 1)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"new with distance", newWithKm, http.StatusUnprocessableEntity},
		{"missing field", missing, http.StatusUnprocessableEntity},
		{"wrong type", wrongType, http.StatusUnprocessableEntity},
		{"malformed", `{"Brand":`, http.StatusBadRequest},
	}
	for _, c := range cases {
		rec := h.do("POST", "/predict", token, "application/json", c.body)
		if rec.Code != c.code {
			t.Fatalf("%s: expected %d, got %d: %s", c.name, c.code, rec.Code, rec.Body.String())
		}
		if errorMessage(t, rec) == "" {
			t.Fatalf("%s: empty error message", c.name)
		}
	}
	if len(h.predictions.rows) != 0 || len(h.events.got) != 0 {
		t.Fatal("rejected requests were persisted or published")
	}
}

func TestPredictErrorMapping(t *testing.T) {
	h := newHarness(t)
	token := h.signup("driver@example.com")

	h.predictor.err = pricing.ErrUnseenCategory
	if rec := h.do("POST", "/predict", token, "application/json", toyotaBody); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unseen category: expected 422, got %d", rec.Code)
	}

	h.predictor.err = pricing.ErrArtifactNotFound
	rec := h.do("POST", "/predict", token, "application/json", toyotaBody)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("missing artifact: expected 500, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "internal server error" {
		t.Fatalf("internal detail leaked: %q", msg)
	}

	h.predictor.err = nil
	h.predictions.err = errors.New("db down")
	if rec := h.do("POST", "/predict", token, "application/json", toyotaBody); rec.Code != http.StatusInternalServerError {
		t.Fatalf("store failure: expected 500, got %d", rec.Code)
	}
}

func TestPredictSurvivesEventFailure(t *testing.T) {
	h := newHarness(t)
	token := h.signup("driver@example.com")
	h.events.fail = errors.New("nats unavailable")

	if rec := h.do("POST", "/predict", token, "application/json", toyotaBody); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 despite publish failure, got %d", rec.Code)
	}
}

func TestListPredictions(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice@example.com")
	bob := h.signup("bob@example.com")

	if rec := h.do("GET", "/predict", alice, "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("empty list: expected 404, got %d", rec.Code)
	}

	for i := 0; i < 3; i++ {
		h.do("POST", "/predict", alice, "application/json", toyotaBody)
	}
	h.do("POST", "/predict", bob, "application/json", toyotaBody)

	rec := h.do("GET", "/predict?limit=2", alice, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []store.Prediction
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 2 {
		t.Fatalf("page = %+v", got)
	}
	for _, p := range got {
		if p.OwnerID != 1 {
			t.Fatalf("foreign prediction in list: %+v", p)
		}
	}

	rec = h.do("GET", "/predict?offset=2", alice, "", "")
	got = nil
	json.NewDecoder(rec.Body).Decode(&got)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("offset page = %+v", got)
	}

	for _, q := range []string{"limit=0", "limit=abc", "limit=5000", "offset=-1"} {
		if rec := h.do("GET", "/predict?"+q, alice, "", ""); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", q, rec.Code)
		}
	}
}

func TestGetAndDeletePrediction(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice@example.com")
	bob := h.signup("bob@example.com")
	h.do("POST", "/predict", alice, "application/json", toyotaBody)

	rec := h.do("GET", "/predict/1", alice, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var p store.Prediction
	json.NewDecoder(rec.Body).Decode(&p)
	if p.ID != 1 || p.DriveType != "AWD" {
		t.Fatalf("got %+v", p)
	}

	if rec := h.do("GET", "/predict/1", bob, "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign get: expected 404, got %d", rec.Code)
	}
	if rec := h.do("DELETE", "/predict/1", bob, "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: expected 404, got %d", rec.Code)
	}
	if rec := h.do("GET", "/predict/abc", alice, "", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad id: expected 422, got %d", rec.Code)
	}

	if rec := h.do("DELETE", "/predict/1", alice, "", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if rec := h.do("GET", "/predict/1", alice, "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("after delete: expected 404, got %d", rec.Code)
	}
	if rec := h.do("DELETE", "/predict/1", alice, "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestMiddlewareStack(t *testing.T) {
	h := newHarness(t)

	rec := h.do("OPTIONS", "/predict", "", "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}

	rec = h.do("GET", "/healthcheck", "", "", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id")
	}

	rec = h.do("GET", "/metrics", "", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `pricing_http_requests_total{code="200",method="GET",route="/healthcheck"}`) {
		t.Fatalf("request counter missing from exposition:\n%s", rec.Body.String())
	}
}

func TestRateLimited(t *testing.T) {
	h := newHarness(t)
	handler := h.srv.routes(Config{CORSOrigin: "*", RateLimitRPS: 0.001, RateLimitBurst: 1})

	codes := make([]int, 2)
	for i := range codes {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthcheck", nil))
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestRouteOf(t *testing.T) {
	cases := map[string]string{
		"/healthcheck": "/healthcheck",
		"/predict":     "/predict",
		"/predict/":    "/predict",
		"/predict/42":  "/predict/{id}",
		"/predict/4/x": "other",
		"/nope":        "other",
	}
	for path, want := range cases {
		if got := routeOf(httptest.NewRequest("GET", path, nil)); got != want {
			t.Fatalf("routeOf(%s) = %s, want %s", path, got, want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" || cfg.CORSOrigin != "*" || cfg.TokenTTLMin != 30 || !cfg.WarmArtifacts {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.tokenTTL() != 30*time.Minute {
		t.Fatalf("ttl = %v", cfg.tokenTTL())
	}

	t.Setenv("PORT", "9000")
	t.Setenv("MODEL_PATH", "/models/m.json")
	t.Setenv("RATE_LIMIT_RPS", "12.5")
	t.Setenv("LOG_LEVEL", "debug")
	cfg, err = loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9000" || cfg.artifactPaths().Model != "/models/m.json" || cfg.RateLimitRPS != 12.5 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.logLevel() != slog.LevelDebug {
		t.Fatalf("log level = %v", cfg.logLevel())
	}
}
