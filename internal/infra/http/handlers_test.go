package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"veritag/internal/config"
	"veritag/internal/domain"
	"veritag/internal/usecase"
)

type memTagRepo struct {
	mu   sync.Mutex
	tags map[string]*domain.Tag
}

func newMemTagRepo(tags ...domain.Tag) *memTagRepo {
	repo := &memTagRepo{tags: make(map[string]*domain.Tag)}
	for i := range tags {
		tag := tags[i]
		repo.tags[tag.Identifier] = &tag
	}
	return repo
}

func (m *memTagRepo) FindByIdentifier(ctx context.Context, identifier string) (*domain.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.tags[identifier]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *tag
	out.History = append([]domain.ScanEvent(nil), tag.History...)
	return &out, nil
}

func (m *memTagRepo) Create(ctx context.Context, tag domain.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tags[tag.Identifier]; ok {
		return domain.ErrAlreadyExists
	}
	m.tags[tag.Identifier] = &tag
	return nil
}

func (m *memTagRepo) Upsert(ctx context.Context, tag domain.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tags[tag.Identifier]
	if !ok {
		m.tags[tag.Identifier] = &tag
		return nil
	}
	existing.Name = tag.Name
	existing.Batch = tag.Batch
	existing.TrustedSource = tag.TrustedSource
	return nil
}

func (m *memTagRepo) SetActive(ctx context.Context, identifier string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.tags[identifier]
	if !ok {
		return domain.ErrNotFound
	}
	tag.Active = active
	return nil
}

func (m *memTagRepo) CompareAndUpdate(ctx context.Context, identifier string, expectedCounter, newCounter int64, event domain.ScanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.tags[identifier]
	if !ok {
		return domain.ErrNotFound
	}
	if tag.ScanCounter != expectedCounter {
		return domain.ErrConflict
	}
	tag.ScanCounter = newCounter
	tag.History = append(tag.History, event)
	return nil
}

type memAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (m *memAuditRepo) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return event, nil
}

func (m *memAuditRepo) ListByTarget(ctx context.Context, targetID string) ([]domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEvent
	for _, ev := range m.events {
		if ev.TargetID == targetID {
			out = append(out, ev)
		}
	}
	return out, nil
}

type stubLimiter struct {
	decision domain.RateLimitDecision
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	return s.decision, nil
}

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

const httpTestIdentifier = "04D1E2F3A4B5C6"

var httpTestNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T, repo *memTagRepo, audit *memAuditRepo, limiter domain.RateLimiter, cfg config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	emitter := &usecase.AuditEmitter{Repo: audit, Clock: stubClock{now: httpTestNow}}
	verify := &usecase.VerifyScan{
		Tags:   repo,
		Waiver: nil,
		Audit:  emitter,
		Clock:  stubClock{now: httpTestNow},
	}
	register := &usecase.RegisterTag{
		Tags:  repo,
		Audit: emitter,
		Clock: stubClock{now: httpTestNow},
	}
	return NewServer(cfg, ServerDeps{
		Verify:      verify,
		Register:    register,
		Tags:        repo,
		Audit:       emitter,
		AuditLog:    audit,
		RateLimiter: limiter,
	})
}

func postJSON(t *testing.T, server *Server, path string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	server.r.ServeHTTP(w, req)
	return w
}

func TestVerifyEndpoint_Success(t *testing.T) {
	secret := "0badc0ffee0badc0ffee0badc0ffee0badc0ffee0badc0ffee0badc0ffee0bad"
	manufactured := httpTestNow.Add(-72 * time.Hour)
	repo := newMemTagRepo(domain.Tag{
		Identifier:     httpTestIdentifier,
		Name:           "Reserva Especial",
		Batch:          "L-2026-04",
		SecretDigest:   secret,
		ScanCounter:    3,
		Active:         true,
		ManufacturedAt: &manufactured,
	})
	audit := &memAuditRepo{}
	server := newTestServer(t, repo, audit, nil, config.Config{})

	counter := int64(4)
	w := postJSON(t, server, "/v1/tags:verify", verifyRequest{
		Identifier: httpTestIdentifier,
		Signature:  usecase.ComputeScanSignature(secret, httpTestIdentifier, "4"),
		Counter:    &counter,
		Location:   "Lisbon",
	}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, strings.TrimSpace(w.Body.String()))
	}
	var resp verifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || !resp.Authentic {
		t.Fatalf("expected authentic response, got %+v", resp)
	}
	if resp.Product.ScanCount != 4 {
		t.Fatalf("expected scan_count 4, got %d", resp.Product.ScanCount)
	}
	if resp.Product.AgeInDays == nil || *resp.Product.AgeInDays != 3 {
		t.Fatalf("expected age_in_days 3, got %v", resp.Product.AgeInDays)
	}
	if resp.Product.Status != "Valido" {
		t.Fatalf("unexpected status: %s", resp.Product.Status)
	}
	if resp.Verification.Timestamp != httpTestNow.Format(time.RFC3339) {
		t.Fatalf("unexpected timestamp: %s", resp.Verification.Timestamp)
	}
}

func TestVerifyEndpoint_InvalidIdentifier(t *testing.T) {
	server := newTestServer(t, newMemTagRepo(), &memAuditRepo{}, nil, config.Config{})
	w := postJSON(t, server, "/v1/tags:verify", verifyRequest{Identifier: "zzzz"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	assertErrorCode(t, w.Body.Bytes(), "INVALID_IDENTIFIER")
}

func TestVerifyEndpoint_InvalidJSON(t *testing.T) {
	server := newTestServer(t, newMemTagRepo(), &memAuditRepo{}, nil, config.Config{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/tags:verify", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	server.r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	assertErrorCode(t, w.Body.Bytes(), "INVALID_JSON")
}

func TestVerifyEndpoint_NotFound(t *testing.T) {
	server := newTestServer(t, newMemTagRepo(), &memAuditRepo{}, nil, config.Config{})
	w := postJSON(t, server, "/v1/tags:verify", verifyRequest{Identifier: httpTestIdentifier}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	assertErrorCode(t, w.Body.Bytes(), "TAG_NOT_FOUND")
}

// Replayed counters and bad signatures must be indistinguishable to the
// caller: same status, same code, same details.
func TestVerifyEndpoint_GenericForbidden(t *testing.T) {
	secret := "5ecre75ecre75ecre75ecre75ecre75ecre75ecre75ecre75ecre75ecre75ec7"
	repo := newMemTagRepo(domain.Tag{
		Identifier:   httpTestIdentifier,
		Name:         "Reserva Especial",
		SecretDigest: secret,
		ScanCounter:  5,
		Active:       true,
	})
	server := newTestServer(t, repo, &memAuditRepo{}, nil, config.Config{})

	stale := int64(5)
	replayed := postJSON(t, server, "/v1/tags:verify", verifyRequest{
		Identifier: httpTestIdentifier,
		Signature:  usecase.ComputeScanSignature(secret, httpTestIdentifier, "5"),
		Counter:    &stale,
	}, nil)

	next := int64(6)
	forged := postJSON(t, server, "/v1/tags:verify", verifyRequest{
		Identifier: httpTestIdentifier,
		Signature:  strings.Repeat("ab", 32),
		Counter:    &next,
	}, nil)

	for name, w := range map[string]*httptest.ResponseRecorder{"replayed counter": replayed, "forged signature": forged} {
		if w.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", name, w.Code)
		}
		assertErrorCode(t, w.Body.Bytes(), "VERIFICATION_FAILED")
	}
	if replayed.Body.String() != forged.Body.String() {
		t.Fatalf("rejection bodies differ:\n%s\n%s", replayed.Body.String(), forged.Body.String())
	}
}

func TestVerifyEndpoint_RateLimited(t *testing.T) {
	repo := newMemTagRepo(domain.Tag{Identifier: httpTestIdentifier, Active: true})
	limiter := &stubLimiter{decision: domain.RateLimitDecision{
		Allowed:   false,
		Limit:     10,
		Remaining: 0,
		ResetAt:   httpTestNow.Add(30 * time.Second),
	}}
	server := newTestServer(t, repo, &memAuditRepo{}, limiter, config.Config{
		RateLimitRequests:      10,
		RateLimitWindowSeconds: 60,
	})

	w := postJSON(t, server, "/v1/tags:verify", verifyRequest{Identifier: httpTestIdentifier}, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	assertErrorCode(t, w.Body.Bytes(), "RATE_LIMITED")
	if got := w.Header().Get("RateLimit-Limit"); got != "10" {
		t.Fatalf("expected RateLimit-Limit 10, got %q", got)
	}
	if got := w.Header().Get("RateLimit-Reset"); got != strconv.FormatInt(httpTestNow.Add(30*time.Second).Unix(), 10) {
		t.Fatalf("unexpected RateLimit-Reset: %q", got)
	}
}

func TestAdminRegister_DisclosesSecretOnce(t *testing.T) {
	repo := newMemTagRepo()
	server := newTestServer(t, repo, &memAuditRepo{}, nil, config.Config{AdminAPIKey: "sesame"})

	w := postJSON(t, server, "/v1/admin/tags", adminTagRequest{
		Identifier:     "04:d1:e2:f3:a4:b5:c6",
		Name:           "Reserva Especial",
		Batch:          "L-2026-04",
		ManufacturedAt: "2026-03-01T00:00:00Z",
	}, map[string]string{"X-Admin-Key": "sesame"})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, strings.TrimSpace(w.Body.String()))
	}
	var resp adminTagResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Identifier != httpTestIdentifier {
		t.Fatalf("expected canonical identifier, got %s", resp.Identifier)
	}
	if resp.Secret == "" {
		t.Fatal("expected secret in registration response")
	}

	read := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/tags/"+httpTestIdentifier, nil)
	req.Header.Set("X-Admin-Key", "sesame")
	server.r.ServeHTTP(read, req)
	if read.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", read.Code)
	}
	var fetched adminTagResponse
	if err := json.Unmarshal(read.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if fetched.Secret != "" {
		t.Fatal("secret must not appear outside registration")
	}
}

func TestAdminAuth(t *testing.T) {
	server := newTestServer(t, newMemTagRepo(), &memAuditRepo{}, nil, config.Config{AdminAPIKey: "sesame"})

	w := postJSON(t, server, "/v1/admin/tags", adminTagRequest{Identifier: httpTestIdentifier}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	w = postJSON(t, server, "/v1/admin/tags", adminTagRequest{Identifier: httpTestIdentifier},
		map[string]string{"X-Admin-Key": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", w.Code)
	}

	disabled := newTestServer(t, newMemTagRepo(), &memAuditRepo{}, nil, config.Config{})
	w = postJSON(t, disabled, "/v1/admin/tags", adminTagRequest{Identifier: httpTestIdentifier},
		map[string]string{"X-Admin-Key": "anything"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when admin key unset, got %d", w.Code)
	}
	assertErrorCode(t, w.Body.Bytes(), "ADMIN_DISABLED")
}

func TestAdminDeactivateReactivate(t *testing.T) {
	repo := newMemTagRepo(domain.Tag{Identifier: httpTestIdentifier, Active: true})
	audit := &memAuditRepo{}
	server := newTestServer(t, repo, audit, nil, config.Config{AdminAPIKey: "sesame"})
	headers := map[string]string{"X-Admin-Key": "sesame"}

	w := postJSON(t, server, "/v1/admin/tags/"+httpTestIdentifier+"/deactivate", struct{}{}, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	tag, err := repo.FindByIdentifier(context.Background(), httpTestIdentifier)
	if err != nil {
		t.Fatalf("find tag: %v", err)
	}
	if tag.Active {
		t.Fatal("expected deactivated tag")
	}

	verify := postJSON(t, server, "/v1/tags:verify", verifyRequest{Identifier: httpTestIdentifier}, nil)
	if verify.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for inactive tag, got %d", verify.Code)
	}

	w = postJSON(t, server, "/v1/admin/tags/"+httpTestIdentifier+"/reactivate", struct{}{}, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	tag, err = repo.FindByIdentifier(context.Background(), httpTestIdentifier)
	if err != nil {
		t.Fatalf("find tag: %v", err)
	}
	if !tag.Active {
		t.Fatal("expected reactivated tag")
	}

	events, err := audit.ListByTarget(context.Background(), httpTestIdentifier)
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	var sawDeactivate, sawReactivate bool
	for _, ev := range events {
		switch ev.EventType {
		case domain.AuditEventTagDeactivated:
			sawDeactivate = true
		case domain.AuditEventTagReactivated:
			sawReactivate = true
		}
	}
	if !sawDeactivate || !sawReactivate {
		t.Fatalf("missing lifecycle audit events: %+v", events)
	}
}

func TestTagHistoryAndAudit(t *testing.T) {
	scanned := httpTestNow.Add(-time.Hour)
	repo := newMemTagRepo(domain.Tag{
		Identifier:  httpTestIdentifier,
		ScanCounter: 1,
		Active:      true,
		History: []domain.ScanEvent{
			{Identifier: httpTestIdentifier, Counter: 1, ScannedAt: scanned, Location: "Porto", SourceIP: "203.0.113.9"},
		},
	})
	audit := &memAuditRepo{}
	audit.Append(context.Background(), domain.AuditEvent{
		EventType: domain.AuditEventScanRejected,
		TargetID:  httpTestIdentifier,
		Result:    domain.AuditResultFailure,
		ErrorCode: "COUNTER_REPLAY",
		CreatedAt: httpTestNow,
	})
	server := newTestServer(t, repo, audit, nil, config.Config{AdminAPIKey: "sesame"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/tags/"+httpTestIdentifier+"/history", nil)
	req.Header.Set("X-Admin-Key", "sesame")
	server.r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var history []scanEventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 || history[0].Location != "Porto" {
		t.Fatalf("unexpected history: %+v", history)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/tags/"+httpTestIdentifier+"/audit", nil)
	req.Header.Set("X-Admin-Key", "sesame")
	server.r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var trail []auditEventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &trail); err != nil {
		t.Fatalf("decode audit trail: %v", err)
	}
	if len(trail) != 1 || trail[0].ErrorCode != "COUNTER_REPLAY" {
		t.Fatalf("unexpected audit trail: %+v", trail)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, newMemTagRepo(), &memAuditRepo{}, nil, config.Config{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	server.r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func assertErrorCode(t *testing.T, body []byte, expected string) {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error != expected {
		t.Fatalf("expected code %s, got %s", expected, resp.Error)
	}
}
