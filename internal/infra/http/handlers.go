package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"veritag/internal/domain"
	"veritag/internal/usecase"
)

type errorResponse struct {
	Success   bool   `json:"success"`
	Authentic bool   `json:"authentic"`
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
}

type verifyRequest struct {
	Identifier string `json:"identifier"`
	Signature  string `json:"signature,omitempty"`
	Counter    *int64 `json:"counter,omitempty"`
	Location   string `json:"location,omitempty"`
	Client     string `json:"client,omitempty"`
}

type productResponse struct {
	Identifier     string `json:"identifier"`
	Name           string `json:"name"`
	Batch          string `json:"batch,omitempty"`
	Location       string `json:"location,omitempty"`
	ManufacturedAt string `json:"manufactured_at,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	AgeInDays      *int64 `json:"age_in_days"`
	ScanCount      int64  `json:"scan_count"`
	FirstScan      bool   `json:"first_scan"`
	Expired        bool   `json:"expired"`
	Status         string `json:"status"`
}

type verificationMeta struct {
	Timestamp    string `json:"timestamp"`
	ProcessingMS int64  `json:"processing_ms"`
	Suspicious   bool   `json:"suspicious"`
	Warning      string `json:"warning,omitempty"`
}

type verifyResponse struct {
	Success      bool             `json:"success"`
	Authentic    bool             `json:"authentic"`
	Product      productResponse  `json:"product"`
	Verification verificationMeta `json:"verification"`
}

func (s *Server) handleVerify(c *gin.Context) {
	if s.verifyUC == nil {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "verification not configured")
		return
	}
	if !s.enforceRateLimit(c) {
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	client := req.Client
	if client == "" {
		client = c.Request.UserAgent()
	}

	result, err := s.verifyUC.Execute(c.Request.Context(), usecase.VerifyScanRequest{
		Identifier: req.Identifier,
		Signature:  req.Signature,
		Counter:    req.Counter,
		Location:   req.Location,
		SourceIP:   c.ClientIP(),
		Client:     client,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, verifyResponse{
		Success:   true,
		Authentic: result.Authentic,
		Product: productResponse{
			Identifier:     result.Product.Identifier,
			Name:           result.Product.Name,
			Batch:          result.Product.Batch,
			Location:       result.Product.Location,
			ManufacturedAt: formatTime(result.Product.ManufacturedAt),
			ExpiresAt:      formatTime(result.Product.ExpiresAt),
			AgeInDays:      result.Product.AgeInDays,
			ScanCount:      result.Product.ScanCount,
			FirstScan:      result.Product.FirstScan,
			Expired:        result.Product.Expired,
			Status:         result.Product.Status,
		},
		Verification: verificationMeta{
			Timestamp:    result.VerifiedAt.UTC().Format(time.RFC3339),
			ProcessingMS: result.ProcessingTime.Milliseconds(),
			Suspicious:   result.Suspicious,
			Warning:      result.Warning,
		},
	})
}

func (s *Server) enforceRateLimit(c *gin.Context) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	key := "ip:" + c.ClientIP()
	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		// Fail open: a broken limiter must not take scanning down.
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	}
}

type adminTagRequest struct {
	Identifier     string `json:"identifier"`
	Name           string `json:"name"`
	Batch          string `json:"batch,omitempty"`
	Location       string `json:"location,omitempty"`
	ManufacturedAt string `json:"manufactured_at,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	TrustedSource  bool   `json:"trusted_source,omitempty"`
}

type adminTagResponse struct {
	Identifier     string `json:"identifier"`
	Name           string `json:"name"`
	Batch          string `json:"batch,omitempty"`
	Location       string `json:"location,omitempty"`
	ManufacturedAt string `json:"manufactured_at,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	ScanCounter    int64  `json:"scan_counter"`
	Active         bool   `json:"active"`
	TrustedSource  bool   `json:"trusted_source"`
	// Secret is present only in the registration response, exactly once.
	Secret string `json:"secret,omitempty"`
}

func (s *Server) handleRegisterTag(c *gin.Context) {
	if s.registerUC == nil {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "registration not configured")
		return
	}
	var req adminTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	manufacturedAt, err := parseOptionalTime(req.ManufacturedAt)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_TIMESTAMP", "manufactured_at must be RFC 3339")
		return
	}
	expiresAt, err := parseOptionalTime(req.ExpiresAt)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_TIMESTAMP", "expires_at must be RFC 3339")
		return
	}

	result, err := s.registerUC.Execute(c.Request.Context(), usecase.RegisterTagRequest{
		Identifier:     req.Identifier,
		Name:           req.Name,
		Batch:          req.Batch,
		Location:       req.Location,
		ManufacturedAt: manufacturedAt,
		ExpiresAt:      expiresAt,
		TrustedSource:  req.TrustedSource,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	out := buildTagResponse(result.Tag)
	out.Secret = result.Secret
	c.JSON(http.StatusCreated, out)
}

func (s *Server) handleGetTag(c *gin.Context) {
	tag, ok := s.lookupTag(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, buildTagResponse(*tag))
}

type scanEventResponse struct {
	Counter   int64  `json:"counter"`
	ScannedAt string `json:"scanned_at"`
	Location  string `json:"location,omitempty"`
	SourceIP  string `json:"source_ip,omitempty"`
	Client    string `json:"client,omitempty"`
}

func (s *Server) handleTagHistory(c *gin.Context) {
	tag, ok := s.lookupTag(c)
	if !ok {
		return
	}
	out := make([]scanEventResponse, 0, len(tag.History))
	for _, ev := range tag.History {
		out = append(out, scanEventResponse{
			Counter:   ev.Counter,
			ScannedAt: ev.ScannedAt.UTC().Format(time.RFC3339),
			Location:  ev.Location,
			SourceIP:  ev.SourceIP,
			Client:    ev.Client,
		})
	}
	c.JSON(http.StatusOK, out)
}

type auditEventResponse struct {
	EventType string         `json:"event_type"`
	Result    string         `json:"result"`
	ErrorCode string         `json:"error_code,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt string         `json:"created_at"`
}

func (s *Server) handleTagAudit(c *gin.Context) {
	if s.auditLog == nil {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "audit log not configured")
		return
	}
	id, err := usecase.NormalizeIdentifier(c.Param("identifier"))
	if err != nil {
		writeError(c, err)
		return
	}
	events, err := s.auditLog.ListByTarget(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, auditEventResponse{
			EventType: string(ev.EventType),
			Result:    string(ev.Result),
			ErrorCode: ev.ErrorCode,
			Payload:   ev.Payload,
			CreatedAt: ev.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleSetActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.tags == nil {
			writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "tag store not configured")
			return
		}
		id, err := usecase.NormalizeIdentifier(c.Param("identifier"))
		if err != nil {
			writeError(c, err)
			return
		}
		if err := s.tags.SetActive(c.Request.Context(), id, active); err != nil {
			writeError(c, err)
			return
		}
		eventType := domain.AuditEventTagDeactivated
		if active {
			eventType = domain.AuditEventTagReactivated
		}
		s.audit.EmitTagEvent(c.Request.Context(), eventType, id, nil)
		c.JSON(http.StatusOK, gin.H{"identifier": id, "active": active})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) adminAuth(c *gin.Context) {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusUnauthorized, "ADMIN_DISABLED", "admin api key not configured")
		c.Abort()
		return
	}
	supplied := c.GetHeader("X-Admin-Key")
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin api key")
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) lookupTag(c *gin.Context) (*domain.Tag, bool) {
	if s.tags == nil {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "tag store not configured")
		return nil, false
	}
	id, err := usecase.NormalizeIdentifier(c.Param("identifier"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	tag, err := s.tags.FindByIdentifier(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return tag, true
}

func buildTagResponse(tag domain.Tag) adminTagResponse {
	return adminTagResponse{
		Identifier:     tag.Identifier,
		Name:           tag.Name,
		Batch:          tag.Batch,
		Location:       tag.Location,
		ManufacturedAt: formatTime(tag.ManufacturedAt),
		ExpiresAt:      formatTime(tag.ExpiresAt),
		ScanCounter:    tag.ScanCounter,
		Active:         tag.Active,
		TrustedSource:  tag.TrustedSource,
	}
}

// writeError maps domain errors onto the response taxonomy. Every security
// rejection shares one generic body so the caller cannot tell which check
// failed; the distinct reason lives in the audit log.
func writeError(c *gin.Context, err error) {
	status, code, details := http.StatusInternalServerError, "INTERNAL", "internal error"
	switch {
	case errors.Is(err, domain.ErrInvalidIdentifier):
		status, code, details = http.StatusBadRequest, "INVALID_IDENTIFIER", "tag identifier is malformed"
	case errors.Is(err, domain.ErrNotFound):
		status, code, details = http.StatusNotFound, "TAG_NOT_FOUND", "tag not found"
	case errors.Is(err, domain.ErrTagInactive),
		errors.Is(err, domain.ErrSignatureInvalid),
		errors.Is(err, domain.ErrCounterReplay):
		status, code, details = http.StatusForbidden, "VERIFICATION_FAILED", "tag verification failed"
	case errors.Is(err, domain.ErrAlreadyExists):
		status, code, details = http.StatusConflict, "ALREADY_EXISTS", "identifier already registered"
	case errors.Is(err, domain.ErrUnavailable):
		status, code, details = http.StatusServiceUnavailable, "UNAVAILABLE", "verification temporarily unavailable"
	}
	writeErrorCode(c, status, code, details)
}

func writeErrorCode(c *gin.Context, status int, code, details string) {
	c.JSON(status, errorResponse{
		Success:   false,
		Authentic: false,
		Error:     code,
		Details:   details,
	})
}

func parseOptionalTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	ts = ts.UTC()
	return &ts, nil
}

func formatTime(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
