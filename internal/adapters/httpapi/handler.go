package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/adapters/partition"
	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/atvirokodosprendimai/storefront/internal/core/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	timeFormat      = "2006-01-02T15:04:05.999999999Z07:00"
	maxJSONBodySize = 1 << 20
)

// TenantResolver is satisfied by usecase.Identifier.
type TenantResolver interface {
	Resolve(ctx context.Context, signals domain.Signals) domain.Resolution
}

// PartitionRunner is satisfied by partition.Pool.
type PartitionRunner interface {
	WithPartition(ctx context.Context, p domain.Partition, fn func(ctx context.Context, s *partition.Session) error) error
}

type Services struct {
	Identifier  TenantResolver
	Partitions  PartitionRunner
	Tenants     *usecase.TenantService
	Auth        *usecase.AuthService
	Credentials *usecase.CredentialService
	Events      *usecase.EventService
	Validator   *usecase.PayloadValidator
}

type Options struct {
	AdminToken string
	// DevHosts are Origin substrings that get credentialed CORS responses.
	DevHosts      []string
	DefaultKeyTTL time.Duration
	Logger        *zap.Logger
}

type Handler struct {
	identifier  TenantResolver
	partitions  PartitionRunner
	tenants     *usecase.TenantService
	auth        *usecase.AuthService
	credentials *usecase.CredentialService
	events      *usecase.EventService
	validator   *usecase.PayloadValidator

	adminToken    string
	devHosts      []string
	defaultKeyTTL time.Duration
	logger        *zap.Logger
}

func NewHandler(s Services, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DevHosts == nil {
		opts.DevHosts = []string{"localhost", "127.0.0.1"}
	}
	return &Handler{
		identifier:    s.Identifier,
		partitions:    s.Partitions,
		tenants:       s.Tenants,
		auth:          s.Auth,
		credentials:   s.Credentials,
		events:        s.Events,
		validator:     s.Validator,
		adminToken:    opts.AdminToken,
		devHosts:      opts.DevHosts,
		defaultKeyTTL: opts.DefaultKeyTTL,
		logger:        opts.Logger.Named("http"),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(h.cors)

	r.Get("/healthz", h.healthz)

	r.Group(func(ir chi.Router) {
		ir.Use(h.identify)

		ir.Route("/admin/api", func(ar chi.Router) {
			ar.Use(h.requireAdminToken)
			ar.Post("/tenants/", h.createTenant)
			ar.Get("/tenants/", h.listTenants)
			ar.Delete("/tenants/{id}/", h.deactivateTenant)
			ar.Post("/keys/", h.generateKey)
			ar.Get("/keys/", h.listKeys)
			ar.Delete("/keys/{id}/", h.revokeKey)
			ar.Get("/events/", h.listEvents)
		})

		ir.Group(func(tr chi.Router) {
			tr.Use(h.requireTenant)
			tr.Use(h.bindPartition)
			tr.Get("/api/tenant/", h.tenantInfo)
			tr.Get("/api/tenant/usage/", h.tenantUsage)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type limitsResponse struct {
	Products  int `json:"max_products"`
	Orders    int `json:"max_orders"`
	StorageMB int `json:"max_storage_mb"`
}

type tenantResponse struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	SchemaName         string         `json:"schema_name"`
	Domain             string         `json:"domain,omitempty"`
	Subdomain          string         `json:"subdomain,omitempty"`
	IsActive           bool           `json:"is_active"`
	IsVerified         bool           `json:"is_verified"`
	IsPremium          bool           `json:"is_premium"`
	PlanType           string         `json:"plan_type"`
	Limits             limitsResponse `json:"limits"`
	TrialEndsAt        *string        `json:"trial_ends_at,omitempty"`
	SubscriptionEndsAt *string        `json:"subscription_ends_at,omitempty"`
	APIKeysCount       *int64         `json:"api_keys_count,omitempty"`
	CreatedAt          string         `json:"created_at"`
	UpdatedAt          string         `json:"updated_at"`
}

func toTenantResponse(t domain.Tenant) tenantResponse {
	return tenantResponse{
		ID:                 t.ID.String(),
		Name:               t.Name,
		SchemaName:         t.Partition.Name(),
		Domain:             t.Domain,
		Subdomain:          t.Subdomain,
		IsActive:           t.Active,
		IsVerified:         t.Verified,
		IsPremium:          t.Premium,
		PlanType:           string(t.Plan),
		Limits:             toLimitsResponse(t.Limits),
		TrialEndsAt:        formatTimePtr(t.TrialEndsAt),
		SubscriptionEndsAt: formatTimePtr(t.SubscriptionEndsAt),
		CreatedAt:          t.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:          t.UpdatedAt.UTC().Format(timeFormat),
	}
}

func toLimitsResponse(l domain.PlanLimits) limitsResponse {
	return limitsResponse{Products: l.Products, Orders: l.Orders, StorageMB: l.StorageMB}
}

func (h *Handler) tenantInfo(w http.ResponseWriter, r *http.Request) {
	rc, _ := FromContext(r.Context())
	tenant, _ := rc.Tenant()
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant":              toTenantResponse(tenant),
		"resolved_by":         rc.Resolution.Strategy,
		"trial_active":        tenant.TrialActive(now),
		"subscription_active": tenant.SubscriptionActive(now),
	})
}

func (h *Handler) tenantUsage(w http.ResponseWriter, r *http.Request) {
	rc, _ := FromContext(r.Context())
	usage, err := h.tenants.Usage(r.Context())
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schema_name": rc.Partition().Name(),
		"products":    usage.Products,
		"orders":      usage.Orders,
		"limits":      toLimitsResponse(rc.Resolution.Tenant.Limits),
	})
}

// readValidated reads the body and checks it against the named payload
// schema before anything is decoded.
func (h *Handler) readValidated(w http.ResponseWriter, r *http.Request, schema string, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return &domain.ErrSchemaViolation{Errors: []string{"body too large or unreadable"}}
	}
	if err := h.validator.Validate(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &domain.ErrSchemaViolation{Errors: []string{"body must be valid json"}}
	}
	return nil
}

func mutationMetadata(r *http.Request) domain.MutationMetadata {
	return domain.MutationMetadata{
		Actor:     "admin",
		Source:    "http",
		RequestID: middleware.GetReqID(r.Context()),
	}.Normalize()
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func (h *Handler) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var violation *domain.ErrSchemaViolation
	switch {
	case errors.As(err, &violation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "invalid request body",
			"details": violation.Errors,
		})
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrPartitionValidationFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrTenantInactive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrPartitionBindFailed):
		h.logger.Error("partition unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "partition unavailable")
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeFormat)
	return &s
}
