package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/atvirokodosprendimai/storefront/internal/core/usecase"
	"github.com/go-chi/chi/v5"
)

type createTenantRequest struct {
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	Subdomain string `json:"subdomain"`
	PlanType  string `json:"plan_type"`
}

type generateKeyRequest struct {
	TenantID      string   `json:"tenant_id"`
	TenantName    string   `json:"tenant_name"`
	KeyName       string   `json:"key_name"`
	Permissions   []string `json:"permissions"`
	ExpiresInDays *int     `json:"expires_in_days"`
}

type apiKeyResponse struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	Name        string   `json:"name"`
	Prefix      string   `json:"prefix"`
	Permissions []string `json:"permissions"`
	IsActive    bool     `json:"is_active"`
	ExpiresAt   *string  `json:"expires_at"`
	LastUsedAt  *string  `json:"last_used_at"`
	UsageCount  int64    `json:"usage_count"`
	CreatedAt   string   `json:"created_at"`
}

type eventResponse struct {
	ID           int64   `json:"id"`
	EventID      string  `json:"event_id"`
	TenantID     string  `json:"tenant_id"`
	EventType    string  `json:"event_type"`
	Topic        string  `json:"topic"`
	Payload      any     `json:"payload"`
	Status       string  `json:"status"`
	Attempts     int     `json:"attempts"`
	CreatedAt    string  `json:"created_at"`
	DispatchedAt *string `json:"dispatched_at,omitempty"`
}

func toAPIKeyResponse(k domain.APIKey) apiKeyResponse {
	perms := k.Permissions
	if perms == nil {
		perms = []string{}
	}
	return apiKeyResponse{
		ID:          k.ID.String(),
		TenantID:    k.TenantID.String(),
		Name:        k.Name,
		Prefix:      k.Prefix,
		Permissions: perms,
		IsActive:    k.Active,
		ExpiresAt:   formatTimePtr(k.ExpiresAt),
		LastUsedAt:  formatTimePtr(k.LastUsedAt),
		UsageCount:  k.UsageCount,
		CreatedAt:   k.CreatedAt.UTC().Format(timeFormat),
	}
}

func toEventResponse(e domain.OutboxEvent) eventResponse {
	return eventResponse{
		ID:           e.ID,
		EventID:      e.EventID,
		TenantID:     e.TenantID,
		EventType:    e.EventType,
		Topic:        e.Topic,
		Payload:      e.PayloadJSON,
		Status:       e.Status,
		Attempts:     e.Attempts,
		CreatedAt:    e.CreatedAt.UTC().Format(timeFormat),
		DispatchedAt: formatTimePtr(e.DispatchedAt),
	}
}

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := h.readValidated(w, r, usecase.PayloadCreateTenant, &req); err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	tenant, err := h.tenants.Create(r.Context(), domain.NewTenant{
		Name:      req.Name,
		Domain:    req.Domain,
		Subdomain: req.Subdomain,
		Plan:      req.PlanType,
	}, mutationMetadata(r))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTenantResponse(tenant))
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.tenants.ListActive(r.Context())
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	result := make([]tenantResponse, 0, len(summaries))
	for _, s := range summaries {
		resp := toTenantResponse(s.Tenant)
		count := s.ActiveKeys
		resp.APIKeysCount = &count
		result = append(result, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": result})
}

func (h *Handler) deactivateTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.tenants.Deactivate(r.Context(), chi.URLParam(r, "id"), mutationMetadata(r))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

// generateKey is the only response that ever carries a plaintext secret.
func (h *Handler) generateKey(w http.ResponseWriter, r *http.Request) {
	var req generateKeyRequest
	if err := h.readValidated(w, r, usecase.PayloadGenerateKey, &req); err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	expiresIn := h.defaultKeyTTL
	if req.ExpiresInDays != nil {
		expiresIn = time.Duration(*req.ExpiresInDays) * 24 * time.Hour
	}

	issued, err := h.auth.Issue(r.Context(), usecase.IssueKeyInput{
		TenantID:    req.TenantID,
		TenantName:  req.TenantName,
		Name:        req.KeyName,
		Permissions: req.Permissions,
		ExpiresIn:   expiresIn,
	}, mutationMetadata(r))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"key":         issued.Secret,
		"api_key":     toAPIKeyResponse(issued.Key),
		"tenant_name": issued.Tenant.Name,
		"schema_name": issued.Tenant.Partition.Name(),
		"warning":     "store this key now, it cannot be shown again",
	})
}

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := strings.TrimSpace(q.Get("tenant_id"))
	tenantName := strings.TrimSpace(q.Get("tenant_name"))
	if tenantID == "" && tenantName == "" {
		writeError(w, http.StatusBadRequest, "tenant_id or tenant_name is required")
		return
	}

	tenant, keys, err := h.credentials.List(r.Context(), tenantID, tenantName)
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	result := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		result = append(result, toAPIKeyResponse(k))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":   tenant.ID.String(),
		"tenant_name": tenant.Name,
		"keys":        result,
	})
}

func (h *Handler) revokeKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.credentials.Revoke(r.Context(), chi.URLParam(r, "id"), mutationMetadata(r))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIKeyResponse(key))
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var after int64
	if raw := q.Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be integer")
			return
		}
		after = parsed
	}

	events, err := h.events.List(r.Context(), domain.EventFilter{
		TenantID:  q.Get("tenant_id"),
		EventType: q.Get("event_type"),
		AfterID:   after,
		Limit:     limit,
	})
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	result := make([]eventResponse, 0, len(events))
	for _, e := range events {
		result = append(result, toEventResponse(e))
	}
	resp := map[string]any{"events": result}
	if n := len(events); n > 0 {
		resp["next_after"] = events[n-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}
