package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/adapters/partition"
	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	headerTenantID   = "X-Tenant-ID"
	headerTenantName = "X-Tenant-Name"
	headerAPIKey     = "X-API-Key"
	headerAdminToken = "X-Admin-Token"
)

var (
	corsMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsHeaders = strings.Join([]string{
		"Accept",
		"Authorization",
		"Content-Type",
		"Origin",
		headerTenantID,
		headerAPIKey,
		headerAdminToken,
		middleware.RequestIDHeader,
	}, ", ")
)

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		if tenant := ww.Header().Get(headerTenantID); tenant != "" {
			fields = append(fields, zap.String("tenant", tenant))
		}
		h.logger.Info("http request", fields...)
	})
}

// cors echoes the Origin back with credentials allowed when it points at a
// development host, and answers every other origin with a wildcard.
func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		hdr := w.Header()
		if origin != "" && h.isDevOrigin(origin) {
			hdr.Set("Access-Control-Allow-Origin", origin)
			hdr.Set("Access-Control-Allow-Credentials", "true")
			hdr.Add("Vary", "Origin")
		} else {
			hdr.Set("Access-Control-Allow-Origin", "*")
		}
		hdr.Set("Access-Control-Allow-Methods", corsMethods)
		hdr.Set("Access-Control-Allow-Headers", corsHeaders)
		hdr.Set("Access-Control-Expose-Headers", headerTenantID+", "+headerTenantName)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isDevOrigin matches the Origin's hostname against the development hosts,
// either exactly or as a subdomain of one.
func (h *Handler) isDevOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, marker := range h.devHosts {
		marker = strings.ToLower(strings.TrimSpace(marker))
		if marker == "" {
			continue
		}
		if host == marker || strings.HasSuffix(host, "."+marker) {
			return true
		}
	}
	return false
}

// identify resolves the tenant once per request and stores the result on the
// request context.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := h.identifier.Resolve(r.Context(), domain.Signals{
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			APIKey:        r.Header.Get(headerAPIKey),
			TenantHeader:  r.Header.Get(headerTenantID),
			Host:          r.Host,
			Origin:        r.Header.Get("Origin"),
		})
		if res.IsResolved() {
			w.Header().Set(headerTenantID, res.Tenant.Partition.Name())
			w.Header().Set(headerTenantName, res.Tenant.Name)
		}
		ctx := withRequestContext(r.Context(), RequestContext{Resolution: res})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, _ := FromContext(r.Context())
		if !rc.Resolution.IsResolved() {
			writeError(w, http.StatusUnauthorized, "tenant not identified")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bindPartition runs the rest of the chain on a connection bound to the
// request's partition. Unresolved requests bind the public partition.
func (h *Handler) bindPartition(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, _ := FromContext(r.Context())
		p := rc.Partition()

		served := false
		err := h.partitions.WithPartition(r.Context(), p, func(ctx context.Context, s *partition.Session) error {
			served = true
			bound := rc
			bound.Session = s
			next.ServeHTTP(w, r.WithContext(withRequestContext(ctx, bound)))
			return nil
		})
		if err == nil || served {
			return
		}
		h.logger.Error("bind partition",
			zap.String("partition", p.Name()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		if errors.Is(err, domain.ErrPartitionValidationFailed) || errors.Is(err, domain.ErrPartitionBindFailed) {
			writeError(w, http.StatusInternalServerError, "partition unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
	})
}

// requireAdminToken is a no-op when no admin token is configured.
func (h *Handler) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken != "" {
			got := r.Header.Get(headerAdminToken)
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid admin token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
