package usecase

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/atvirokodosprendimai/storefront/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	StrategyCredential = "credential"
	StrategyHeader     = "header"
	StrategyDomain     = "domain"
	StrategySubdomain  = "subdomain"
)

// DefaultPublicPaths are served without a tenant.
var DefaultPublicPaths = []string{
	"/api/auth/register/",
	"/api/auth/login/",
	"/api/auth/refresh/",
	"/admin/",
}

// Strategy is one step of tenant identification. A failed lookup of any
// kind is reported as ok=false together with the reason.
type Strategy interface {
	Name() string
	TryResolve(ctx context.Context, signals domain.Signals) (domain.Tenant, bool, error)
}

// ResolutionObserver is notified once per resolved request.
type ResolutionObserver interface {
	ObserveResolution(outcome, strategy string)
	ObserveStrategyMiss(strategy, reason string)
}

type Identifier struct {
	publicPaths []string
	strategies  []Strategy
	observer    ResolutionObserver
	logger      *zap.Logger
}

type IdentifierOption func(*Identifier)

func WithPublicPaths(paths []string) IdentifierOption {
	return func(i *Identifier) {
		i.publicPaths = append([]string(nil), paths...)
	}
}

func WithResolutionObserver(o ResolutionObserver) IdentifierOption {
	return func(i *Identifier) {
		i.observer = o
	}
}

// NewIdentifier builds the resolution chain with strategies in their fixed
// precedence: credential, header, domain, subdomain.
func NewIdentifier(auth CredentialAuthenticator, tenants ports.TenantRegistry, logger *zap.Logger, opts ...IdentifierOption) *Identifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := &Identifier{
		publicPaths: DefaultPublicPaths,
		strategies: []Strategy{
			CredentialStrategy{auth: auth},
			HeaderStrategy{tenants: tenants},
			DomainStrategy{tenants: tenants},
			SubdomainStrategy{tenants: tenants},
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(id)
	}
	return id
}

// Resolve never fails. Allow-listed paths short-circuit to OutcomePublic;
// otherwise the first matching strategy wins and weaker signals are not
// consulted.
func (i *Identifier) Resolve(ctx context.Context, signals domain.Signals) domain.Resolution {
	if i.isPublic(signals.Path) {
		i.observe(domain.PublicRoute())
		return domain.PublicRoute()
	}

	for _, strategy := range i.strategies {
		tenant, ok, err := strategy.TryResolve(ctx, signals)
		if ok {
			res := domain.Resolved(tenant, strategy.Name())
			i.observe(res)
			return res
		}
		if err != nil {
			i.miss(strategy.Name(), err)
		}
	}

	i.observe(domain.Unresolved())
	return domain.Unresolved()
}

func (i *Identifier) isPublic(path string) bool {
	for _, prefix := range i.publicPaths {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (i *Identifier) observe(res domain.Resolution) {
	if i.observer != nil {
		i.observer.ObserveResolution(res.Outcome.String(), res.Strategy)
	}
}

func (i *Identifier) miss(strategy string, err error) {
	reason := missReason(err)
	if reason == "lookup_error" {
		i.logger.Warn("tenant strategy lookup failed", zap.String("strategy", strategy), zap.Error(err))
	} else {
		i.logger.Debug("tenant strategy did not match", zap.String("strategy", strategy), zap.String("reason", reason))
	}
	if i.observer != nil {
		i.observer.ObserveStrategyMiss(strategy, reason)
	}
}

func missReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrCredentialExpired):
		return "expired"
	case errors.Is(err, domain.ErrCredentialRevoked):
		return "revoked"
	case errors.Is(err, domain.ErrTenantInactive):
		return "inactive"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return "malformed"
	default:
		return "lookup_error"
	}
}

// CredentialAuthenticator is satisfied by AuthService.
type CredentialAuthenticator interface {
	Authenticate(ctx context.Context, secret string) (domain.Tenant, error)
}

type CredentialStrategy struct {
	auth CredentialAuthenticator
}

func (CredentialStrategy) Name() string { return StrategyCredential }

func (s CredentialStrategy) TryResolve(ctx context.Context, signals domain.Signals) (domain.Tenant, bool, error) {
	secret := bearerToken(signals.Authorization)
	if secret == "" {
		secret = strings.TrimSpace(signals.APIKey)
	}
	if secret == "" {
		return domain.Tenant{}, false, nil
	}
	tenant, err := s.auth.Authenticate(ctx, secret)
	if err != nil {
		return domain.Tenant{}, false, err
	}
	return tenant, true, nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// HeaderStrategy accepts X-Tenant-ID as a tenant uuid or a partition name.
type HeaderStrategy struct {
	tenants ports.TenantRegistry
}

func (HeaderStrategy) Name() string { return StrategyHeader }

func (s HeaderStrategy) TryResolve(ctx context.Context, signals domain.Signals) (domain.Tenant, bool, error) {
	raw := strings.TrimSpace(signals.TenantHeader)
	if raw == "" {
		return domain.Tenant{}, false, nil
	}

	var (
		tenant domain.Tenant
		err    error
	)
	if id, parseErr := uuid.Parse(raw); parseErr == nil {
		tenant, err = s.tenants.GetActiveByID(ctx, id)
	} else if partition, parseErr := domain.ParsePartition(raw); parseErr == nil {
		tenant, err = s.tenants.GetByPartition(ctx, partition)
	} else {
		return domain.Tenant{}, false, domain.ErrInvalidInput
	}
	return activeOnly(tenant, err)
}

type DomainStrategy struct {
	tenants ports.TenantRegistry
}

func (DomainStrategy) Name() string { return StrategyDomain }

func (s DomainStrategy) TryResolve(ctx context.Context, signals domain.Signals) (domain.Tenant, bool, error) {
	host := hostname(signals.Host)
	if host == "" {
		return domain.Tenant{}, false, nil
	}
	return activeOnly(s.tenants.GetByDomain(ctx, host))
}

// SubdomainStrategy only applies to development hosts such as
// shop.localhost:9000.
type SubdomainStrategy struct {
	tenants ports.TenantRegistry
}

func (SubdomainStrategy) Name() string { return StrategySubdomain }

var reservedSubdomains = map[string]struct{}{
	"localhost": {},
	"127":       {},
	"www":       {},
}

var loopbackMarkers = []string{"localhost", "127.0.0.1"}

func (s SubdomainStrategy) TryResolve(ctx context.Context, signals domain.Signals) (domain.Tenant, bool, error) {
	label := subdomainLabel(hostname(signals.Host))
	if label == "" && isBareLoopback(hostname(signals.Host)) {
		label = subdomainLabel(originHostname(signals.Origin))
	}
	if label == "" {
		return domain.Tenant{}, false, nil
	}
	return activeOnly(s.tenants.GetBySubdomain(ctx, label))
}

func subdomainLabel(host string) string {
	if !isLoopbackHost(host) {
		return ""
	}
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return ""
	}
	if _, reserved := reservedSubdomains[parts[0]]; reserved || parts[0] == "" {
		return ""
	}
	return parts[0]
}

func isLoopbackHost(host string) bool {
	for _, marker := range loopbackMarkers {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}

func isBareLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// hostname lowercases host and strips any port.
func hostname(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(host, "[]")
}

func originHostname(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func activeOnly(tenant domain.Tenant, err error) (domain.Tenant, bool, error) {
	if err != nil {
		return domain.Tenant{}, false, err
	}
	if !tenant.Active {
		return domain.Tenant{}, false, domain.ErrTenantInactive
	}
	return tenant, true, nil
}
