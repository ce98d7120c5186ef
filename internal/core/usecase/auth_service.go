package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/atvirokodosprendimai/storefront/internal/core/ports"
	"github.com/google/uuid"
)

const secretEntropyBytes = 32

// AuthService validates API credentials and issues new ones. Results are
// never cached, so revocation and deactivation apply to the next request.
type AuthService struct {
	repo    ports.CredentialStore
	tenants ports.TenantRegistry
	usage   ports.UsageSink
	now     func() time.Time
}

func NewAuthService(repo ports.CredentialStore, tenants ports.TenantRegistry, usage ports.UsageSink) *AuthService {
	return &AuthService{repo: repo, tenants: tenants, usage: usage, now: time.Now}
}

// Authenticate returns the tenant owning secret. Every failure is one of the
// credential/tenant sentinel errors or a wrapped lookup error; callers in the
// resolution chain treat all of them as "no match".
func (s *AuthService) Authenticate(ctx context.Context, secret string) (domain.Tenant, error) {
	secret = strings.TrimSpace(secret)
	if !strings.HasPrefix(secret, domain.APIKeyPrefix) || len(secret) == len(domain.APIKeyPrefix) {
		return domain.Tenant{}, domain.ErrCredentialNotFound
	}

	found, err := s.repo.FindByHash(ctx, HashSecret(secret))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Tenant{}, domain.ErrCredentialNotFound
		}
		return domain.Tenant{}, err
	}

	now := s.now().UTC()
	switch {
	case !found.Key.Active:
		return domain.Tenant{}, domain.ErrCredentialRevoked
	case found.Key.Expired(now):
		return domain.Tenant{}, domain.ErrCredentialExpired
	case !found.Tenant.Active:
		return domain.Tenant{}, domain.ErrTenantInactive
	}

	if s.usage != nil {
		s.usage.Record(found.Key.ID, now)
	}
	return found.Tenant, nil
}

type IssueKeyInput struct {
	TenantID    string
	TenantName  string
	Name        string
	Permissions []string
	// ExpiresIn of zero issues a key that never expires.
	ExpiresIn time.Duration
}

// Issue generates a new secret for an active tenant. The plaintext is only
// present in the returned value; the store keeps the hash and a short prefix.
func (s *AuthService) Issue(ctx context.Context, in IssueKeyInput, meta domain.MutationMetadata) (domain.IssuedKey, error) {
	tenant, err := lookupTenant(ctx, s.tenants, in.TenantID, in.TenantName)
	if err != nil {
		return domain.IssuedKey{}, err
	}
	if !tenant.Active {
		return domain.IssuedKey{}, domain.ErrTenantInactive
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "Default Key"
	}
	if len(name) > 100 {
		return domain.IssuedKey{}, fmt.Errorf("%w: key name must be at most 100 characters", domain.ErrInvalidInput)
	}
	if in.ExpiresIn < 0 {
		return domain.IssuedKey{}, fmt.Errorf("%w: expiry must not be negative", domain.ErrInvalidInput)
	}

	secret, err := GenerateSecret()
	if err != nil {
		return domain.IssuedKey{}, err
	}

	now := s.now().UTC()
	key := domain.APIKey{
		ID:          uuid.New(),
		TenantID:    tenant.ID,
		Name:        name,
		Hash:        HashSecret(secret),
		Prefix:      secret[:domain.APIKeyDisplayLength],
		Permissions: normalizePermissions(in.Permissions),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.ExpiresIn > 0 {
		expiresAt := now.Add(in.ExpiresIn)
		key.ExpiresAt = &expiresAt
	}

	created, err := s.repo.Create(ctx, key, meta)
	if err != nil {
		return domain.IssuedKey{}, err
	}
	return domain.IssuedKey{Key: created, Tenant: tenant, Secret: secret}, nil
}

// GenerateSecret returns APIKeyPrefix followed by 32 random bytes encoded as
// URL-safe base64.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return domain.APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func HashSecret(secret string) string {
	digest := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(digest[:])
}

func normalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func lookupTenant(ctx context.Context, tenants ports.TenantRegistry, id, name string) (domain.Tenant, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	switch {
	case id != "":
		parsed, err := uuid.Parse(id)
		if err != nil {
			return domain.Tenant{}, fmt.Errorf("%w: tenant id must be a uuid", domain.ErrInvalidInput)
		}
		return tenants.GetByID(ctx, parsed)
	case name != "":
		return tenants.GetByName(ctx, name)
	default:
		return domain.Tenant{}, fmt.Errorf("%w: tenant id or name is required", domain.ErrInvalidInput)
	}
}
