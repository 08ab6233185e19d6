package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/config"
	"github.com/straye-as/cultivation-api/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrInvalidScope = errors.New("token missing required scope")
)

// defaultTenantClaim is read when no tenant claim is configured
const defaultTenantClaim = "tenant_id"

// JWTValidator validates Azure AD (RS256, JWKS) tokens and, when a signing
// secret is configured, HS256 tokens issued for local development
type JWTValidator struct {
	config *config.AzureAdConfig
	keys   *keySet
}

func NewJWTValidator(cfg *config.AzureAdConfig) *JWTValidator {
	return &JWTValidator{
		config: cfg,
		keys:   newKeySet(fmt.Sprintf("%s%s/discovery/v2.0/keys", cfg.InstanceUrl, cfg.TenantId)),
	}
}

// ValidateToken verifies the signature and registered claims of a token and
// maps it to a user. Every user except a super admin must carry a tenant.
func (v *JWTValidator) ValidateToken(tokenString string) (*UserContext, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFor,
		jwt.WithValidMethods([]string{"RS256", "HS256"}),
		jwt.WithLeeway(30*time.Second))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case !token.Valid:
		return nil, ErrInvalidToken
	}

	if _, isRSA := token.Method.(*jwt.SigningMethodRSA); isRSA {
		if err := v.validateAzureClaims(claims); err != nil {
			return nil, err
		}
	}
	return v.userFromClaims(claims)
}

func (v *JWTValidator) keyFor(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.config.SigningSecret == "" {
			return nil, errors.New("HS256 tokens are not accepted")
		}
		return []byte(v.config.SigningSecret), nil
	case *jwt.SigningMethodRSA:
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid in header")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return v.keys.key(ctx, kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
}

func (v *JWTValidator) validateAzureClaims(claims jwt.MapClaims) error {
	if id := v.config.ClientId; id != "" {
		aud, _ := claims.GetAudience()
		ok := false
		for _, a := range aud {
			if a == id || a == "api://"+id {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: invalid audience", ErrInvalidToken)
		}
	}

	iss, _ := claims.GetIssuer()
	if !strings.Contains(iss, v.config.TenantId) {
		return fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}

	if !HasRequiredScope(ExtractScopes(claims), v.config.RequiredScopes) {
		return ErrInvalidScope
	}
	return nil
}

func (v *JWTValidator) userFromClaims(claims jwt.MapClaims) (*UserContext, error) {
	user := &UserContext{
		DisplayName: claimString(claims, "name", "unique_name", "preferred_username"),
		Email:       claimString(claims, "email", "upn", "unique_name"),
		Roles:       ExtractRoles(claims),
	}

	if id, err := uuid.Parse(claimString(claims, "oid", "sub")); err == nil {
		user.UserID = id
	} else if user.Email != "" {
		user.UserID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(user.Email)))
	}
	if user.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	claim := v.config.TenantClaim
	if claim == "" {
		claim = defaultTenantClaim
	}
	if raw := claimString(claims, claim); raw != "" {
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed %s claim", ErrInvalidToken, claim)
		}
		user.TenantID = &tenantID
	}
	if user.TenantID == nil && !user.IsSuperAdmin() {
		return nil, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, claim)
	}
	return user, nil
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if s, ok := claims[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ExtractRoles reads the roles and role claims. Names are lowercased,
// duplicates dropped and roles this API does not know are ignored. The
// system role is reserved for scheduled jobs and never taken from a token.
func ExtractRoles(claims jwt.MapClaims) []domain.UserRoleType {
	var raw []string
	for _, key := range []string{"roles", "role"} {
		switch val := claims[key].(type) {
		case []interface{}:
			for _, r := range val {
				if s, ok := r.(string); ok {
					raw = append(raw, s)
				}
			}
		case []string:
			raw = append(raw, val...)
		case string:
			raw = append(raw, val)
		}
	}

	roles := []domain.UserRoleType{}
	seen := map[domain.UserRoleType]bool{}
	for _, s := range raw {
		role := domain.UserRoleType(strings.ToLower(strings.TrimSpace(s)))
		if !role.IsValid() || role == domain.RoleSystem || seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	return roles
}

// ExtractScopes reads the space separated scp and scope claims
func ExtractScopes(claims jwt.MapClaims) []string {
	scopes := []string{}
	for _, key := range []string{"scp", "scope"} {
		if s, ok := claims[key].(string); ok {
			scopes = append(scopes, strings.Fields(s)...)
		}
	}
	return scopes
}

// HasRequiredScope reports whether any of the comma separated required scopes
// is present. An empty requirement is always met.
func HasRequiredScope(tokenScopes []string, required string) bool {
	if strings.TrimSpace(required) == "" {
		return true
	}
	for _, req := range strings.Split(required, ",") {
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		for _, scope := range tokenScopes {
			if strings.EqualFold(scope, req) {
				return true
			}
		}
	}
	return false
}
