package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codeready-toolchain/aigateway/pkg/config"
	"github.com/codeready-toolchain/aigateway/pkg/models"
)

// integrationRunnerAudience is accepted alongside the configured client id
// so integration-test tokens minted for the shared test runner pass the
// audience check.
const integrationRunnerAudience = "integration-test-runner"

// departmentGroupRe extracts the department code from group paths such as
// "/Finance-Department".
var departmentGroupRe = regexp.MustCompile(`^/(.+)-Department$`)

// gatewayClaims carries the Keycloak-style claims the gateway consumes.
type gatewayClaims struct {
	PreferredUsername string   `json:"preferred_username"`
	Name              string   `json:"name"`
	GivenName         string   `json:"given_name"`
	Email             string   `json:"email"`
	Groups            []string `json:"groups"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens against the identity provider's key set
// and extracts the caller identity the rest of the gateway runs on.
type Verifier struct {
	keys       *KeySet
	clientID   string
	issuers    map[string]struct{}
	algorithms []string
	logger     *slog.Logger
}

// NewVerifier builds a verifier from the auth configuration. The accepted
// issuer set contains the configured issuer, any additional issuers, and
// the default-port-normalized form of each so "https://idp:443/realm" and
// "https://idp/realm" are treated as the same issuer.
func NewVerifier(cfg *config.AuthConfig, keys *KeySet, logger *slog.Logger) *Verifier {
	issuers := make(map[string]struct{})
	for _, iss := range append([]string{cfg.Issuer}, cfg.AdditionalIssuers...) {
		if iss == "" {
			continue
		}
		issuers[iss] = struct{}{}
		issuers[normalizeIssuer(iss)] = struct{}{}
	}

	algorithms := cfg.Algorithms
	if len(algorithms) == 0 {
		algorithms = []string{"RS256"}
	}

	return &Verifier{
		keys:       keys,
		clientID:   cfg.ClientID,
		issuers:    issuers,
		algorithms: algorithms,
		logger:     logger.With("component", "verifier"),
	}
}

// Verify parses and validates the raw token and returns the caller context.
// Signature and expiry are checked during parsing; issuer and audience are
// checked afterwards so a forged issuer never bypasses key verification.
func (v *Verifier) Verify(ctx context.Context, raw string) (*models.CallerContext, error) {
	claims := &gatewayClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token has no kid header", ErrKeyNotFound)
		}
		return v.keys.Key(ctx, kid)
	}, jwt.WithValidMethods(v.algorithms))
	if err != nil {
		return nil, mapParseError(err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrTokenMalformed)
	}

	issuer := claims.Issuer
	if _, ok := v.issuers[issuer]; !ok {
		if _, ok := v.issuers[normalizeIssuer(issuer)]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrIssuerMismatch, issuer)
		}
	}

	if !v.audienceAccepted(claims.Audience) {
		return nil, fmt.Errorf("%w: %v", ErrAudienceMismatch, []string(claims.Audience))
	}

	return v.extractCaller(claims), nil
}

// audienceAccepted reports whether any token audience matches the
// configured client id or the integration-runner audience. The generic
// "account" audience Keycloak adds by default is deliberately not enough.
func (v *Verifier) audienceAccepted(aud jwt.ClaimStrings) bool {
	for _, a := range aud {
		if a == v.clientID || a == integrationRunnerAudience {
			return true
		}
	}
	return false
}

func (v *Verifier) extractCaller(claims *gatewayClaims) *models.CallerContext {
	sub := claims.Subject

	if claims.PreferredUsername == "" {
		v.logger.Warn("Token missing preferred_username claim", "userId", sub)
	}
	if claims.Email == "" {
		v.logger.Warn("Token missing email claim", "userId", sub)
	}

	roles := mergeRoles(claims.RealmAccess.Roles, claims.ResourceAccess[v.clientID].Roles)

	return &models.CallerContext{
		UserID:         sub,
		Username:       usernameFromClaims(claims),
		Email:          claims.Email,
		Roles:          roles,
		Groups:         claims.Groups,
		DepartmentCode: departmentFromGroups(claims.Groups),
		TokenID:        claims.ID,
	}
}

// usernameFromClaims picks the first populated display identity, falling
// back to a short subject-derived handle.
func usernameFromClaims(claims *gatewayClaims) string {
	for _, candidate := range []string{claims.PreferredUsername, claims.Name, claims.GivenName} {
		if candidate != "" {
			return candidate
		}
	}
	if sub := claims.Subject; sub != "" {
		if len(sub) > 8 {
			sub = sub[:8]
		}
		return "user-" + sub
	}
	return "unknown"
}

// mergeRoles concatenates realm roles and client roles, dropping
// duplicates while preserving first-seen order.
func mergeRoles(realm, client []string) []string {
	seen := make(map[string]struct{}, len(realm)+len(client))
	merged := make([]string, 0, len(realm)+len(client))
	for _, role := range append(append([]string{}, realm...), client...) {
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		merged = append(merged, role)
	}
	return merged
}

func departmentFromGroups(groups []string) string {
	for _, g := range groups {
		if m := departmentGroupRe.FindStringSubmatch(g); m != nil {
			return m[1]
		}
	}
	return ""
}

// normalizeIssuer strips the scheme's default port so issuer comparison
// tolerates providers that include ":443" or ":80" explicitly.
func normalizeIssuer(issuer string) string {
	u, err := url.Parse(issuer)
	if err != nil || u.Host == "" {
		return issuer
	}
	port := u.Port()
	if (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		u.Host = strings.TrimSuffix(u.Host, ":"+port)
		return u.String()
	}
	return issuer
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return err
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	default:
		return fmt.Errorf("token verification failed: %w", err)
	}
}
