package token

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Issuer builds and validates signed access tokens. It is stateless apart from
// the injected signer and blacklist, and safe for concurrent use.
type Issuer struct {
	signer            Signer
	blacklist         Blacklist // nil disables the revocation check
	issuer            string
	audience          string
	accessTokenExpiry time.Duration
	nowFunc           func() time.Time
}

type IssuerOption func(*Issuer)

func WithAccessTokenExpiry(expiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.accessTokenExpiry = expiry
	}
}

func WithIssuer(issuer string) IssuerOption {
	return func(i *Issuer) {
		i.issuer = issuer
	}
}

func WithAudience(audience string) IssuerOption {
	return func(i *Issuer) {
		i.audience = audience
	}
}

func WithBlacklist(blacklist Blacklist) IssuerOption {
	return func(i *Issuer) {
		i.blacklist = blacklist
	}
}

func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

func NewIssuer(signer Signer, options ...IssuerOption) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("[NewIssuer] signer is required")
	}

	i := &Issuer{
		signer: signer,
	}

	for _, opt := range options {
		opt(i)
	}

	if i.accessTokenExpiry == 0 {
		i.accessTokenExpiry = 15 * time.Minute
	}
	if i.nowFunc == nil {
		i.nowFunc = time.Now
	}
	return i, nil
}

// IssueAccessToken creates a signed access token for the subject with a fresh
// jti. Extra claims are merged in but cannot override the registered ones.
func (i *Issuer) IssueAccessToken(subject string, extraClaims map[string]any) (string, Claims, error) {
	now := i.nowFunc()
	exp := now.Add(i.accessTokenExpiry)
	jti := uuid.New().String()

	claims := jwt.MapClaims{}
	for k, v := range extraClaims {
		claims[k] = v
	}
	claims["iss"] = i.issuer
	claims["sub"] = subject
	claims["aud"] = i.audience
	claims["iat"] = now.Unix()
	claims["exp"] = exp.Unix()
	claims["jti"] = jti

	signedToken, err := i.signer.Sign(claims)
	if err != nil {
		return "", Claims{}, errors.Wrap(err, "Issuer.IssueAccessToken")
	}

	return signedToken, Claims{
		Subject:   subject,
		JTI:       jti,
		IssuedAt:  now,
		ExpiresAt: exp,
		Extra:     extraClaims,
	}, nil
}

// Validate verifies the signature and expiry of a raw access token, then
// checks the blacklist for its jti. It never consults the refresh token store.
// A non-nil error is only returned for infrastructure failures (blacklist
// unreachable); the result is a deny in that case as well.
func (i *Issuer) Validate(ctx context.Context, rawToken string) (Validation, error) {
	if strings.TrimSpace(rawToken) == "" {
		return Validation{Reason: ReasonMalformed}, nil
	}

	parsed, err := jwt.Parse(rawToken, i.signer.GetVerificationKey, jwt.WithTimeFunc(i.nowFunc))
	if err != nil || !parsed.Valid {
		return Validation{Reason: categoriseParseError(err)}, nil
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Validation{Reason: ReasonMalformed}, nil
	}

	claims := claimsFromMap(mapClaims)

	if i.blacklist != nil && claims.JTI != "" {
		revoked, err := i.blacklist.IsRevoked(ctx, claims.JTI)
		if err != nil {
			// Fail closed: an unreachable blacklist denies the request.
			return Validation{}, errors.Wrap(err, "Issuer.Validate blacklist lookup")
		}
		if revoked {
			return Validation{Claims: &claims, Reason: ReasonRevoked}, nil
		}
	}

	return Validation{Valid: true, Claims: &claims}, nil
}

func categoriseParseError(err error) Reason {
	switch {
	case err == nil:
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonBadSignature
	default:
		return ReasonMalformed
	}
}

func claimsFromMap(mapClaims jwt.MapClaims) Claims {
	sub, _ := mapClaims["sub"].(string)
	jti, _ := mapClaims["jti"].(string)
	iat, _ := mapClaims["iat"].(float64)
	exp, _ := mapClaims["exp"].(float64)

	extra := make(map[string]any)
	for k, v := range mapClaims {
		switch k {
		case "iss", "sub", "aud", "iat", "exp", "jti":
		default:
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		extra = nil
	}

	return Claims{
		Subject:   sub,
		JTI:       jti,
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
		Extra:     extra,
	}
}
