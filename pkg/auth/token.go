package auth

import (
	"errors"
	"fmt"
	"time"

	"payout-controlplane/pkg/config"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"go.uber.org/fx"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	defaultIssuer   = "payout-controlplane"
	defaultTokenTTL = 24 * time.Hour
	leeway          = 30 * time.Second
)

var (
	ErrMissingSecret = errors.New("auth secret is not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

var Module = fx.Module("auth",
	fx.Provide(ProvideIssuer),
)

// Claims carried by an access token next to the registered ones.
type Claims struct {
	Role     string `json:"role"`
	Username string `json:"username"`
}

type Principal struct {
	UserID   string
	Username string
	Role     string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	signer jose.Signer
	now    func() time.Time
}

func ProvideIssuer(cfg *config.Config) (*Issuer, error) {
	return NewIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
}

func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if issuer == "" {
		issuer = defaultIssuer
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	return &Issuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		signer: signer,
		now:    time.Now,
	}, nil
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func (i *Issuer) Issue(p Principal) (string, error) {
	now := i.now()
	std := jwt.Claims{
		Subject:   p.UserID,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(i.ttl)),
	}

	return jwt.Signed(i.signer).
		Claims(std).
		Claims(Claims{Role: p.Role, Username: p.Username}).
		Serialize()
}

func (i *Issuer) Verify(raw string) (*Principal, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var (
		std    jwt.Claims
		custom Claims
	)
	if err := tok.Claims(i.secret, &std, &custom); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if err := std.ValidateWithLeeway(jwt.Expected{Issuer: i.issuer, Time: i.now()}, leeway); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if std.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := custom.Role
	if role != RoleAdmin {
		role = RoleUser
	}
	return &Principal{UserID: std.Subject, Username: custom.Username, Role: role}, nil
}
