package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"ProofChain/internal/proofs"
)

const (
	defaultLeeway   = 30 * time.Second
	defaultTokenTTL = time.Hour
)

// Service 根据配置的模式从 HTTP 请求中解析调用方身份。
type Service struct {
	mode   Mode
	header string
	jwt    *jwtVerifier
}

// NewService 校验配置并创建 Service。
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeHeader
	}
	svc := &Service{mode: mode}
	switch mode {
	case ModeDisabled:
	case ModeHeader:
		svc.header = strings.TrimSpace(cfg.Header)
		if svc.header == "" {
			svc.header = DefaultHeader
		}
	case ModeJWT:
		secret := strings.TrimSpace(cfg.JWT.Secret)
		if secret == "" {
			return nil, errors.New("jwt secret must be configured")
		}
		leeway := cfg.JWT.Leeway
		if leeway <= 0 {
			leeway = defaultLeeway
		}
		ttl := cfg.JWT.TTL
		if ttl <= 0 {
			ttl = defaultTokenTTL
		}
		svc.jwt = &jwtVerifier{
			secret:   []byte(secret),
			issuer:   strings.TrimSpace(cfg.JWT.Issuer),
			audience: strings.TrimSpace(cfg.JWT.Audience),
			leeway:   leeway,
			ttl:      ttl,
		}
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
	return svc, nil
}

// Mode 返回当前的工作模式。
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Resolve 从请求中解析调用方。请求未携带任何凭证时返回 (ZeroIdentity, false, nil)，
// 携带了但无法验证时返回错误。
func (s *Service) Resolve(r *http.Request) (proofs.Identity, bool, error) {
	if s == nil || s.mode == ModeDisabled {
		return proofs.ZeroIdentity, false, nil
	}
	switch s.mode {
	case ModeHeader:
		raw := strings.TrimSpace(r.Header.Get(s.header))
		if raw == "" {
			return proofs.ZeroIdentity, false, nil
		}
		return parseCaller(raw)
	case ModeJWT:
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			return proofs.ZeroIdentity, false, nil
		}
		subject, err := s.jwt.verify(token)
		if err != nil {
			return proofs.ZeroIdentity, false, err
		}
		return parseCaller(subject)
	}
	return proofs.ZeroIdentity, false, nil
}

// IssueToken 为 caller 签发一个 HS256 访问令牌，仅在 jwt 模式下可用。
func (s *Service) IssueToken(caller proofs.Identity) (string, error) {
	if s == nil || s.jwt == nil {
		return "", errors.New("token issuance requires jwt mode")
	}
	if caller == proofs.ZeroIdentity {
		return "", ErrInvalidAddress
	}
	return s.jwt.sign(caller.Hex(), time.Now())
}

func parseCaller(raw string) (proofs.Identity, bool, error) {
	caller, err := proofs.ParseIdentity(raw)
	if err != nil || caller == proofs.ZeroIdentity {
		return proofs.ZeroIdentity, false, ErrInvalidAddress
	}
	return caller, true, nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// jwtVerifier 负责令牌的签名与验证。
type jwtVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	ttl      time.Duration
}

func (v *jwtVerifier) sign(subject string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (v *jwtVerifier) verify(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
