package security

import (
	"errors"
	"time"

	"github.com/vinocount/session-service/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Токены выпускает внешний identity provider; здесь только проверка по общему
// секрету (HS256) и разбор клеймов роли.
type AccessClaims struct {
	jwt.RegisteredClaims
	DisplayName string          `json:"name"`
	Role        domain.RoleName `json:"role"`
}

type Verifier struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
}

func NewVerifier(secret, issuer string, clockSkew time.Duration) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		issuer:    issuer,
		clockSkew: clockSkew,
	}
}

func (v *Verifier) Parse(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.clockSkew), // люфт на «часы» устройств
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidSubject
	}
	if claims.Role == "" {
		// нет клейма роли — даём наименее привилегированную
		claims.Role = domain.RoleStaff
	}
	return claims, nil
}

// Sign выпускает токен с теми же клеймами; используется в dev-окружении и тестах.
func (v *Verifier) Sign(userID, displayName string, role domain.RoleName, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-v.clockSkew)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		DisplayName: displayName,
		Role:        role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
