package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"annogate/internal/consumer"
	dErrors "annogate/pkg/domain-errors"
)

// Claims are the annotator auth token claims. IssuedAt and TTL repeat the
// registered iat/exp claims in the form annotator clients read.
type Claims struct {
	ConsumerKey string `json:"consumerKey"`
	UserID      string `json:"userId"`
	Issued      string `json:"issuedAt"`
	TTL         int64  `json:"ttl"`
	jwt.RegisteredClaims
}

// Codec mints and validates annotator auth tokens for one consumer.
type Codec struct {
	consumer *consumer.Consumer
	now      func() time.Time
}

// NewCodec builds a codec that validates tokens signed with c's secret.
func NewCodec(c *consumer.Consumer) *Codec {
	return &Codec{consumer: c, now: time.Now}
}

// Generate signs a token for creds with the consumer's secret. It satisfies
// Generator.
func (c *Codec) Generate(_ context.Context, cons *consumer.Consumer, creds *Credentials) (string, time.Duration, error) {
	if cons == nil || cons.Secret == "" {
		return "", 0, dErrors.New(dErrors.CodeInternal, "consumer has no signing secret")
	}
	ttl := cons.TTL
	if ttl <= 0 {
		ttl = consumer.DefaultTTL
	}
	userID := ""
	if creds != nil {
		userID = creds.UserID
	}

	now := c.now().UTC()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ConsumerKey: cons.Key,
		UserID:      userID,
		Issued:      now.Format(time.RFC3339),
		TTL:         int64(ttl / time.Second),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}).SignedString([]byte(cons.Secret))
	if err != nil {
		return "", 0, dErrors.Wrap(err, dErrors.CodeInternal, "sign token")
	}
	return signed, ttl, nil
}

// Decode validates a token and returns its claims.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	if c.consumer == nil || c.consumer.Secret == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token validation is not configured")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return []byte(c.consumer.Secret), nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.ConsumerKey != c.consumer.Key {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token issued for another consumer")
	}
	return claims, nil
}

// ValidateToken returns the user id bound to a valid token.
func (c *Codec) ValidateToken(tokenString string) (string, error) {
	claims, err := c.Decode(tokenString)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
