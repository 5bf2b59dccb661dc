package provisioning

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"axocore/internal/domain"
	"axocore/internal/errs"
)

// HS256TokenSource mints a short-lived bearer token locally from a shared
// secret, standing in for a real key server's session issuance until one
// is configured.
type HS256TokenSource struct {
	secret   []byte
	username domain.Username
	device   domain.DeviceID
	ttl      time.Duration
}

func NewHS256TokenSource(secret []byte, username domain.Username, device domain.DeviceID, ttl time.Duration) *HS256TokenSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &HS256TokenSource{secret: secret, username: username, device: device, ttl: ttl}
}

func (s *HS256TokenSource) Token(ctx context.Context) (string, error) {
	return s.sign()
}

func (s *HS256TokenSource) Refresh(ctx context.Context) (string, error) {
	return s.sign()
}

func (s *HS256TokenSource) sign() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": s.username.String(),
		"dev": s.device.String(),
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", errs.Wrap(errs.Internal, "sign provisioning token", err)
	}
	return signed, nil
}
