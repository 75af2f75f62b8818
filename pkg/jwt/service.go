package jwt

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Service issues and checks admin tokens with one signing key
type Service struct {
	secretKey []byte
	expiry    time.Duration
	now       func() time.Time
}

// NewService creates a token service. An empty secret gets a random
// per-process key, so tokens do not survive a restart.
func NewService(secretKey string, expiry time.Duration) (*Service, error) {
	key := []byte(secretKey)
	if len(key) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		key = []byte(hex.EncodeToString(buf))
	}

	if expiry == 0 {
		expiry = 8 * time.Hour
	}

	return &Service{
		secretKey: key,
		expiry:    expiry,
		now:       time.Now,
	}, nil
}

// Expiry is the lifetime of issued tokens
func (s *Service) Expiry() time.Duration {
	return s.expiry
}

func (s *Service) GenerateToken(subject string) (string, error) {
	return GenerateToken(s.secretKey, subject, s.expiry, s.now())
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.secretKey, tokenString, s.now())
}
