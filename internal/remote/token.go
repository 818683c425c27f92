package remote

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	errs "signage-agent-go/internal/platform/errors"
)

// DeviceToken signs short-lived device scoped JWT tokens used to
// authenticate the push channel handshake.
type DeviceToken struct {
	secretKey []byte
	ttl       time.Duration
}

// NewDeviceToken builds a token helper using the shared API key as secret.
func NewDeviceToken(secretKey string) *DeviceToken {
	return &DeviceToken{
		secretKey: []byte(secretKey),
		ttl:       time.Hour,
	}
}

// WithTTL allows customising the expiration duration.
func (dt *DeviceToken) WithTTL(ttl time.Duration) *DeviceToken {
	if ttl > 0 {
		dt.ttl = ttl
	}
	return dt
}

// Generate issues a JWT carrying the device identifier.
func (dt *DeviceToken) Generate(deviceID string) (string, error) {
	const op = "token.Generate"

	if len(dt.secretKey) == 0 {
		return "", errs.New(errs.KindConfig, op, "token secret is empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"device_id": deviceID,
		"exp":       now.Add(dt.ttl).Unix(),
		"iat":       now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(dt.secretKey)
	if err != nil {
		return "", errs.Wrap(errs.KindGateway, op, "sign token", err)
	}
	return signed, nil
}

// Verify validates the JWT and extracts the device identifier.
func (dt *DeviceToken) Verify(tokenString string) (string, error) {
	const op = "token.Verify"

	if len(dt.secretKey) == 0 {
		return "", errs.New(errs.KindConfig, op, "token secret is empty")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return dt.secretKey, nil
	})
	if err != nil {
		return "", errs.Wrap(errs.KindGateway, op, "parse token", err)
	}
	if !token.Valid {
		return "", errs.New(errs.KindGateway, op, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errs.New(errs.KindGateway, op, "invalid claims")
	}
	deviceID, ok := claims["device_id"].(string)
	if !ok || deviceID == "" {
		return "", errs.New(errs.KindGateway, op, "missing device_id claim")
	}
	return deviceID, nil
}
