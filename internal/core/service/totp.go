package service

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	secretBytes = 20
	totpPeriod  = 30
	totpSkew    = 1
	qrSize      = 256
)

var b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

var validateOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      totpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPEngine generates secrets, builds provisioning material and verifies
// submitted codes. Verification is a pure function of secret, code and time.
type TOTPEngine struct {
	UserIssuer      string
	ModeratorIssuer string
}

// NewTOTPEngine returns an engine using distinct issuer namespaces for users
// and moderators.
func NewTOTPEngine(userIssuer, moderatorIssuer string) *TOTPEngine {
	return &TOTPEngine{UserIssuer: userIssuer, ModeratorIssuer: moderatorIssuer}
}

// GenerateSecret returns a fresh base32 secret backed by 20 random bytes.
func (e *TOTPEngine) GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return b32NoPadding.EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth:// URI for the secret.
func (e *TOTPEngine) ProvisioningURI(secret, label, issuer string) (string, error) {
	key, err := e.key(secret, label, issuer)
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// QRCode renders the provisioning URI of the secret as a PNG image.
func (e *TOTPEngine) QRCode(secret, label, issuer string) ([]byte, error) {
	key, err := e.key(secret, label, issuer)
	if err != nil {
		return nil, err
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *TOTPEngine) key(secret, label, issuer string) (*otp.Key, error) {
	raw, err := b32NoPadding.DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	if label == "" {
		label = issuer
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: label,
		Period:      totpPeriod,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("build provisioning key: %w", err)
	}
	return key, nil
}

// Verify reports whether code is the 6-digit code of secret at now, allowing
// one 30-second step of skew either way.
func (e *TOTPEngine) Verify(secret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != 6 || !isDigits(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), validateOpts)
	return err == nil && ok
}

// Code returns the code for secret at t.
func (e *TOTPEngine) Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), validateOpts)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
