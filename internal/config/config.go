package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the service reads from the environment. Loaded
// once at startup; no field is mutated afterwards.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	PostgresDSN string

	// HMACSecret signs stateless tokens and QR payloads. Mandatory: Load
	// fails when it is absent so the process never serves with a default
	// secret.
	HMACSecret string
	Issuer     string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	LegacyTokenTTL  time.Duration

	QRCodeWindow    time.Duration
	DuplicateWindow time.Duration

	FaceMatcherURL       string
	FaceThreshold        float64
	FingerprintThreshold float64
	MatcherTimeout       time.Duration

	RequireGeolocation bool
	RequireGeofence    bool

	EnableCodePunch        bool
	EnableQRCodePunch      bool
	EnableFacialPunch      bool
	EnableFingerprintPunch bool

	// Per-IP token bucket applied to /oauth/token and facial punches.
	RateLimitPerSecond int
	RateLimitBurst     int
}

const envPrefix = "PONTUAL_"

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:               getString("HTTP_ADDR", ":8080"),
		GRPCAddr:               getString("GRPC_ADDR", ""),
		PostgresDSN:            getString("PG_DSN", ""),
		HMACSecret:             strings.TrimSpace(os.Getenv(envPrefix + "HMAC_SECRET")),
		Issuer:                 getString("ISSUER", "pontual"),
		AccessTokenTTL:         getDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:        getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		LegacyTokenTTL:         getDuration("LEGACY_TOKEN_TTL", 24*time.Hour),
		QRCodeWindow:           getDuration("QR_WINDOW", 300*time.Second),
		DuplicateWindow:        getDuration("DUPLICATE_WINDOW", 60*time.Second),
		FaceMatcherURL:         getString("FACE_MATCHER_URL", "http://localhost:5000"),
		FaceThreshold:          getFloat("FACE_THRESHOLD", 0.40),
		FingerprintThreshold:   getFloat("FINGERPRINT_THRESHOLD", 0.85),
		MatcherTimeout:         getDuration("MATCHER_TIMEOUT", 10*time.Second),
		RequireGeolocation:     getBool("REQUIRE_GEOLOCATION", false),
		RequireGeofence:        getBool("REQUIRE_GEOFENCE", false),
		EnableCodePunch:        getBool("ENABLE_CODE_PUNCH", true),
		EnableQRCodePunch:      getBool("ENABLE_QRCODE_PUNCH", true),
		EnableFacialPunch:      getBool("ENABLE_FACIAL_PUNCH", true),
		EnableFingerprintPunch: getBool("ENABLE_FINGERPRINT_PUNCH", true),
		RateLimitPerSecond:     getInt("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:         getInt("RATE_LIMIT_BURST", 10),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.HMACSecret == "" {
		return errors.New("config: " + envPrefix + "HMAC_SECRET is required")
	}
	if c.FaceThreshold <= 0 || c.FaceThreshold > 1 {
		return fmt.Errorf("config: face threshold %v out of range (0,1]", c.FaceThreshold)
	}
	if c.FingerprintThreshold <= 0 || c.FingerprintThreshold > 1 {
		return fmt.Errorf("config: fingerprint threshold %v out of range (0,1]", c.FingerprintThreshold)
	}
	for name, d := range map[string]time.Duration{
		"access token TTL":  c.AccessTokenTTL,
		"refresh token TTL": c.RefreshTokenTTL,
		"legacy token TTL":  c.LegacyTokenTTL,
		"QR window":         c.QRCodeWindow,
		"duplicate window":  c.DuplicateWindow,
		"matcher timeout":   c.MatcherTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	if v == "" {
		return def
	}
	// Accept plain seconds for compatibility with the mobile provisioning
	// scripts, or a Go duration string.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
