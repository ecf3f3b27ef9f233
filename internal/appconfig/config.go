// Package appconfig centralizes environment-variable configuration in the
// style of cmd/server/main.go's local env() helper, generalized into a
// struct so cmd/mdplaned and tests can build one without touching
// os.Getenv directly.
package appconfig

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/albri/mdplane-sub004/internal/ratelimit"
)

// Config is the full set of environment-driven settings for the service
// (§6). DATABASE_URL and MP_JWT_SECRET are required in production; every
// other field has a safe default.
type Config struct {
	Env      string // "dev" enables console logging and relaxed checks
	HTTPAddr string

	DatabaseURL string

	JWTSecret string // MP_JWT_SECRET, signs WS subscription tokens

	TrustProxyHeaders               bool
	TrustSingleXForwardedFor        bool
	TrustedProxySharedSecret        string
	TrustedProxySharedSecretHeader  string
	RequireTrustedIPForAnonymousOps bool

	AllowHTTPWebhooks     bool
	IntegrationTestMode   bool
	WebhookTestAllowHosts []string

	DisableBackgroundJobs bool

	RateLimit ratelimit.Config

	MetricsAddr string
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Load reads the process environment into a Config. It does not validate
// required fields — callers (cmd/mdplaned) decide when a missing value is
// fatal, since tests want to build a Config without a real database.
func Load() Config {
	isDev := env("ENV", "") == "dev"

	var allowHosts []string
	if raw := env("WEBHOOK_TEST_ALLOW_HOSTS", ""); raw != "" {
		for _, h := range strings.Split(raw, ",") {
			if h = strings.TrimSpace(h); h != "" {
				allowHosts = append(allowHosts, h)
			}
		}
	}

	return Config{
		Env:                             env("ENV", ""),
		HTTPAddr:                        env("HTTP_ADDR", ":8080"),
		DatabaseURL:                     env("DATABASE_URL", ""),
		JWTSecret:                       env("MP_JWT_SECRET", defaultJWTSecret(isDev)),
		TrustProxyHeaders:               envBool("TRUST_PROXY_HEADERS", false),
		TrustSingleXForwardedFor:        envBool("TRUST_SINGLE_X_FORWARDED_FOR", false),
		TrustedProxySharedSecret:        env("TRUSTED_PROXY_SHARED_SECRET", ""),
		TrustedProxySharedSecretHeader:  env("TRUSTED_PROXY_SHARED_SECRET_HEADER", ""),
		RequireTrustedIPForAnonymousOps: envBool("REQUIRE_TRUSTED_CLIENT_IP_FOR_ANONYMOUS_RATE_LIMITS", false),
		AllowHTTPWebhooks:               envBool("ALLOW_HTTP_WEBHOOKS", false),
		IntegrationTestMode:             envBool("INTEGRATION_TEST_MODE", false),
		WebhookTestAllowHosts:           allowHosts,
		DisableBackgroundJobs:           envBool("DISABLE_BACKGROUND_JOBS", false),
		RateLimit:                       ratelimit.LoadConfig(os.Getenv),
		MetricsAddr:                     env("METRICS_ADDR", ":9090"),
	}
}

func defaultJWTSecret(isDev bool) string {
	if isDev {
		return "dev-secret-change-in-production"
	}
	return ""
}

// IsDev reports whether ENV is explicitly "dev".
func (c Config) IsDev() bool {
	return c.Env == "dev"
}

// RateLimitMaxWindow returns the widest configured rate-limit window,
// used by the scheduler to size the counter-GC cutoff.
func (c Config) RateLimitMaxWindow() time.Duration {
	return c.RateLimit.MaxWindow()
}
