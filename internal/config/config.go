package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config armazena a configuração da aplicação
type Config struct {
	ServerPort     int           `envconfig:"SERVER_PORT" default:"8080"`
	JWTSecret      string        `envconfig:"JWT_SECRET" required:"true"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	MigrationsPath string        `envconfig:"MIGRATIONS_PATH" default:"./migrations/001_init.sql"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	ChallengeTTL   time.Duration `envconfig:"CHALLENGE_TTL" default:"5m"`
	LookupTimeout  time.Duration `envconfig:"LOOKUP_TIMEOUT" default:"3s"`

	SignatureScheme   string `envconfig:"SIGNATURE_SCHEME" default:"ed25519"`
	AttesterPublicKey string `envconfig:"ATTESTER_PUBLIC_KEY"`
	RequireVerified   bool   `envconfig:"REQUIRE_VERIFIED" default:"false"`
	MaxGroupSize      int    `envconfig:"MAX_GROUP_SIZE" default:"32"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	CookieSecure   bool     `envconfig:"COOKIE_SECURE" default:"true"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`
}

// Load carrega a configuração das variáveis de ambiente
func Load(cfg *Config) error {
	return envconfig.Process("", cfg)
}
