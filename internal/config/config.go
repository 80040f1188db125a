package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultEnvFile is read when no --env_file is given. A missing file is not an error.
	DefaultEnvFile = ".env"

	// Viper keys bound to persistent CLI flags.
	KeyDebug     = "debug"
	KeyEnvFile   = "env_file"
	KeyInlinePDF = "inline_pdf"

	apiKeyVariable = "STANNP_API_KEY"
)

var (
	// ErrMissingAPIKey is returned before any network activity when no API key is configured.
	ErrMissingAPIKey = errors.New("config: " + apiKeyVariable + " is not set; export it or add it to the .env file")
	// ErrInvalidConfig wraps validation failures.
	ErrInvalidConfig = errors.New("config: invalid_configuration")
)

// Config is built once at process start and handed to every operation.
type Config struct {
	APIKey   string
	BaseURL  string `validate:"required,url"`
	LogLevel string `validate:"oneof=DEBUG INFO WARN ERROR"`
	Debug    bool
	EnvFile  string
	// InlinePDF sends attachments base64-encoded inside the form body.
	InlinePDF bool
}

type environment struct {
	APIKey   string `env:"STANNP_API_KEY"`
	BaseURL  string `env:"STANNP_BASE_URL" envDefault:"https://us.stannp.com/api/v1"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
	Debug    bool   `env:"STANNP_DEBUG"`
}

// Load assembles the configuration from the .env file, the process
// environment and the flags bound to v. Non-empty process variables take
// precedence over values from the .env file; the process environment itself
// is never modified.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	envFile := strings.TrimSpace(v.GetString(KeyEnvFile))
	if envFile == "" {
		envFile = DefaultEnvFile
	}

	variables, err := readEnvFile(envFile)
	if err != nil {
		return Config{}, err
	}
	for _, entry := range os.Environ() {
		key, value, found := strings.Cut(entry, "=")
		if !found || value == "" {
			continue
		}
		variables[key] = value
	}

	var parsed environment
	if err := env.ParseWithOptions(&parsed, env.Options{Environment: variables}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	configuration := Config{
		APIKey:    strings.TrimSpace(parsed.APIKey),
		BaseURL:   strings.TrimSpace(parsed.BaseURL),
		LogLevel:  strings.ToUpper(strings.TrimSpace(parsed.LogLevel)),
		Debug:     parsed.Debug || v.GetBool(KeyDebug),
		EnvFile:   envFile,
		InlinePDF: v.GetBool(KeyInlinePDF),
	}
	if configuration.APIKey == "" {
		return Config{}, ErrMissingAPIKey
	}
	if configuration.Debug {
		configuration.LogLevel = "DEBUG"
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(configuration); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return configuration, nil
}

func readEnvFile(path string) (map[string]string, error) {
	variables, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return variables, nil
}
