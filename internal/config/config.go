package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/RichardoC/padchat/internal/session"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "CHAT"

	DefaultBackendURL = "http://localhost:8000"
	DefaultModel      = "gpt-3.5-turbo"
	DefaultAltModel   = "gpt-4"
	DefaultTimeout    = 60 * time.Second
	DefaultLogFile    = "padchat.log"
)

// Keys double as flag names; CHAT_<KEY> with dashes as underscores is the env form.
const (
	KeyBackendURL     = "backend-url"
	KeyAPIKey         = "api-key"
	KeyModel          = "model"
	KeyAltModel       = "alt-model"
	KeyTimeout        = "timeout"
	KeyConflictPolicy = "conflict-policy"
	KeyMarkdown       = "markdown"
	KeyEstimate       = "estimate-tokens"
	KeyLogFile        = "log-file"
	KeyVerbose        = "verbose"
	KeyDiagnosticsDB  = "diagnostics-db"
	KeyStrict         = "strict-config"
)

type Config struct {
	BackendURL     string
	APIKey         string
	Model          string
	AltModel       string
	Timeout        time.Duration
	ConflictPolicy session.Policy
	Markdown       bool
	EstimateTokens bool
	LogFile        string
	Verbose        bool
	DiagnosticsDB  string
	Strict         bool
}

var ErrMissingBackendURL = errors.New("backend url is not configured (set CHAT_BACKEND_URL)")

// NewViper loads a .env file from the working directory if there is one and
// returns a viper instance reading CHAT_* variables. The instance is usable
// even when the error is set: a missing .env is fine, an unreadable one is not.
func NewViper() (*viper.Viper, error) {
	var envErr error
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		envErr = fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyModel, DefaultModel)
	v.SetDefault(KeyAltModel, DefaultAltModel)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyConflictPolicy, session.PolicyReject.String())
	v.SetDefault(KeyLogFile, DefaultLogFile)
	return v, envErr
}

// BindFlags registers the persistent flags on fs and binds them to v, so a
// flag set on the command line wins over the environment.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.String(KeyBackendURL, "", "backend base url (default "+DefaultBackendURL+")")
	flags.String(KeyAPIKey, "", "api key sent as a bearer token")
	flags.String(KeyModel, DefaultModel, "model identifier selected at start")
	flags.String(KeyAltModel, DefaultAltModel, "model identifier the toggle switches to")
	flags.Duration(KeyTimeout, DefaultTimeout, "per-request timeout, 0 disables it")
	flags.String(KeyConflictPolicy, session.PolicyReject.String(), "what a request does while another is pending: reject, queue or supersede")
	flags.Bool(KeyMarkdown, false, "render assistant replies as markdown")
	flags.Bool(KeyEstimate, false, "show a token estimate of the draft prompt (may download tokenizer data once)")
	flags.String(KeyLogFile, DefaultLogFile, "diagnostic log file")
	flags.BoolP(KeyVerbose, "v", false, "debug level logging")
	flags.String(KeyDiagnosticsDB, "", "sqlite file journaling every backend exchange")
	flags.Bool(KeyStrict, false, "fail at startup when the backend url is not set")

	for _, key := range []string{
		KeyBackendURL, KeyAPIKey, KeyModel, KeyAltModel, KeyTimeout, KeyConflictPolicy,
		KeyMarkdown, KeyEstimate, KeyLogFile, KeyVerbose, KeyDiagnosticsDB, KeyStrict,
	} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", key, err)
		}
	}
	return nil
}

// Load reads the configuration and validates it.
func Load(v *viper.Viper) (*Config, error) {
	policy, err := session.ParsePolicy(v.GetString(KeyConflictPolicy))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BackendURL:     strings.TrimSpace(v.GetString(KeyBackendURL)),
		APIKey:         v.GetString(KeyAPIKey),
		Model:          strings.TrimSpace(v.GetString(KeyModel)),
		AltModel:       strings.TrimSpace(v.GetString(KeyAltModel)),
		Timeout:        v.GetDuration(KeyTimeout),
		ConflictPolicy: policy,
		Markdown:       v.GetBool(KeyMarkdown),
		EstimateTokens: v.GetBool(KeyEstimate),
		LogFile:        v.GetString(KeyLogFile),
		Verbose:        v.GetBool(KeyVerbose),
		DiagnosticsDB:  v.GetString(KeyDiagnosticsDB),
		Strict:         v.GetBool(KeyStrict),
	}

	if cfg.BackendURL == "" {
		if cfg.Strict {
			return nil, ErrMissingBackendURL
		}
		cfg.BackendURL = DefaultBackendURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend url %q: want http(s)://host[:port]", c.BackendURL)
	}
	if c.Model == "" || c.AltModel == "" {
		return errors.New("both model identifiers must be set")
	}
	if c.Model == c.AltModel {
		return fmt.Errorf("model and alt-model are both %q", c.Model)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}
