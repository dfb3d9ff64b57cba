package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloo-solutions/copilot/internal/service"
)

// GlobalConfig is the per-user CLI state kept in config.json.
type GlobalConfig struct {
	APIKey string `json:"api_key"`
	APIURL string `json:"api_url"`

	// Defaults applied by ask when the matching flag is not given.
	User     string   `json:"default_user,omitempty"`
	Roles    []string `json:"default_roles,omitempty"`
	Language string   `json:"default_language,omitempty"`
}

// getConfigPathFunc is swapped in tests.
var getConfigPathFunc = func() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "copilot", "config.json"), nil
}

// GetConfigPath returns the location of config.json.
func GetConfigPath() (string, error) {
	return getConfigPathFunc()
}

// LoadGlobalConfig reads config.json. A missing file yields nil, nil.
func LoadGlobalConfig() (*GlobalConfig, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &GlobalConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveGlobalConfig writes config.json readable only by the owner, since it
// holds the API key.
func SaveGlobalConfig(cfg *GlobalConfig) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DeleteGlobalConfig removes config.json if present.
func DeleteGlobalConfig() error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

// CredentialSource names where the API key came from.
type CredentialSource string

const (
	SourceFlag         CredentialSource = "flag"
	SourceEnv          CredentialSource = "env"
	SourceGlobalConfig CredentialSource = "global_config"
	SourceNone         CredentialSource = "none"
)

// Credentials are the resolved key and server URL.
type Credentials struct {
	APIKey string
	APIURL string
	Source CredentialSource
}

// ResolveCredentials picks the key and URL independently from flags, then
// the environment, then config.json. The URL falls back to the local server.
func ResolveCredentials(flagKey, flagURL string) (Credentials, error) {
	creds := Credentials{APIKey: flagKey, APIURL: flagURL, Source: SourceNone}
	if flagKey != "" {
		creds.Source = SourceFlag
	}

	if creds.APIKey == "" {
		if creds.APIKey = os.Getenv(envAPIKey); creds.APIKey != "" {
			creds.Source = SourceEnv
		}
	}
	if creds.APIURL == "" {
		creds.APIURL = os.Getenv(envAPIURL)
	}

	if creds.APIKey == "" || creds.APIURL == "" {
		cfg, err := LoadGlobalConfig()
		if err != nil {
			return creds, err
		}
		if cfg != nil {
			if creds.APIKey == "" && cfg.APIKey != "" {
				creds.APIKey, creds.Source = cfg.APIKey, SourceGlobalConfig
			}
			if creds.APIURL == "" {
				creds.APIURL = cfg.APIURL
			}
		}
	}

	if creds.APIURL == "" {
		creds.APIURL = defaultAPIURL
	}
	return creds, nil
}

// GetCredentialSource reports the credentials the CLI would use without
// flags. An unreadable config.json counts as no credentials.
func GetCredentialSource() (CredentialSource, string, string) {
	creds, err := ResolveCredentials("", "")
	if err != nil || creds.Source == SourceNone {
		return SourceNone, "", ""
	}
	return creds.Source, creds.APIKey, creds.APIURL
}

// IsValidAPIKey reports whether key has the cpk_ token shape.
func IsValidAPIKey(key string) bool {
	return service.IsValidAPIToken(key)
}
