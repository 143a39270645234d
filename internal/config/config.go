package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config represents buildflame configuration
type Config struct {
	Jenkins JenkinsConfig `json:"jenkins"`
	Data    DataConfig    `json:"data"`
	Fetch   FetchConfig   `json:"fetch"`
	Render  RenderConfig  `json:"render"`
}

// JenkinsConfig holds the server location and credentials
type JenkinsConfig struct {
	Base     string `json:"base"`
	Username string `json:"username,omitempty"`
	// Token, TokenFile and TokenCommand are alternative token sources,
	// consulted in that order.
	Token        string `json:"token,omitempty"`
	TokenFile    string `json:"tokenFile,omitempty"`
	TokenCommand string `json:"tokenCommand,omitempty"`
}

// DataConfig holds local storage settings
type DataConfig struct {
	Dir string `json:"dir"`
}

// FetchConfig holds fetch worker settings
type FetchConfig struct {
	Workers int `json:"workers"`
}

// RenderConfig holds chart output settings
type RenderConfig struct {
	OutputDir string `json:"outputDir"`
	Title     string `json:"title,omitempty"`
	// TitleParameter names the build parameter whose value titles each
	// build on the chart.
	TitleParameter string      `json:"titleParameter,omitempty"`
	Colors         []ColorRule `json:"colors,omitempty"`
}

// ColorRule assigns a base color to nodes whose name matches a pattern.
// Rules are an ordered list, not a map: the first matching pattern wins,
// so order must survive the config file round trip.
type ColorRule struct {
	Pattern string `json:"pattern"`
	Color   string `json:"color"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Jenkins: JenkinsConfig{
			Username: os.Getenv("JENKINS_USERNAME"),
			Token:    os.Getenv("JENKINS_API_TOKEN"),
		},
		Data: DataConfig{
			Dir: filepath.Join(home, ".buildflame"),
		},
		Fetch: FetchConfig{
			Workers: 7,
		},
		Render: RenderConfig{
			OutputDir: ".",
		},
	}
}

// globalConfigPath returns the path to the global config file
func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".buildflame.json"), nil
}

// localConfigPath returns the path to the per-directory config file
func localConfigPath() string {
	return "buildflame.json"
}

// LoadConfig loads configuration, merging in order of increasing
// precedence: defaults, the global file, the local file, and finally an
// explicitly named file. Missing files are skipped; files that exist but
// do not parse are an error rather than silently ignored, since a typo in
// credentials is otherwise very hard to diagnose.
func LoadConfig(explicit string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath, err := globalConfigPath(); err == nil {
		if err := mergeFile(cfg, globalPath, false); err != nil {
			return nil, err
		}
	}
	if err := mergeFile(cfg, localConfigPath(), false); err != nil {
		return nil, err
	}
	if explicit != "" {
		if err := mergeFile(cfg, explicit, true); err != nil {
			return nil, err
		}
	}

	if cfg.Fetch.Workers <= 0 {
		cfg.Fetch.Workers = 7
	}
	return cfg, nil
}

// mergeFile merges one config file into cfg. A missing file is an error
// only when the file was named explicitly.
func mergeFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if required {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return nil
	}
	var src Config
	if err := json.Unmarshal(StripComments(data), &src); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	mergeConfig(cfg, &src)
	return nil
}

// StripComments removes //-comment lines from a config file. Only whole
// comment lines are stripped, so URLs inside values stay intact.
func StripComments(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}
		kept = append(kept, line)
	}
	return []byte(strings.Join(kept, "\n"))
}

// SaveGlobalConfig saves configuration to the global config file
func SaveGlobalConfig(cfg *Config) error {
	globalPath, err := globalConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(globalPath, data, 0644)
}

// SaveLocalConfig saves configuration to the per-directory config file
func SaveLocalConfig(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(localConfigPath(), data, 0644)
}

// GetValue retrieves a configuration value by key (e.g., "jenkins.base")
func GetValue(cfg *Config, key string) (string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid config key: %s (expected format: section.key)", key)
	}

	section := parts[0]
	field := parts[1]

	switch section {
	case "jenkins":
		switch field {
		case "base":
			return cfg.Jenkins.Base, nil
		case "username":
			return cfg.Jenkins.Username, nil
		case "token":
			return cfg.Jenkins.Token, nil
		case "tokenfile":
			return cfg.Jenkins.TokenFile, nil
		case "tokencommand":
			return cfg.Jenkins.TokenCommand, nil
		default:
			return "", fmt.Errorf("unknown jenkins config field: %s", field)
		}
	case "data":
		switch field {
		case "dir":
			return cfg.Data.Dir, nil
		default:
			return "", fmt.Errorf("unknown data config field: %s", field)
		}
	case "fetch":
		switch field {
		case "workers":
			return strconv.Itoa(cfg.Fetch.Workers), nil
		default:
			return "", fmt.Errorf("unknown fetch config field: %s", field)
		}
	case "render":
		switch field {
		case "outputdir":
			return cfg.Render.OutputDir, nil
		case "title":
			return cfg.Render.Title, nil
		case "titleparameter":
			return cfg.Render.TitleParameter, nil
		default:
			return "", fmt.Errorf("unknown render config field: %s", field)
		}
	default:
		return "", fmt.Errorf("unknown config section: %s", section)
	}
}

// SetValue sets a configuration value by key (e.g., "jenkins.base",
// "https://jenkins.example.com") in the global or local config file
func SetValue(key, value string, global bool) error {
	var path string
	if global {
		var err error
		path, err = globalConfigPath()
		if err != nil {
			return err
		}
	} else {
		path = localConfigPath()
	}

	// Edit only the target file, not the merged view, so a local set does
	// not freeze global values into the local file.
	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(StripComments(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return fmt.Errorf("invalid config key: %s (expected format: section.key)", key)
	}

	section := parts[0]
	field := parts[1]

	switch section {
	case "jenkins":
		switch field {
		case "base":
			cfg.Jenkins.Base = value
		case "username":
			cfg.Jenkins.Username = value
		case "token":
			cfg.Jenkins.Token = value
		case "tokenfile":
			cfg.Jenkins.TokenFile = value
		case "tokencommand":
			cfg.Jenkins.TokenCommand = value
		default:
			return fmt.Errorf("unknown jenkins config field: %s", field)
		}
	case "data":
		switch field {
		case "dir":
			cfg.Data.Dir = value
		default:
			return fmt.Errorf("unknown data config field: %s", field)
		}
	case "fetch":
		switch field {
		case "workers":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("fetch.workers must be an integer: %q", value)
			}
			cfg.Fetch.Workers = n
		default:
			return fmt.Errorf("unknown fetch config field: %s", field)
		}
	case "render":
		switch field {
		case "outputdir":
			cfg.Render.OutputDir = value
		case "title":
			cfg.Render.Title = value
		case "titleparameter":
			cfg.Render.TitleParameter = value
		default:
			return fmt.Errorf("unknown render config field: %s", field)
		}
	default:
		return fmt.Errorf("unknown config section: %s", section)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// mergeConfig merges source config into destination config
// Only non-empty values from source override destination
func mergeConfig(dst, src *Config) {
	if src.Jenkins.Base != "" {
		dst.Jenkins.Base = src.Jenkins.Base
	}
	if src.Jenkins.Username != "" {
		dst.Jenkins.Username = src.Jenkins.Username
	}
	if src.Jenkins.Token != "" {
		dst.Jenkins.Token = src.Jenkins.Token
	}
	if src.Jenkins.TokenFile != "" {
		dst.Jenkins.TokenFile = src.Jenkins.TokenFile
	}
	if src.Jenkins.TokenCommand != "" {
		dst.Jenkins.TokenCommand = src.Jenkins.TokenCommand
	}

	if src.Data.Dir != "" {
		dst.Data.Dir = src.Data.Dir
	}

	if src.Fetch.Workers != 0 {
		dst.Fetch.Workers = src.Fetch.Workers
	}

	if src.Render.OutputDir != "" {
		dst.Render.OutputDir = src.Render.OutputDir
	}
	if src.Render.Title != "" {
		dst.Render.Title = src.Render.Title
	}
	if src.Render.TitleParameter != "" {
		dst.Render.TitleParameter = src.Render.TitleParameter
	}
	if len(src.Render.Colors) != 0 {
		dst.Render.Colors = src.Render.Colors
	}
}
