package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeLayout is the local-time layout of the time window options.
const TimeLayout = "2006-01-02T15:04:05"

// ParseLocalTime parses s in TimeLayout; an empty string is the zero time.
func ParseLocalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time %q, want %s", s, TimeLayout)
	}
	return t, nil
}

// Config is the optional YAML file behind --config. Command line flags
// given explicitly take precedence over it.
type Config struct {
	PatternFile     string        `yaml:"pattern_file"`
	Threads         int           `yaml:"threads"`
	Whitelist       []string      `yaml:"whitelist"`
	Blacklist       []string      `yaml:"blacklist"`
	ExcludeDirs     []string      `yaml:"exclude_dirs"`
	Depth           int           `yaml:"depth"`
	Archives        bool          `yaml:"archives"`
	SkipHidden      bool          `yaml:"skip_hidden"`
	StopWhenFound   *bool         `yaml:"stop_when_found"`
	StopArchive     bool          `yaml:"stop_archive"`
	FirstMatch      bool          `yaml:"first_match"`
	ExtractPath     string        `yaml:"extract_path"`
	RegexTimeout    time.Duration `yaml:"regex_timeout"`
	Timeout         time.Duration `yaml:"timeout"`
	FailFast        bool          `yaml:"fail_fast"`
	LogFile         string        `yaml:"log_file"`
	LogLevel        string        `yaml:"log_level"`
	SaveMatchesFile string        `yaml:"save_matches_file"`
	SaveMatchesDir  string        `yaml:"save_matches_folder"`
	Progress        bool          `yaml:"progress"`

	// local times in TimeLayout
	CreatedAfter        string `yaml:"created_after"`
	ModifiedBefore      string `yaml:"modified_before"`
	EntryModifiedBefore string `yaml:"entry_modified_before"`
}

// LoadConfig reads a YAML config file. A missing file is an error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Threads < 0 || cfg.Depth < 0 {
		return nil, fmt.Errorf("config %s: threads and depth must not be negative", path)
	}
	for _, v := range []string{cfg.CreatedAfter, cfg.ModifiedBefore, cfg.EntryModifiedBefore} {
		if _, err := ParseLocalTime(v); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return &cfg, nil
}
