// Package util provides common utilities for vncguard.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// VNC protocol ports; a connection touching one of these is tracked.
	VNCPorts []int `mapstructure:"vnc_ports"`

	// Task cadences
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	AnalysisInterval time.Duration `mapstructure:"analysis_interval"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	BaselineInterval time.Duration `mapstructure:"baseline_interval"`
	StatusInterval   time.Duration `mapstructure:"status_interval"`

	// Detection tuning
	BaselineWindow      time.Duration `mapstructure:"baseline_window"`
	RiskThreshold       float64       `mapstructure:"risk_threshold"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	RecentWindow        time.Duration `mapstructure:"recent_window"`

	// ML model persistence
	ModelDir string `mapstructure:"model_dir"`

	// Response engine
	EnforcementDryRun bool `mapstructure:"enforcement_dry_run"`

	// Threat intelligence
	SuspiciousIPs    []string `mapstructure:"suspicious_ips"`
	ReputationFile   string   `mapstructure:"reputation_file"`
	ReputationCache  int      `mapstructure:"reputation_cache"`

	// Web server
	WebPort int `mapstructure:"web_port"`

	// Optional NATS notification publishing (empty = disabled)
	NATSURL string `mapstructure:"nats_url"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".vncguard")

	return &Config{
		DataDir:  dataDir,
		LogLevel: "info",
		LogFile:  filepath.Join(dataDir, "vncguard.log"),

		VNCPorts: []int{5900, 5901, 5902, 5903, 5904, 5905},

		PollInterval:     5 * time.Second,
		AnalysisInterval: 5 * time.Minute,
		SweepInterval:    1 * time.Hour,
		BaselineInterval: 6 * time.Hour,
		StatusInterval:   30 * time.Second,

		BaselineWindow:      7 * 24 * time.Hour,
		RiskThreshold:       70.0,
		ConfidenceThreshold: 0.7,
		RecentWindow:        1 * time.Hour,

		ModelDir: filepath.Join(dataDir, "models"),

		EnforcementDryRun: true,

		SuspiciousIPs: []string{
			"203.0.113.5", "198.51.100.10", "192.0.2.50",
			"185.220.101.5", "185.220.102.8",
		},
		ReputationCache: 4096,

		WebPort: 8080,
	}
}

// LoadConfig loads configuration from file and environment.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	// Ensure config directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(cfg.DataDir)
	viper.AddConfigPath(".")

	// Set defaults in viper
	viper.SetDefault("data_dir", cfg.DataDir)
	viper.SetDefault("log_level", cfg.LogLevel)
	viper.SetDefault("vnc_ports", cfg.VNCPorts)
	viper.SetDefault("poll_interval", cfg.PollInterval)
	viper.SetDefault("analysis_interval", cfg.AnalysisInterval)
	viper.SetDefault("sweep_interval", cfg.SweepInterval)
	viper.SetDefault("baseline_interval", cfg.BaselineInterval)
	viper.SetDefault("baseline_window", cfg.BaselineWindow)
	viper.SetDefault("risk_threshold", cfg.RiskThreshold)
	viper.SetDefault("confidence_threshold", cfg.ConfidenceThreshold)
	viper.SetDefault("model_dir", cfg.ModelDir)
	viper.SetDefault("enforcement_dry_run", cfg.EnforcementDryRun)
	viper.SetDefault("suspicious_ips", cfg.SuspiciousIPs)
	viper.SetDefault("reputation_cache", cfg.ReputationCache)
	viper.SetDefault("web_port", cfg.WebPort)

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
