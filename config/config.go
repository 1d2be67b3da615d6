package config

import (
	"ec2switch/log"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	ConfigFileName = "config.json"

	defaultAWSBin       = "aws"
	defaultEditorBin    = "code"
	defaultSSHUser      = "ec2-user"
	defaultPollSecs     = 60
	defaultBurstSecs    = 6
	defaultBurstPolls   = 10
	defaultGraceSecs    = 120
	defaultDescribeSecs = 30
)

// GetConfigDir returns the path to the application's configuration directory.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config home directory: %w", err)
	}
	return filepath.Join(homeDir, ".ec2switch"), nil
}

// Config represents the application configuration. The instance registry
// lives in a separate INI file; this holds operational tuning knobs.
type Config struct {
	// AWSBin is the AWS CLI binary used for all provider calls.
	AWSBin string `json:"aws_bin"`
	// EditorBin is the remote editor client binary.
	EditorBin string `json:"editor_bin"`
	// DefaultSSHUser is used when neither the instance section nor the
	// defaults section of the registry names a user.
	DefaultSSHUser string `json:"default_ssh_user"`
	// PollIntervalSecs is the idle polling interval.
	PollIntervalSecs int `json:"poll_interval_secs"`
	// BurstIntervalSecs is the polling interval while a recently issued
	// start/stop is still settling.
	BurstIntervalSecs int `json:"burst_interval_secs"`
	// BurstPolls is how many fast polls follow an issued command.
	BurstPolls int `json:"burst_polls"`
	// ActionGracePeriodSecs is how long a pending start/stop may go without
	// reaching its target status before it is marked failed.
	ActionGracePeriodSecs int `json:"action_grace_period_secs"`
	// DescribeTimeoutSecs bounds a single AWS CLI describe invocation.
	DescribeTimeoutSecs int `json:"describe_timeout_secs"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AWSBin:                defaultAWSBin,
		EditorBin:             defaultEditorBin,
		DefaultSSHUser:        defaultSSHUser,
		PollIntervalSecs:      defaultPollSecs,
		BurstIntervalSecs:     defaultBurstSecs,
		BurstPolls:            defaultBurstPolls,
		ActionGracePeriodSecs: defaultGraceSecs,
		DescribeTimeoutSecs:   defaultDescribeSecs,
	}
}

// PollInterval returns the idle poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return secsOrDefault(c.PollIntervalSecs, defaultPollSecs)
}

// BurstInterval returns the burst poll interval as a duration.
func (c *Config) BurstInterval() time.Duration {
	return secsOrDefault(c.BurstIntervalSecs, defaultBurstSecs)
}

// ActionGracePeriod returns the pending-action grace period as a duration.
func (c *Config) ActionGracePeriod() time.Duration {
	return secsOrDefault(c.ActionGracePeriodSecs, defaultGraceSecs)
}

// DescribeTimeout returns the per-describe timeout as a duration.
func (c *Config) DescribeTimeout() time.Duration {
	return secsOrDefault(c.DescribeTimeoutSecs, defaultDescribeSecs)
}

func secsOrDefault(secs, fallback int) time.Duration {
	if secs <= 0 {
		secs = fallback
	}
	return time.Duration(secs) * time.Second
}

// LoadConfig loads the application config, falling back to defaults on any
// problem. A missing file is created with defaults; a corrupt file is backed
// up before defaults are used.
func LoadConfig() *Config {
	configDir, err := GetConfigDir()
	if err != nil {
		log.ErrorLog.Printf("failed to get config directory: %v", err)
		return DefaultConfig()
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			defaultCfg := DefaultConfig()
			if saveErr := saveConfig(defaultCfg); saveErr != nil {
				log.WarningLog.Printf("failed to save default config: %v", saveErr)
			}
			return defaultCfg
		}

		log.WarningLog.Printf("failed to read config file: %v", err)
		return DefaultConfig()
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		log.ErrorLog.Printf("failed to parse config file at %s: %v", configPath, err)

		backupPath := configPath + ".corrupt." + time.Now().Format("20060102-150405")
		if backupErr := os.WriteFile(backupPath, data, 0644); backupErr == nil {
			log.InfoLog.Printf("backed up corrupted config to: %s", backupPath)
		}

		return DefaultConfig()
	}

	return &config
}

func saveConfig(config *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveConfig exports the saveConfig function for use by other packages.
func SaveConfig(config *Config) error {
	return saveConfig(config)
}
