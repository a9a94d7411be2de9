package scalar

import (
	"time"
)

// Config consolidates settings for the pipeline, the blueprint policy
// layer, and the storage/export adapters.
type Config struct {
	Pipeline  PipelineConfig  `json:"pipeline"`
	Blueprint BlueprintConfig `json:"blueprint"`
	Storage   StorageConfig   `json:"storage"`
	Database  DatabaseConfig  `json:"database"`
	Provider  ProviderConfig  `json:"provider"`
	Export    ExportConfig    `json:"export"`
	Logging   LoggingConfig   `json:"logging"`
}

// PipelineConfig contains scaling pipeline settings
type PipelineConfig struct {
	MaxDepth         int  `json:"maxDepth"`
	MaxEntityCount   int  `json:"maxEntityCount"`
	RegenerateIDs    bool `json:"regenerateIDs"`
	SuffixNames      bool `json:"suffixNames"`
	ValidateRequests bool `json:"validateRequests"`
}

// BlueprintConfig contains structural rule layer settings
type BlueprintConfig struct {
	Enabled        bool `json:"enabled"`
	SingleVMMode   bool `json:"singleVMMode"`
	LayoutGridStep int  `json:"layoutGridStep"`
	LayoutGridRow  int  `json:"layoutGridRow"`
}

// StorageConfig contains rule/history store settings
type StorageConfig struct {
	Backend          string `json:"backend"` // "file" or "postgres"
	Directory        string `json:"directory"`
	RuleHistoryLimit int    `json:"ruleHistoryLimit"`
	ResponseLimit    int    `json:"responseLimit"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Database       string        `json:"database"`
	Username       string        `json:"username"`
	Password       string        `json:"password"`
	SSLMode        string        `json:"sslMode"`
	MaxConnections int           `json:"maxConnections"`
	Timeout        time.Duration `json:"timeout"`
	RuleSetTable   string        `json:"ruleSetTable"`
	HistoryTable   string        `json:"historyTable"`
}

// ProviderConfig contains live reference provider settings
type ProviderConfig struct {
	Endpoint string        `json:"endpoint"`
	Username string        `json:"username"`
	Password string        `json:"password"`
	Timeout  time.Duration `json:"timeout"`
	Insecure bool          `json:"insecure"`
}

// ExportConfig contains S3 export and archiver settings
type ExportConfig struct {
	Bucket          string        `json:"bucket"`
	Prefix          string        `json:"prefix"`
	Region          string        `json:"region"`
	BatchSize       int           `json:"batchSize"`
	RetainFor       time.Duration `json:"retainFor"`
	UseIAMToken     bool          `json:"useIAMToken"`
	ClusterEndpoint string        `json:"clusterEndpoint"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level            string `json:"level"`
	Format           string `json:"format"`
	EnableStructured bool   `json:"enableStructured"`
	LogRuleDecisions bool   `json:"logRuleDecisions"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MaxDepth:         64,
			MaxEntityCount:   10000,
			RegenerateIDs:    true,
			SuffixNames:      true,
			ValidateRequests: true,
		},
		Blueprint: BlueprintConfig{
			Enabled:        true,
			SingleVMMode:   false,
			LayoutGridStep: 120,
			LayoutGridRow:  10,
		},
		Storage: StorageConfig{
			Backend:          "file",
			Directory:        "data",
			RuleHistoryLimit: 10,
			ResponseLimit:    5,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			SSLMode:        "disable",
			MaxConnections: 25,
			Timeout:        30 * time.Second,
			RuleSetTable:   "rule_sets",
			HistoryTable:   "generation_history",
		},
		Provider: ProviderConfig{
			Timeout: 15 * time.Second,
		},
		Export: ExportConfig{
			Prefix:    "generated",
			Region:    "us-east-1",
			BatchSize: 100,
			RetainFor: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "json",
			EnableStructured: true,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Pipeline.MaxDepth <= 0 {
		return &ConfigError{Field: "pipeline.maxDepth", Message: "must be greater than 0"}
	}
	if c.Pipeline.MaxEntityCount <= 0 {
		return &ConfigError{Field: "pipeline.maxEntityCount", Message: "must be greater than 0"}
	}
	if c.Storage.Backend != "file" && c.Storage.Backend != "postgres" {
		return &ConfigError{Field: "storage.backend", Message: "must be 'file' or 'postgres'"}
	}
	if c.Storage.RuleHistoryLimit <= 0 {
		return &ConfigError{Field: "storage.ruleHistoryLimit", Message: "must be greater than 0"}
	}
	if c.Storage.ResponseLimit <= 0 {
		return &ConfigError{Field: "storage.responseLimit", Message: "must be greater than 0"}
	}
	if c.Storage.Backend == "postgres" && c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}
	if c.Blueprint.LayoutGridStep <= 0 {
		return &ConfigError{Field: "blueprint.layoutGridStep", Message: "must be greater than 0"}
	}
	if c.Blueprint.LayoutGridRow <= 0 {
		return &ConfigError{Field: "blueprint.layoutGridRow", Message: "must be greater than 0"}
	}
	if c.Export.BatchSize <= 0 {
		return &ConfigError{Field: "export.batchSize", Message: "must be greater than 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
