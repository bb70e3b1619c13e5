package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "calls_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "calls_exchange",
			},
			Queue: QueueConfig{
				Name: "calls_queue",
			},
		},
		Spooler: SpoolerConfig{
			Concurrency:     4,
			MaxAttempts:     3,
			ShutdownTimeout: 30 * time.Second,
			JanitorSchedule: "*/10 * * * *",
			StaleAfter:      time.Hour,
		},
		Spool: SpoolConfig{
			SpoolDir:   "/var/spool/asterisk/outgoing",
			TempDir:    "/tmp",
			RatePerSec: 5,
			Burst:      10,
		},
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "calls_db", cfg.Database.Database)
				assert.Equal(t, "calls_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "calls_queue", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "/var/spool/asterisk/outgoing", cfg.Spool.SpoolDir)
				assert.Equal(t, "asterisk", cfg.Spool.Owner)
				assert.Equal(t, "*/10 * * * *", cfg.Spooler.JanitorSchedule)
				assert.Equal(t, time.Hour, cfg.Spooler.StaleAfter)
			}
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateSpoolerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "janitor disabled",
			mutate:  func(c *Config) { c.Spooler.JanitorSchedule = "" },
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Spooler.Concurrency = 0 },
			wantErr:   true,
			errString: "concurrency must be greater than 0",
		},
		{
			name:      "zero max attempts",
			mutate:    func(c *Config) { c.Spooler.MaxAttempts = 0 },
			wantErr:   true,
			errString: "max_attempts must be greater than 0",
		},
		{
			name:      "zero shutdown timeout",
			mutate:    func(c *Config) { c.Spooler.ShutdownTimeout = 0 },
			wantErr:   true,
			errString: "shutdown_timeout must be greater than 0",
		},
		{
			name:      "bad janitor schedule",
			mutate:    func(c *Config) { c.Spooler.JanitorSchedule = "every ten minutes" },
			wantErr:   true,
			errString: "invalid janitor_schedule",
		},
		{
			name: "janitor without stale cutoff",
			mutate: func(c *Config) {
				c.Spooler.StaleAfter = 0
			},
			wantErr:   true,
			errString: "stale_after must be greater than 0",
		},
		{
			name:      "missing spool dir",
			mutate:    func(c *Config) { c.Spool.SpoolDir = "" },
			wantErr:   true,
			errString: "spool directory is required",
		},
		{
			name:      "negative spool rate",
			mutate:    func(c *Config) { c.Spool.RatePerSec = -1 },
			wantErr:   true,
			errString: "rate_per_sec must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateSpoolerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
		require.NoError(t, cfg.ValidateSpoolerConfig())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateAPIConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing spool dir", func(t *testing.T) {
		cfg, err := Load("testdata/missing_spool_dir.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.ValidateSpoolerConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "spool directory is required")
	})
}
