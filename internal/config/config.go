package config

import (
	"path/filepath"
	"time"

	"github.com/paularlott/cli"
)

// Config carries the runtime settings shared by the subcommands.
type Config struct {
	DataDir      string
	ListenAddr   string
	APIAuthToken string
	LogLevel     string
	LogFormat    string
	PollInterval time.Duration
	DeviceFilter string
}

var (
	dataDir      string
	listenAddr   string
	apiAuthToken string
	logLevel     string
	logFormat    string
	pollMs       int
	deviceFilter string
)

func GetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:         "data-dir",
			Usage:        "Data directory path",
			EnvVars:      []string{"IRONWATCH_DATA_DIR"},
			DefaultValue: filepath.Join(".", "data"),
			AssignTo:     &dataDir,
		},
		&cli.StringFlag{
			Name:         "addr",
			Usage:        "Server listen address",
			EnvVars:      []string{"IRONWATCH_LISTEN_ADDR"},
			DefaultValue: ":8990",
			AssignTo:     &listenAddr,
		},
		&cli.StringFlag{
			Name:     "api-token",
			Usage:    "API bearer token",
			EnvVars:  []string{"IRONWATCH_API_TOKEN"},
			AssignTo: &apiAuthToken,
		},
		&cli.StringFlag{
			Name:         "log-level",
			Usage:        "Log level (debug, info, warn, error)",
			EnvVars:      []string{"IRONWATCH_LOG_LEVEL"},
			DefaultValue: "info",
			AssignTo:     &logLevel,
		},
		&cli.StringFlag{
			Name:         "log-format",
			Usage:        "Log format (console, json)",
			EnvVars:      []string{"IRONWATCH_LOG_FORMAT"},
			DefaultValue: "console",
			AssignTo:     &logFormat,
		},
		&cli.IntFlag{
			Name:         "poll-interval",
			Usage:        "USB poll interval in milliseconds",
			DefaultValue: 500,
			AssignTo:     &pollMs,
		},
		&cli.StringFlag{
			Name:     "filter",
			Usage:    "Case-insensitive device name filter",
			EnvVars:  []string{"IRONWATCH_DEVICE_FILTER"},
			AssignTo: &deviceFilter,
		},
	}
}

func Load() *Config {
	interval := time.Duration(pollMs) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Config{
		DataDir:      dataDir,
		ListenAddr:   listenAddr,
		APIAuthToken: apiAuthToken,
		LogLevel:     logLevel,
		LogFormat:    logFormat,
		PollInterval: interval,
		DeviceFilter: deviceFilter,
	}
}

// IsAPIAuthEnabled checks if API authentication is configured
func (c *Config) IsAPIAuthEnabled() bool {
	return c.APIAuthToken != ""
}
