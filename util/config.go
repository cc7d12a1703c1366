package util

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const Name = "microblog"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host             string        `yaml:"host" env:"MICROBLOG_HOST"`
		SshPort          int           `yaml:"sshPort" env:"MICROBLOG_SSHPORT"`
		HttpPort         int           `yaml:"httpPort" env:"MICROBLOG_HTTPPORT"`
		SslDomain        string        `yaml:"sslDomain" env:"MICROBLOG_SSLDOMAIN"`
		Scheme           string        `yaml:"scheme" env:"MICROBLOG_SCHEME"`
		DatabasePath     string        `yaml:"databasePath" env:"MICROBLOG_DATABASE_PATH"`
		AuthorizedKeys   string        `yaml:"authorizedKeys" env:"MICROBLOG_AUTHORIZED_KEYS"`
		HostKeyPath      string        `yaml:"hostKeyPath" env:"MICROBLOG_HOST_KEY_PATH"`
		WebPassword      string        `yaml:"webPassword" env:"MICROBLOG_WEB_PASSWORD"`
		LogLevel         string        `yaml:"logLevel" env:"MICROBLOG_LOG_LEVEL"`
		OtelEndpoint     string        `yaml:"otelEndpoint" env:"MICROBLOG_OTEL_ENDPOINT"`
		DeliveryInterval time.Duration `yaml:"deliveryInterval" env:"MICROBLOG_DELIVERY_INTERVAL"`
	}
}

// ReadConf loads the configuration. An explicit path must exist; without one
// the file is looked up locally, then in the user config directory, and the
// embedded defaults are used (and written out) when neither exists.
// MICROBLOG_* environment variables override the file.
func ReadConf(path string) (*AppConfig, error) {
	c := &AppConfig{}

	// defaults first so a partial file keeps the remaining values
	if err := yaml.Unmarshal(embeddedConfig, c); err != nil {
		return nil, fmt.Errorf("in embedded config: %w", err)
	}

	buf, err := readConfFile(path)
	if err != nil {
		return nil, err
	}
	if buf != nil {
		if err := yaml.Unmarshal(buf, c); err != nil {
			return nil, fmt.Errorf("in config file: %w", err)
		}
	}

	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("in environment: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func readConfFile(path string) ([]byte, error) {
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		return buf, nil
	}

	configPath := ResolveFilePath(ConfigFileName)
	buf, err := os.ReadFile(configPath)
	if err == nil {
		return buf, nil
	}

	slog.Info("config file not found, using embedded defaults", "path", configPath)
	if configDir, dirErr := GetConfigDir(); dirErr == nil {
		userConfigPath := filepath.Join(configDir, ConfigFileName)
		if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
			slog.Warn("could not write default config", "path", userConfigPath, "err", writeErr)
		} else {
			slog.Info("created default config file", "path", userConfigPath)
		}
	}
	return nil, nil
}

func (c *AppConfig) validate() error {
	if c.Conf.Scheme != "http" && c.Conf.Scheme != "https" {
		return fmt.Errorf("invalid scheme %q: must be http or https", c.Conf.Scheme)
	}
	if c.Conf.HttpPort <= 0 || c.Conf.HttpPort > 65535 {
		return fmt.Errorf("invalid httpPort %d", c.Conf.HttpPort)
	}
	if c.Conf.SshPort <= 0 || c.Conf.SshPort > 65535 {
		return fmt.Errorf("invalid sshPort %d", c.Conf.SshPort)
	}
	if c.Conf.DeliveryInterval <= 0 {
		return fmt.Errorf("invalid deliveryInterval %s", c.Conf.DeliveryInterval)
	}
	return nil
}

// Origin returns the public scheme and authority every local URI is built on.
func (c *AppConfig) Origin() string {
	if c.Conf.SslDomain != "" {
		return c.Conf.Scheme + "://" + c.Conf.SslDomain
	}
	return c.Conf.Scheme + "://" + net.JoinHostPort(c.Conf.Host, strconv.Itoa(c.Conf.HttpPort))
}

// HttpAddr is the listen address of the web server.
func (c *AppConfig) HttpAddr() string {
	return net.JoinHostPort(c.Conf.Host, strconv.Itoa(c.Conf.HttpPort))
}

// SshAddr is the listen address of the ssh server.
func (c *AppConfig) SshAddr() string {
	return net.JoinHostPort(c.Conf.Host, strconv.Itoa(c.Conf.SshPort))
}
