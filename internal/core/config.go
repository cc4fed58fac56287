package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// NoticeConfig is one operator-authored news item served to the patcher.
type NoticeConfig struct {
	Subject string `mapstructure:"subject"`
	Article string `mapstructure:"article"`
	// Unix timestamp (seconds) shown as the publish date.
	Published int64 `mapstructure:"published"`
}

// Config contains all of the configuration options available to any of the
// gateway's components.
type Config struct {
	// Hostname or IP address on which the servers will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// Address advertised to clients in patch responses when the file server
	// host is left blank, e.g. the public address of a NATed host.
	ExternalIP string `mapstructure:"external_ip"`
	// Maximum number of concurrent connections the server will allow.
	MaxConnections int `mapstructure:"max_connections"`
	// Full path to file to which logs will be written. Blank will write to stdout.
	LogFilePath string `mapstructure:"log_file_path"`
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	Patch struct {
		// Full (or relative to the current directory) path to the directory with
		// one subdirectory per patch version.
		RootDir string `mapstructure:"root_dir"`
		// Optional path to the file listing of the lowest supported version.
		BaseManifest string `mapstructure:"base_manifest"`
		// News items returned for gateway notice requests.
		Notices []NoticeConfig `mapstructure:"notices"`
	} `mapstructure:"patch"`

	Proxy struct {
		// The single port the client is hard-coded to contact.
		Port int `mapstructure:"port"`
		// Version every connection is routed to. A pointer so that version 0,
		// a valid identifier, can be pinned; omitting the key means the
		// launcher picks per connection via a route select packet.
		TargetVersion *int `mapstructure:"target_version"`
	} `mapstructure:"proxy"`

	FileServer struct {
		// Host and port of the static HTTP server holding the patch files.
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
		// Path prefix under which the patch root is exposed.
		BasePath string `mapstructure:"base_path"`
	} `mapstructure:"file_server"`

	Web struct {
		// Port for the operator status API. Zero disables it.
		HTTPPort int `mapstructure:"http_port"`
	} `mapstructure:"web"`

	Database struct {
		// Enables the sqlite request journal.
		Enabled bool `mapstructure:"enabled"`
		// Path of the sqlite database file.
		Filename string `mapstructure:"filename"`
	} `mapstructure:"database"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		PprofEnabled bool `mapstructure:"pprof_enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Log decoded packets to the server log.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "PATCHGATE"

// LoadConfig initializes Viper with the contents of the config file under configPath.
func LoadConfig(configPath string) (*Config, error) {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(envVarPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("no config file in path %s", configPath)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, proxy.port can be set using: <envVarPrefix>_PROXY_PORT
	for _, k := range viper.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := viper.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("error binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return config, nil
}

// FileServerHost returns the host advertised to clients for file downloads,
// falling back to the external IP when no dedicated file server host is set.
func (c *Config) FileServerHost() string {
	if c.FileServer.Host != "" {
		return c.FileServer.Host
	}
	return c.ExternalIP
}

// FileServerAddress returns the host:port the client should fetch patch
// content from, as advertised in update notices.
func (c *Config) FileServerAddress() string {
	return fmt.Sprintf("%s:%d", c.FileServerHost(), c.FileServer.Port)
}
