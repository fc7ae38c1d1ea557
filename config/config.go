package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Camera struct {
		Address     string        `yaml:"address"`
		Username    string        `yaml:"username"`
		Password    string        `yaml:"password"`
		Timeout     time.Duration `yaml:"timeout"`
		InsecureTLS bool          `yaml:"insecure_tls"`
	} `yaml:"camera"`

	Discovery struct {
		Timeout       time.Duration `yaml:"timeout"`
		MulticastAddr string        `yaml:"multicast_addr"`
		Interface     string        `yaml:"interface"`
		TTL           int           `yaml:"ttl"`
	} `yaml:"discovery"`

	Playback struct {
		RTSPTransport  string        `yaml:"rtsp_transport"`
		NetworkCaching time.Duration `yaml:"network_caching"`
		FrameRate      int           `yaml:"frame_rate"`
		Verbose        bool          `yaml:"verbose"`
	} `yaml:"playback"`

	Storage struct {
		Root            string `yaml:"root"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Camera.Timeout = 10 * time.Second

	cfg.Discovery.Timeout = 5 * time.Second
	cfg.Discovery.MulticastAddr = "239.255.255.250:3702"
	cfg.Discovery.TTL = 2

	cfg.Playback.RTSPTransport = "tcp"
	cfg.Playback.NetworkCaching = 300 * time.Millisecond
	cfg.Playback.FrameRate = 5

	cfg.Storage.Root = "."
	cfg.Storage.CredentialsFile = "credentials.yaml"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	return cfg
}

// Load reads path over the defaults and applies environment overrides. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Annotatef(err, "reading config file %s", path)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Annotate(err, "parsing config yaml")
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotate(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks that values are usable
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.NotValidf("empty server.address")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.NotValidf("server.shutdown_timeout %s", c.Server.ShutdownTimeout)
	}
	if c.Camera.Timeout <= 0 {
		return errors.NotValidf("camera.timeout %s", c.Camera.Timeout)
	}
	if c.Discovery.Timeout <= 0 {
		return errors.NotValidf("discovery.timeout %s", c.Discovery.Timeout)
	}
	if c.Discovery.TTL < 1 || c.Discovery.TTL > 255 {
		return errors.NotValidf("discovery.ttl %d", c.Discovery.TTL)
	}
	switch c.Playback.RTSPTransport {
	case "", "tcp", "udp":
	default:
		return errors.NotValidf("playback.rtsp_transport %q", c.Playback.RTSPTransport)
	}
	if c.Playback.NetworkCaching < 0 {
		return errors.NotValidf("playback.network_caching %s", c.Playback.NetworkCaching)
	}
	if c.Playback.FrameRate < 0 {
		return errors.NotValidf("playback.frame_rate %d", c.Playback.FrameRate)
	}
	if c.Storage.Root == "" {
		return errors.NotValidf("empty storage.root")
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return errors.NotValidf("logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return errors.NotValidf("logging.format %q", c.Logging.Format)
	}
	return nil
}

// CaptureDir is where captured frames are written
func (c *Config) CaptureDir(name string) string {
	return filepath.Join(c.Storage.Root, name)
}

// CredentialsPath resolves the credentials file against the storage root
func (c *Config) CredentialsPath() string {
	if filepath.IsAbs(c.Storage.CredentialsFile) {
		return c.Storage.CredentialsFile
	}
	return filepath.Join(c.Storage.Root, c.Storage.CredentialsFile)
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("ONVIF_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("ONVIF_CAMERA_ADDRESS"); addr != "" {
		c.Camera.Address = addr
	}
	if user := os.Getenv("ONVIF_USERNAME"); user != "" {
		c.Camera.Username = user
	}
	if pass := os.Getenv("ONVIF_PASSWORD"); pass != "" {
		c.Camera.Password = pass
	}
	if level := os.Getenv("ONVIF_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
