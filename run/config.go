package run

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/buffer"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/dispatch"
	"github.com/relex/slog-relay/output"
	"github.com/relex/slog-relay/util"
	"golang.org/x/exp/slices"
)

// Config defines the root of slog-relay config file
type Config struct {
	AppenderName  string              `yaml:"appenderName"`
	StoreForward  *bool               `yaml:"storeForward"` // default true
	MaxStore      *int                `yaml:"maxStore"`     // default defs.DispatchMaxStore
	RetryInterval time.Duration       `yaml:"retryInterval"`
	SendTimeout   time.Duration       `yaml:"sendTimeout"`
	Buffer        BufferConfig        `yaml:"buffer"`
	Input         InputConfig         `yaml:"input"`
	Destinations  []DestinationConfig `yaml:"destinations"`
}

// BufferConfig defines the buffer section in config file
type BufferConfig struct {
	RootPath string `yaml:"rootPath"` // empty for default location under user config dir
	Identity string `yaml:"identity"` // empty for the path of executable
	Volatile bool   `yaml:"volatile"`
}

// InputConfig defines the input section in config file
type InputConfig struct {
	Path        string            `yaml:"path"`    // empty or "-" for stdin
	Address     string            `yaml:"address"` // TCP address to listen on instead of reading path
	MaxLineSize datasize.ByteSize `yaml:"maxLineSize"`
}

// DestinationConfig defines one item in the destinations section
type DestinationConfig struct {
	AppenderName       string        `yaml:"appenderName"` // name or pattern, empty for the root appenderName
	Index              string        `yaml:"index"`
	RemoteURL          string        `yaml:"remoteUrl"`
	Login              string        `yaml:"login"`
	Password           string        `yaml:"password"`
	Compress           bool          `yaml:"compress"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
	Timeout            time.Duration `yaml:"timeout"`
}

// LoadConfigFile loads config from the path, expands environment variables and verifies all sections
func LoadConfigFile(filepath string) (*Config, error) {
	cref := &Config{}
	if err := util.UnmarshalYamlFile(filepath, cref); err != nil {
		return nil, err
	}
	cref.expandEnv()
	if err := cref.VerifyConfig(); err != nil {
		return nil, err
	}
	return cref, nil
}

// VerifyConfig verifies the config and reports the path of first invalid field
func (cfg *Config) VerifyConfig() error {
	if strings.TrimSpace(cfg.AppenderName) == "" {
		return fmt.Errorf(".appenderName is unspecified")
	}
	if cfg.MaxStore != nil && *cfg.MaxStore < 0 {
		return fmt.Errorf(".maxStore cannot be negative: %d", *cfg.MaxStore)
	}
	if cfg.RetryInterval < 0 {
		return fmt.Errorf(".retryInterval cannot be negative: %s", cfg.RetryInterval)
	}
	if cfg.SendTimeout < 0 {
		return fmt.Errorf(".sendTimeout cannot be negative: %s", cfg.SendTimeout)
	}
	if err := cfg.Input.VerifyConfig(); err != nil {
		return fmt.Errorf(".input%w", err)
	}
	if len(cfg.Destinations) == 0 {
		return fmt.Errorf(".destinations is empty")
	}
	for i, dest := range cfg.Destinations {
		if err := dest.VerifyConfig(); err != nil {
			return fmt.Errorf(".destinations[%d]%w", i, err)
		}
		dupIndex := slices.IndexFunc(cfg.Destinations[:i], func(other DestinationConfig) bool {
			return other.toBase(cfg.AppenderName).Key() == dest.toBase(cfg.AppenderName).Key() &&
				other.appenderNameOr(cfg.AppenderName) == dest.appenderNameOr(cfg.AppenderName)
		})
		if dupIndex != -1 {
			return fmt.Errorf(".destinations[%d] duplicates .destinations[%d]", i, dupIndex)
		}
	}
	return nil
}

// VerifyConfig verifies the input section. Returned errors start with the sub-path.
func (cfg InputConfig) VerifyConfig() error {
	if cfg.Address != "" && cfg.Path != "" {
		return fmt.Errorf(".path and .address cannot be both specified")
	}
	if cfg.Address != "" {
		if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
			return fmt.Errorf(".address: %w", err)
		}
	}
	if cfg.MaxLineSize != 0 && cfg.MaxLineSize < 16*datasize.B {
		return fmt.Errorf(".maxLineSize is too small: %s", cfg.MaxLineSize.HR())
	}
	return nil
}

// VerifyConfig verifies one destination. Returned errors start with the sub-path.
func (cfg DestinationConfig) VerifyConfig() error {
	if strings.TrimSpace(cfg.Index) == "" {
		return fmt.Errorf(".index is unspecified")
	}
	if strings.TrimSpace(cfg.RemoteURL) == "" {
		return fmt.Errorf(".remoteUrl is unspecified")
	}
	if err := output.ValidateRemoteURL(cfg.RemoteURL); err != nil {
		return fmt.Errorf(".remoteUrl: %w", err)
	}
	if strings.TrimSpace(cfg.Password) == "" {
		return fmt.Errorf(".password is unspecified")
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf(".timeout cannot be negative: %s", cfg.Timeout)
	}
	return nil
}

// DispatchOptions creates engine options from this config
func (cfg *Config) DispatchOptions() dispatch.Options {
	options := dispatch.DefaultOptions(cfg.AppenderName)
	if cfg.StoreForward != nil {
		options.StoreForward = *cfg.StoreForward
	}
	if cfg.MaxStore != nil {
		options.MaxStore = *cfg.MaxStore
	}
	if cfg.RetryInterval > 0 {
		options.RetryInterval = cfg.RetryInterval
	}
	options.SendTimeout = cfg.SendTimeout
	options.Destinations = make([]base.DestinationConfig, 0, len(cfg.Destinations))
	for _, dest := range cfg.Destinations {
		options.Destinations = append(options.Destinations, dest.toBase(cfg.AppenderName))
	}
	return options
}

// BufferOptions creates buffer factory options from this config
func (cfg *Config) BufferOptions() buffer.FactoryOptions {
	return buffer.FactoryOptions{
		RootPath: cfg.Buffer.RootPath,
		Identity: cfg.Buffer.Identity,
		Volatile: cfg.Buffer.Volatile,
	}
}

// MaxLineLength returns the max length of input lines
func (cfg *Config) MaxLineLength() int {
	if cfg.Input.MaxLineSize == 0 {
		return defs.InputMaxLineBytes
	}
	return int(cfg.Input.MaxLineSize.Bytes())
}

func (cfg *Config) expandEnv() {
	cfg.Buffer.RootPath = os.ExpandEnv(cfg.Buffer.RootPath)
	cfg.Input.Path = os.ExpandEnv(cfg.Input.Path)
	for i := range cfg.Destinations {
		dest := &cfg.Destinations[i]
		dest.RemoteURL = os.ExpandEnv(dest.RemoteURL)
		dest.Login = os.ExpandEnv(dest.Login)
		dest.Password = os.ExpandEnv(dest.Password)
	}
}

// redacted returns a copy without secrets, for logging
func (cfg *Config) redacted() *Config {
	copied := *cfg
	copied.Destinations = slices.Clone(cfg.Destinations)
	for i := range copied.Destinations {
		if copied.Destinations[i].Password != "" {
			copied.Destinations[i].Password = "***"
		}
	}
	return &copied
}

func (cfg DestinationConfig) appenderNameOr(defaultName string) string {
	if cfg.AppenderName == "" {
		return defaultName
	}
	return cfg.AppenderName
}

func (cfg DestinationConfig) toBase(defaultAppenderName string) base.DestinationConfig {
	return base.DestinationConfig{
		AppenderName:       cfg.appenderNameOr(defaultAppenderName),
		Index:              cfg.Index,
		RemoteURL:          cfg.RemoteURL,
		Login:              cfg.Login,
		Password:           cfg.Password,
		Compress:           cfg.Compress,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Timeout:            cfg.Timeout,
	}
}
