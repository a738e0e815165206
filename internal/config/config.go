package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingUID is returned when no job identifier survived the merge.
	ErrMissingUID = errors.New("no uid given")
	// ErrUnknownOption is returned for keys outside the option schema.
	ErrUnknownOption = errors.New("unknown option")
)

// Config is the effective configuration of one run. It is treated as an
// immutable value once Resolve has returned it.
type Config struct {
	UID            string    `yaml:"uid" json:"uid"`
	AcceptLanguage string    `yaml:"sAcceptLanguage" json:"sAcceptLanguage"`
	Cookie         bool      `yaml:"bCookie" json:"bCookie"`
	Width          int       `yaml:"width" json:"width"`
	Height         int       `yaml:"height" json:"height"`
	UserAgent      string    `yaml:"userAgent" json:"userAgent"`
	Timeout        int       `yaml:"timeout" json:"timeout"`
	Headless       bool      `yaml:"bHeadless" json:"bHeadless"`
	Proxies        []string  `yaml:"aProxy" json:"aProxy"`
	Dir            DirConfig `yaml:"dir" json:"dir"`
	LogToREST      bool      `yaml:"bLogToREST" json:"bLogToREST"`
	RESTURL        string    `yaml:"sRESTUrl" json:"sRESTUrl"`
	RESTIdentifier string    `yaml:"sRESTIdentifier" json:"sRESTIdentifier"`
	RESTKey        string    `yaml:"sRESTKey" json:"sRESTKey"`
	Pushgateway    string    `yaml:"sPushgateway" json:"sPushgateway"`
}

// DirConfig holds the artifact directories. Every directory is resolved
// below Prefix.
type DirConfig struct {
	Prefix     string `yaml:"prefix" json:"prefix"`
	Config     string `yaml:"config" json:"config"`
	Cookie     string `yaml:"cookie" json:"cookie"`
	Log        string `yaml:"log" json:"log"`
	Screenshot string `yaml:"screenshot" json:"screenshot"`
}

// LoggerConfig holds all the configuration for the diagnostic logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// Validate checks the configuration for required fields and sane values.
func (c Config) Validate() error {
	if c.UID == "" {
		return ErrMissingUID
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("width and height must be positive integers")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.LogToREST && c.RESTURL == "" {
		return fmt.Errorf("sRESTUrl is required when bLogToREST is enabled")
	}
	return nil
}

// Wait is the fixed pause after every step.
func (c Config) Wait() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// Root returns the expanded root prefix.
func (c Config) Root() string {
	root, err := homedir.Expand(c.Dir.Prefix)
	if err != nil {
		root = c.Dir.Prefix
	}
	if root == "" {
		root = "."
	}
	return filepath.Clean(root)
}

func (c Config) ConfigDir() string     { return under(c.Root(), c.Dir.Config) }
func (c Config) CookieDir() string     { return under(c.Root(), c.Dir.Cookie) }
func (c Config) LogDir() string        { return under(c.Root(), c.Dir.Log) }
func (c Config) ScreenshotDir() string { return under(c.Root(), c.Dir.Screenshot) }

// JobFile is the job definition of this uid.
func (c Config) JobFile() string { return filepath.Join(c.ConfigDir(), c.UID+".json") }

// CookieFile is the persisted cookie jar of this uid.
func (c Config) CookieFile() string { return filepath.Join(c.CookieDir(), c.UID+".json") }

// SessionLogFile is the append-only run log of this uid.
func (c Config) SessionLogFile() string { return filepath.Join(c.LogDir(), c.UID+".txt") }

// ResultFile is the JSON-lines result file of this uid.
func (c Config) ResultFile() string { return filepath.Join(c.LogDir(), c.UID+"_eval.json") }

// ScreenshotFile names the capture of step i in the run stamped runStamp.
func (c Config) ScreenshotFile(i int, runStamp string) string {
	return filepath.Join(c.ScreenshotDir(), fmt.Sprintf("%s_%d_%s.png", c.UID, i, runStamp))
}

// Redacted returns a copy safe for logging.
func (c Config) Redacted() Config {
	if c.RESTKey != "" {
		c.RESTKey = "***"
	}
	c.Proxies = append([]string(nil), c.Proxies...)
	return c
}

// YAML renders the configuration with its wire keys.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// under re-roots p below root so that no directory escapes the prefix.
func under(root, p string) string {
	return filepath.Join(root, filepath.Clean(string(filepath.Separator)+p))
}
