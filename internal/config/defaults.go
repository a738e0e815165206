package config

// DefaultUserAgent is the browser identity used when no job overrides it
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux i586; rv:31.0) Gecko/20100101 Firefox/31.0"

// Defaults returns the compiled-in configuration
func Defaults() Config {
	return Config{
		Cookie:    true,
		Width:     1280,
		Height:    720,
		UserAgent: DefaultUserAgent,
		Timeout:   800,
		Headless:  true,
		Dir: DirConfig{
			Prefix:     "./",
			Config:     "config/",
			Cookie:     "cookie/",
			Log:        "log/",
			Screenshot: "screenshot/",
		},
	}
}

// DefaultLoggerConfig returns the diagnostic logger defaults
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:       "info",
		Format:      "console",
		ServiceName: "scrapebot",
		MaxSize:     100,
		MaxBackups:  5,
		MaxAge:      30,
		Compress:    true,
		Colors: ColorConfig{
			Debug: "cyan",
			Info:  "green",
			Warn:  "yellow",
			Error: "red",
			Fatal: "magenta",
		},
	}
}
