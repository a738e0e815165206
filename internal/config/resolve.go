package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Option is one named, typed entry of the configuration schema.
type Option struct {
	Key   string
	Usage string
	set   func(c *Config, v any) error
}

// schema is the full set of keys accepted by Resolve. Directory overrides
// use the dotted dir.<name> form and are limited to the names listed here.
var schema = []Option{
	{Key: "uid", Usage: "job identifier", set: stringOpt(func(c *Config) *string { return &c.UID })},
	{Key: "sAcceptLanguage", Usage: "Accept-Language sent by the browser", set: stringOpt(func(c *Config) *string { return &c.AcceptLanguage })},
	{Key: "bCookie", Usage: "persist cookies between runs", set: boolOpt(func(c *Config) *bool { return &c.Cookie })},
	{Key: "width", Usage: "viewport width", set: intOpt(func(c *Config) *int { return &c.Width })},
	{Key: "height", Usage: "viewport height", set: intOpt(func(c *Config) *int { return &c.Height })},
	{Key: "userAgent", Usage: "browser user agent", set: stringOpt(func(c *Config) *string { return &c.UserAgent })},
	{Key: "timeout", Usage: "wait after every step in milliseconds", set: intOpt(func(c *Config) *int { return &c.Timeout })},
	{Key: "bHeadless", Usage: "run the browser headless", set: boolOpt(func(c *Config) *bool { return &c.Headless })},
	{Key: "aProxy", Usage: "comma separated proxy URLs, one is picked per run", set: listOpt(func(c *Config) *[]string { return &c.Proxies })},
	{Key: "bLogToREST", Usage: "deliver results to the REST collector", set: boolOpt(func(c *Config) *bool { return &c.LogToREST })},
	{Key: "sRESTUrl", Usage: "REST collector URL", set: stringOpt(func(c *Config) *string { return &c.RESTURL })},
	{Key: "sRESTIdentifier", Usage: "identifier sent to the REST collector", set: stringOpt(func(c *Config) *string { return &c.RESTIdentifier })},
	{Key: "sRESTKey", Usage: "credential sent to the REST collector", set: stringOpt(func(c *Config) *string { return &c.RESTKey })},
	{Key: "sPushgateway", Usage: "Prometheus Pushgateway URL", set: stringOpt(func(c *Config) *string { return &c.Pushgateway })},
	{Key: "dir.prefix", Usage: "root of all artifact directories", set: stringOpt(func(c *Config) *string { return &c.Dir.Prefix })},
	{Key: "dir.config", Usage: "job definition directory", set: stringOpt(func(c *Config) *string { return &c.Dir.Config })},
	{Key: "dir.cookie", Usage: "cookie jar directory", set: stringOpt(func(c *Config) *string { return &c.Dir.Cookie })},
	{Key: "dir.log", Usage: "session log and result directory", set: stringOpt(func(c *Config) *string { return &c.Dir.Log })},
	{Key: "dir.screenshot", Usage: "screenshot directory", set: stringOpt(func(c *Config) *string { return &c.Dir.Screenshot })},
}

var schemaIndex = func() map[string]*Option {
	idx := make(map[string]*Option, len(schema))
	for i := range schema {
		idx[strings.ToLower(schema[i].Key)] = &schema[i]
	}
	return idx
}()

// Options returns the schema in declaration order.
func Options() []Option {
	return append([]Option(nil), schema...)
}

// Lookup finds the schema entry for key, ignoring case.
func Lookup(key string) (Option, bool) {
	opt, ok := schemaIndex[strings.ToLower(key)]
	if !ok {
		return Option{}, false
	}
	return *opt, true
}

// Resolve applies sources on top of base in order, later sources winning.
// Keys outside the schema are rejected.
func Resolve(base Config, sources ...map[string]any) (Config, error) {
	c := base
	c.Proxies = append([]string(nil), base.Proxies...)

	for _, src := range sources {
		keys := make([]string, 0, len(src))
		for k := range src {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			opt, ok := schemaIndex[strings.ToLower(k)]
			if !ok {
				return Config{}, fmt.Errorf("%w: %q", ErrUnknownOption, k)
			}
			if err := opt.set(&c, src[k]); err != nil {
				return Config{}, fmt.Errorf("option %q: %w", opt.Key, err)
			}
		}
	}
	return c, nil
}

func stringOpt(field func(*Config) *string) func(*Config, any) error {
	return func(c *Config, v any) error {
		s, err := cast.ToStringE(v)
		if err != nil {
			return err
		}
		*field(c) = s
		return nil
	}
}

func intOpt(field func(*Config) *int) func(*Config, any) error {
	return func(c *Config, v any) error {
		n, err := cast.ToIntE(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolOpt(field func(*Config) *bool) func(*Config, any) error {
	return func(c *Config, v any) error {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func listOpt(field func(*Config) *[]string) func(*Config, any) error {
	return func(c *Config, v any) error {
		if s, ok := v.(string); ok {
			var out []string
			for _, part := range strings.Split(s, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
			*field(c) = out
			return nil
		}
		list, err := cast.ToStringSliceE(v)
		if err != nil {
			return err
		}
		*field(c) = list
		return nil
	}
}
