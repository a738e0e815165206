package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/williampepple1/scrapebot/internal/config"
	sio "github.com/williampepple1/scrapebot/internal/io"
	"github.com/williampepple1/scrapebot/pkg/models"
)

// EnvPrefix prefixes every launch option read from the environment,
// e.g. SCRAPEBOT_UID or SCRAPEBOT_DIR_PREFIX.
const EnvPrefix = "SCRAPEBOT"

// launchFlags binds every configuration key to a flag, an environment
// variable and an optional YAML options file
type launchFlags struct {
	optionsFile string
	v           *viper.Viper
}

func bindLaunchFlags(cmd *cobra.Command) *launchFlags {
	lf := &launchFlags{v: viper.New()}

	flags := cmd.Flags()
	flags.StringVar(&lf.optionsFile, "options", "", "YAML file with launch options")
	for _, opt := range config.Options() {
		bindOption(lf.v, flags, opt)
	}

	lf.v.SetEnvPrefix(EnvPrefix)
	lf.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	lf.v.AutomaticEnv()
	return lf
}

// bindOption registers opt as a string flag so that every value goes
// through the same cast rules as the options file and the environment
func bindOption(v *viper.Viper, flags *pflag.FlagSet, opt config.Option) {
	flags.String(opt.Key, "", opt.Usage)
	// the flag set is fresh, binding cannot fail
	_ = v.BindPFlag(opt.Key, flags.Lookup(opt.Key))
}

// load returns the launch options that were actually given. Flags win over
// the environment, which wins over the options file.
func (lf *launchFlags) load() (map[string]any, error) {
	if lf.optionsFile != "" {
		lf.v.SetConfigFile(lf.optionsFile)
		lf.v.SetConfigType("yaml")
		if err := lf.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading options file: %w", err)
		}
		for _, key := range lf.v.AllKeys() {
			if _, ok := config.Lookup(key); !ok {
				return nil, fmt.Errorf("options file %s: %w: %q", lf.optionsFile, config.ErrUnknownOption, key)
			}
		}
	}

	launch := make(map[string]any)
	for _, opt := range config.Options() {
		if lf.v.IsSet(opt.Key) {
			launch[opt.Key] = lf.v.Get(opt.Key)
		}
	}
	return launch, nil
}

// resolveLaunch merges the launch options over the defaults
func (lf *launchFlags) resolveLaunch() (config.Config, error) {
	launch, err := lf.load()
	if err != nil {
		return config.Config{}, err
	}
	return config.Resolve(config.Defaults(), launch)
}

// requireUID reports a missing job identifier with the single diagnostic
// line the CLI promises
func requireUID(cfg config.Config, stderr io.Writer) error {
	if cfg.UID != "" {
		return nil
	}
	fmt.Fprintln(stderr, "ERROR: No uid given")
	return config.ErrMissingUID
}

// loadJob reads the job of cfg and applies its overrides on top of cfg
func loadJob(cfg config.Config) (*models.Job, config.Config, error) {
	job, err := sio.NewJobReader(cfg.ConfigDir()).Read(cfg.UID)
	if err != nil {
		return nil, cfg, err
	}
	effective, err := config.Resolve(cfg, job.Config)
	if err != nil {
		return nil, cfg, fmt.Errorf("job overrides: %w", err)
	}
	return job, effective, nil
}

// jobExists reports whether cfg names a readable job file
func jobExists(cfg config.Config) bool {
	_, err := os.Stat(cfg.JobFile())
	return !errors.Is(err, os.ErrNotExist)
}
