package guard

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/viper"

	"github.com/darwinia-network/bridger-guard/relay"
)

// Config is an object containing guard configuration.
type Config struct {
	DarwiniaEndpoint        string `mapstructure:"DARWINIA_ENDPOINT" mandatory:"true" default:"ws://localhost:9944"`
	ShadowEndpoint          string `mapstructure:"SHADOW_ENDPOINT" mandatory:"true" default:"http://localhost:3000"`
	GuardAccount            string `mapstructure:"GUARD_ACCOUNT" mandatory:"true"`
	GuardInterval           int    `mapstructure:"GUARD_INTERVAL" mandatory:"true" default:"30"`
	GuardCycleTimeout       int    `mapstructure:"GUARD_CYCLE_TIMEOUT" default:"60"`
	GuardSkipOverlapping    bool   `mapstructure:"GUARD_SKIP_OVERLAPPING" default:"false"`
	HttpTimeout             int    `mapstructure:"HTTP_TIMEOUT" default:"10"`
	ExtrinsicsEndpoint      string `mapstructure:"EXTRINSICS_ENDPOINT"`
	ExtrinsicsDBDir         string `mapstructure:"EXTRINSICS_DB_DIR" default:"data"`
	ExtrinsicsRetryInterval int    `mapstructure:"EXTRINSICS_RETRY_INTERVAL" default:"30"`
	DryRun                  bool   `mapstructure:"DRY_RUN" default:"false"`
	LogLevel                string `mapstructure:"LOG_LEVEL" default:"info"`
}

// LoadConfig reads the env file at path. Environment variables take
// precedence over the file, and default tags fill the gaps.
func LoadConfig(path string) (Config, error) {
	config := Config{}
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()

	t := reflect.TypeOf(config)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("mapstructure")
		if err := v.BindEnv(key); err != nil {
			return config, err
		}
		if def, ok := field.Tag.Lookup("default"); ok {
			v.SetDefault(key, def)
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		return config, fmt.Errorf("read config %s: %w", path, err)
	}
	err = v.Unmarshal(&config)
	if err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	v := reflect.ValueOf(c)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("mandatory") != "true" || field.Type.Kind() != reflect.String {
			continue
		}
		if v.Field(i).String() == "" {
			return fmt.Errorf("%s is mandatory", field.Tag.Get("mapstructure"))
		}
	}
	if c.GuardInterval <= 0 {
		return fmt.Errorf("GUARD_INTERVAL must be positive, got %d", c.GuardInterval)
	}
	if c.GuardCycleTimeout < 0 {
		return fmt.Errorf("GUARD_CYCLE_TIMEOUT can't be negative, got %d", c.GuardCycleTimeout)
	}
	if c.ExtrinsicsRetryInterval <= 0 {
		return fmt.Errorf("EXTRINSICS_RETRY_INTERVAL must be positive, got %d", c.ExtrinsicsRetryInterval)
	}
	if !c.DryRun && c.ExtrinsicsEndpoint == "" {
		return fmt.Errorf("EXTRINSICS_ENDPOINT is mandatory unless DRY_RUN is set")
	}
	if _, err := relay.ParseAccountID(c.GuardAccount); err != nil {
		return fmt.Errorf("GUARD_ACCOUNT: %w", err)
	}
	return nil
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.GuardInterval) * time.Second
}

// CycleTimeout bounds a single check; zero means unbounded.
func (c Config) CycleTimeout() time.Duration {
	return time.Duration(c.GuardCycleTimeout) * time.Second
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HttpTimeout) * time.Second
}

func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.ExtrinsicsRetryInterval) * time.Second
}
