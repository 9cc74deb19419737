// Package config 加载调用默认值
//
// 来源优先级（高到低）：
//  1. 命令行参数（由 cmd 层覆盖）
//  2. PLAYCORE_ 前缀的环境变量，嵌套键用下划线，如 PLAYCORE_LOGGING_LEVEL
//  3. 配置文件（./playcore.yaml、~/.playcore/playcore.yaml、/etc/playcore/playcore.yaml）
//  4. 默认值
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jimyag/playcore/pkg/executor"
	"github.com/jimyag/playcore/pkg/logger"
	"github.com/jimyag/playcore/pkg/vars"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "PLAYCORE"

// Config 根配置
type Config struct {
	Inventory     string        `mapstructure:"inventory"`
	Forks         int           `mapstructure:"forks" validate:"gte=1"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gte=0"`
	HashBehaviour string        `mapstructure:"hash_behaviour" validate:"oneof=replace merge"`
	RolesPath     []string      `mapstructure:"roles_path"`
	Become        bool          `mapstructure:"become"`
	BecomeUser    string        `mapstructure:"become_user"`
	Logging       LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level   string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Pretty  bool   `mapstructure:"pretty"`
	NoColor bool   `mapstructure:"no_color"`
}

// Load 读取配置文件和环境变量
//
// cfgFile 为空时在默认位置查找 playcore.yaml，找不到则只使用默认值；
// 显式指定的文件不存在时返回错误。
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("playcore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.playcore")
		v.AddConfigPath("/etc/playcore")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("inventory", "")
	v.SetDefault("forks", executor.DefaultForks)
	v.SetDefault("timeout", "0s")
	v.SetDefault("hash_behaviour", string(vars.HashReplace))
	v.SetDefault("roles_path", []string{})
	v.SetDefault("become", false)
	v.SetDefault("become_user", "")

	v.SetDefault("logging.level", string(logger.WarnLevel))
	v.SetDefault("logging.pretty", true)
	v.SetDefault("logging.no_color", false)
}

var validate = validator.New()

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ExecutorOptions 转为执行器选项
func (c *Config) ExecutorOptions() executor.Options {
	opts := executor.DefaultOptions()
	opts.Forks = c.Forks
	opts.Timeout = c.Timeout
	opts.HashBehaviour = vars.HashBehaviour(c.HashBehaviour)
	opts.Become = c.Become
	opts.BecomeUser = c.BecomeUser
	return opts
}

// LoggerConfig 转为日志配置
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = logger.LogLevel(c.Logging.Level)
	lc.Pretty = c.Logging.Pretty
	lc.NoColor = c.Logging.NoColor
	return lc
}
