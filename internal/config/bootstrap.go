package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Bootstrap holds the handful of settings needed before the AgentConfig
// document can even be located: where the agent's working directory lives,
// where the admin HTTP surface listens, and how logging is set up. These
// are loaded once at process start via viper, following the teacher's
// `internal/config/config.go` sectioned-struct-with-env-override pattern
// (prefix SIEMAGENT_ in place of the teacher's ALERTHISTORY_).
type Bootstrap struct {
	WorkingDir    string `mapstructure:"working_dir"`
	AdminListen   string `mapstructure:"admin_listen"`
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogOutput     string `mapstructure:"log_output"`
	LogFilename   string `mapstructure:"log_filename"`
}

// LoadBootstrap reads bootstrap settings from an optional config file
// (bootstrapPath, may be ""), environment variables prefixed SIEMAGENT_,
// and finally these defaults.
func LoadBootstrap(bootstrapPath string) (Bootstrap, error) {
	v := viper.New()
	v.SetEnvPrefix("SIEMAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("working_dir", "/var/lib/siemagent")
	v.SetDefault("admin_listen", "127.0.0.1:9191")
	v.SetDefault("log_level", "Information")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_output", "stdout")
	v.SetDefault("log_filename", "")

	if bootstrapPath != "" {
		v.SetConfigFile(bootstrapPath)
		if err := v.ReadInConfig(); err != nil {
			return Bootstrap{}, fmt.Errorf("read bootstrap config %s: %w", bootstrapPath, err)
		}
	}

	var b Bootstrap
	if err := v.Unmarshal(&b); err != nil {
		return Bootstrap{}, fmt.Errorf("unmarshal bootstrap config: %w", err)
	}
	return b, nil
}
