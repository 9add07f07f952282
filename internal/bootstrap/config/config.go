package config

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"investigator/internal/bootstrap/logging"
	"investigator/internal/errs"
)

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	GitHub        GitHubConfig        `mapstructure:"github"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Investigation InvestigationConfig `mapstructure:"investigation"`
	Notify        NotifyConfig        `mapstructure:"notify"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GitHubConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Token             string        `mapstructure:"token"`
	AppID             int64         `mapstructure:"app_id"`
	InstallationID    int64         `mapstructure:"installation_id"`
	PrivateKeyFile    string        `mapstructure:"private_key_file"`
	WebhookSecret     string        `mapstructure:"webhook_secret"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// WorkerConfig describes the detached worker process. An empty Command means
// the service re-executes its own binary as "worker drain".
type WorkerConfig struct {
	Command            string        `mapstructure:"command"`
	Args               []string      `mapstructure:"args"`
	LogFile            string        `mapstructure:"log_file"`
	InvestigateCommand string        `mapstructure:"investigate_command"`
	InvestigateTimeout time.Duration `mapstructure:"investigate_timeout"`
}

type InvestigationConfig struct {
	BotSuffix string   `mapstructure:"bot_suffix"`
	BotLogins []string `mapstructure:"bot_logins"`
}

type NotifyConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (configFile != "" && isMissingFile(err)) {
			// Defaults and env are enough to run the service.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env", slog.String("config_file", configFile))
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("server_addr", cfg.Server.Addr),
		slog.Bool("github_app_auth", cfg.GitHub.UsesAppAuth()),
	)

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	if c.GitHub.Timeout <= 0 {
		return errors.New("github.timeout must be positive")
	}
	if c.GitHub.AppID != 0 || c.GitHub.InstallationID != 0 || c.GitHub.PrivateKeyFile != "" {
		if !c.GitHub.UsesAppAuth() {
			return errors.New("github app auth requires app_id, installation_id and private_key_file")
		}
	}
	return nil
}

// UsesAppAuth reports whether GitHub App installation credentials are set.
func (g GitHubConfig) UsesAppAuth() bool {
	return g.AppID > 0 && g.InstallationID > 0 && strings.TrimSpace(g.PrivateKeyFile) != ""
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "investigator")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".state/investigator.sqlite?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate")
	v.SetDefault("server.addr", ":8099")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("github.base_url", "")
	v.SetDefault("github.token", "")
	v.SetDefault("github.app_id", 0)
	v.SetDefault("github.installation_id", 0)
	v.SetDefault("github.private_key_file", "")
	v.SetDefault("github.webhook_secret", "")
	v.SetDefault("github.timeout", 30*time.Second)
	v.SetDefault("github.requests_per_second", 5.0)
	v.SetDefault("github.burst", 10)
	v.SetDefault("worker.command", "")
	v.SetDefault("worker.args", []string{})
	v.SetDefault("worker.log_file", ".state/worker.log")
	v.SetDefault("worker.investigate_command", "/investigate.sh")
	v.SetDefault("worker.investigate_timeout", time.Hour)
	v.SetDefault("investigation.bot_suffix", "[bot]")
	v.SetDefault("investigation.bot_logins", []string{})
	v.SetDefault("notify.nats_url", "")
	v.SetDefault("notify.subject", "investigator.queue.enqueued")
}
