package core

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DevJWTSecret is the publicly known JWT secret of local auth backends. Only DEV and TEST may run with it.
const DevJWTSecret = "super-secret-jwt-token-with-at-least-32-characters-long"

// Storage drivers
const (
	StorageMemory   = "memory"
	StorageBadger   = "badger"
	StoragePostgres = "postgres"
)

type (
	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		RollbarToken string

		Storage  StorageConfig
		Database DatabaseConfig
		Remote   RemoteConfig
		Server   ServerConfig
	}

	StorageConfig struct {
		Driver     string // memory | badger | postgres
		Path       string // badger dir
		KeyPrefix  string
		SyncWrites bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RemoteConfig struct {
		URL     string
		AnonKey string
		Schema  string
		Timeout time.Duration
	}

	ServerConfig struct {
		Host            string
		Address         string
		JWTSecret       string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

func setDefaults(conf *viper.Viper) {
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "Collegium")
	conf.SetDefault("build", "develop")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("storage.driver", StorageBadger)
	conf.SetDefault("storage.path", filepath.Join(os.TempDir(), "collegium"))
	conf.SetDefault("storage.keyPrefix", "collegium_")
	conf.SetDefault("storage.syncWrites", true)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "collegium")
	conf.SetDefault("database.user", "collegium")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("remote.url", "https://xtganknrrjjqutxeugxh.supabase.co")
	conf.SetDefault("remote.anonKey", "")
	conf.SetDefault("remote.schema", "")
	conf.SetDefault("remote.timeout", 30*time.Second)

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.jwtSecret", DevJWTSecret)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.disableReqLogs", false)
}

// NewConfig loads the app configuration from the environment.
// ENV selects the environment (DEV (default), TEST, QA, PROD) and is used as the env vars prefix:
// eg: DEV_STORAGE_DRIVER=memory.
// A `config/.env.<env>` file, if present at the project root, is loaded first.
func NewConfig() (*Config, error) {
	conf := viper.New()
	setDefaults(conf)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	root, err := Getwd()
	if err != nil {
		return nil, err
	}
	dotEnvPath := filepath.Join(root, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("loading %s", dotEnvPath))
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, fmt.Sprintf("checking %s", dotEnvPath))
	}
	conf.AutomaticEnv()

	c := &Config{
		Env:          env,
		Build:        conf.GetString("build"),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		AppName:      conf.GetString("appName"),
		RollbarToken: conf.GetString("rollbarToken"),
		Storage: StorageConfig{
			Driver:     strings.ToLower(conf.GetString("storage.driver")),
			Path:       conf.GetString("storage.path"),
			KeyPrefix:  conf.GetString("storage.keyPrefix"),
			SyncWrites: conf.GetBool("storage.syncWrites"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Remote: RemoteConfig{
			URL:     strings.TrimRight(conf.GetString("remote.url"), "/"),
			AnonKey: conf.GetString("remote.anonKey"),
			Schema:  conf.GetString("remote.schema"),
			Timeout: conf.GetDuration("remote.timeout"),
		},
		Server: ServerConfig{
			Host:            conf.GetString("server.host"),
			Address:         conf.GetString("server.address"),
			JWTSecret:       conf.GetString("server.jwtSecret"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  conf.GetBool("server.disableReqLogs"),
		},
	}
	if err = c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.Env {
	case "DEV", "TEST":
		return nil
	}
	if c.Server.JWTSecret == "" || c.Server.JWTSecret == DevJWTSecret {
		return errors.Errorf("%s_SERVER_JWTSECRET must be set in %s", c.Env, c.Env)
	}
	return nil
}
