package config

import (
	"fmt"
	"strings"

	"github.com/rpattn/extmodels/internal/db"
	"github.com/spf13/viper"
)

// ExtensionConfig names the tenant concept for the extension layer: the
// table holding tenants and the record column relating a record to its
// tenant. Both must be supplied once at process startup.
type ExtensionConfig struct {
	TenantTable    string
	TenantRelation string
}

// Config is the full process configuration.
type Config struct {
	DB        db.Config
	Extension ExtensionConfig
}

// Load reads config.yaml from configPath with environment overrides.
// Missing extension settings are a startup error, not a runtime one.
func Load(configPath string) (Config, error) {
	cfg := Config{DB: db.DefaultConfig()}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("EXTMODELS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("extension.tenant_table")
	v.BindEnv("extension.tenant_relation")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	}

	if v.IsSet("database.host") {
		cfg.DB.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.DB.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.DB.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.DB.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DB.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.DB.SSLMode = v.GetString("database.sslmode")
	}

	cfg.Extension.TenantTable = v.GetString("extension.tenant_table")
	cfg.Extension.TenantRelation = v.GetString("extension.tenant_relation")

	if cfg.Extension.TenantTable == "" {
		return Config{}, fmt.Errorf("extension.tenant_table must be set")
	}
	if cfg.Extension.TenantRelation == "" {
		return Config{}, fmt.Errorf("extension.tenant_relation must be set")
	}

	return cfg, nil
}
