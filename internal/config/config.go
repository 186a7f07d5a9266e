// Package config loads the ingestor configuration from a file, the
// environment and command line flags, in increasing priority.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"
)

// EnvPrefix prefixes environment variables, e.g. INGESTOR_SQL_DSN.
const EnvPrefix = "INGESTOR"

// Config is the whole configuration.
type Config struct {
	Cluster   Cluster   `mapstructure:"cluster"`
	SQL       SQL       `mapstructure:"sql"`
	Cassandra Cassandra `mapstructure:"cassandra"`
	Parquet   Parquet   `mapstructure:"parquet"`
	BigQuery  BigQuery  `mapstructure:"bigquery"`
	Slack     Slack     `mapstructure:"slack"`
	Ingest    Ingest    `mapstructure:"ingest"`
}

// Cluster is the [CLUSTER] section of a dwh.cfg file describing a Postgres
// compatible warehouse.
type Cluster struct {
	Host     string `mapstructure:"host"`
	DBName   string `mapstructure:"dbname"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Port     int    `mapstructure:"port"`
}

// SQL selects a relational destination. It takes precedence over Cluster.
type SQL struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Cassandra describes the wide-column destination.
type Cassandra struct {
	Hosts             []string `mapstructure:"hosts"`
	Keyspace          string   `mapstructure:"keyspace"`
	ReplicationFactor int      `mapstructure:"replication_factor"`
}

// Parquet is the root directory of parquet output.
type Parquet struct {
	Dir string `mapstructure:"dir"`
}

// BigQuery selects a dataset as the warehouse destination.
type BigQuery struct {
	Project string `mapstructure:"project"`
	Dataset string `mapstructure:"dataset"`
}

// Slack enables run notifications.
type Slack struct {
	Token        string `mapstructure:"token"`
	Channel      string `mapstructure:"channel"`
	OnlyFailures bool   `mapstructure:"only_failures"`
}

// Ingest holds run options.
type Ingest struct {
	Policy      string `mapstructure:"policy"`
	Ledger      string `mapstructure:"ledger"`
	LogLevel    string `mapstructure:"log_level"`
	Pretty      bool   `mapstructure:"pretty"`
	Strict      bool   `mapstructure:"strict"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

var defaults = map[string]interface{}{
	"cluster.host":                 "",
	"cluster.dbname":               "",
	"cluster.user":                 "",
	"cluster.password":             "",
	"cluster.port":                 5439,
	"sql.driver":                   "",
	"sql.dsn":                      "",
	"cassandra.hosts":              []string{"127.0.0.1"},
	"cassandra.keyspace":           "sparkifydb",
	"cassandra.replication_factor": 1,
	"parquet.dir":                  "etl_results",
	"bigquery.project":             "",
	"bigquery.dataset":             "",
	"slack.token":                  "",
	"slack.channel":                "",
	"slack.only_failures":          false,
	"ingest.policy":                "continue",
	"ingest.ledger":                "",
	"ingest.log_level":             "info",
	"ingest.pretty":                false,
	"ingest.strict":                false,
	"ingest.metrics_addr":          "",
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"policy":       "ingest.policy",
	"ledger":       "ingest.ledger",
	"log-level":    "ingest.log_level",
	"pretty":       "ingest.pretty",
	"strict":       "ingest.strict",
	"metrics-addr": "ingest.metrics_addr",
	"sql-driver":   "sql.driver",
	"sql-dsn":      "sql.dsn",
	"parquet-dir":  "parquet.dir",
}

// Load reads the configuration. path may be empty. Files ending in .cfg or
// .ini are read as INI; other extensions (toml, yaml, json) are detected by
// viper. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".cfg", ".ini":
			v.SetConfigType("ini")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, xerrors.Errorf("failed to read configuration file %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, xerrors.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, xerrors.Errorf("failed to decode configuration: %w", err)
	}

	return c, nil
}

// SQLSource returns the driver and DSN of the relational destination. A
// [CLUSTER] section is turned into a Postgres DSN when no sql section is set.
func (c *Config) SQLSource() (driver, dsn string, err error) {
	if c.SQL.DSN != "" {
		driver = c.SQL.Driver
		if driver == "" {
			driver = "postgres"
		}
		return driver, c.SQL.DSN, nil
	}

	if c.Cluster.Host == "" {
		return "", "", xerrors.New("no relational destination configured")
	}

	dsn = fmt.Sprintf("host=%s dbname=%s user=%s password=%s port=%d",
		quoteDSN(c.Cluster.Host), quoteDSN(c.Cluster.DBName), quoteDSN(c.Cluster.User),
		quoteDSN(c.Cluster.Password), c.Cluster.Port)

	return "postgres", dsn, nil
}

func quoteDSN(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}
