package main

import (
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendMySQL    Backend = "mysql"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

type PartnerConfig struct {
	// Prefix is the entity id prefix of applications originated by the partner, e.g. "dana-".
	Prefix      string `mapstructure:"prefix"`
	CallbackURL string `mapstructure:"callback_url"`

	// Workflows lists the workflows the partner's webhook may move.
	Workflows []string `mapstructure:"workflows"`
}

type Config struct {
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string
	Debug       bool

	Definitions string

	Store       Backend
	Lock        Backend
	Queue       Backend
	SQLitePath  string
	MySQLDSN    string
	PostgresDSN string
	RedisAddrs  []string
	LockTimeout time.Duration

	KafkaBrokers  []string
	KafkaTopic    string
	KafkaEncoding string

	EtcdEndpoints []string
	ClusterID     string

	JWTSecret string
	JWTIssuer string

	NotifyURL       string
	NotifyToken     string
	HTTPTimeout     time.Duration
	Partners        map[string]PartnerConfig
	WebhookDedupTTL time.Duration
}

func setupFlags(cmd *cobra.Command, v *viper.Viper) error {
	f := cmd.PersistentFlags()
	f.String("config-file", "", "Path to config file.")
	f.String("http-addr", ":8080", "address for rest endpoints")
	f.String("metrics-addr", ":9090", "address for the prometheus metrics endpoint")
	f.String("log-level", "info", "zap log level")
	f.Bool("debug", false, "enable debug logs of the engine")
	f.String("definitions", "", "YAML file with statuses and workflows, defaults to the built in lending workflows")
	f.String("store", string(BackendSQLite), "entity store: memory, sqlite, mysql or postgres")
	f.String("lock", "", "entity lock: memory, mysql, postgres or redis, defaults to the store backend")
	f.String("queue", "", "task queue: memory, sqlite or redis, defaults to the store backend when it can hold tasks")
	f.String("sqlite-path", "statusflow.db", "path of the sqlite database")
	f.String("mysql-dsn", "", "mysql data source name")
	f.String("postgres-dsn", "", "postgres connection string")
	f.String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	f.Duration("lock-timeout", 5*time.Second, "how long a transition waits for the entity lock")
	f.String("kafka-brokers", "", "comma separated kafka brokers, transition events are not published when empty")
	f.String("kafka-topic", "statusflow.transitions", "kafka topic for transition events")
	f.String("kafka-encoding", "json", "encoding of transition events: json or protobuf")
	f.String("etcd-endpoints", "", "comma separated etcd endpoints used to elect batch job runners, single instance when empty")
	f.String("cluster-id", "statusflowd", "rink cluster id")
	f.String("jwt-secret", "", "HS256 secret for bearer tokens")
	f.String("jwt-issuer", "statusflow", "issuer of bearer tokens")
	f.String("notify-url", "", "notification service endpoint")
	f.String("notify-token", "", "bearer token for the notification service and partner callbacks")
	f.Duration("http-timeout", 10*time.Second, "timeout of outbound notification and callback requests")
	f.Duration("webhook-dedup-ttl", 24*time.Hour, "how long webhook delivery ids are remembered")

	return v.BindPFlags(f)
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) (Config, error) {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix("STATUSFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, errors.Wrap(err, "read config", j.MKV{"path": configFile})
			}
		}
	}

	c := Config{
		HTTPAddr:        v.GetString("http-addr"),
		MetricsAddr:     v.GetString("metrics-addr"),
		LogLevel:        v.GetString("log-level"),
		Debug:           v.GetBool("debug"),
		Definitions:     v.GetString("definitions"),
		Store:           Backend(v.GetString("store")),
		Lock:            Backend(v.GetString("lock")),
		Queue:           Backend(v.GetString("queue")),
		SQLitePath:      v.GetString("sqlite-path"),
		MySQLDSN:        v.GetString("mysql-dsn"),
		PostgresDSN:     v.GetString("postgres-dsn"),
		RedisAddrs:      splitList(v.GetString("redis-addr")),
		LockTimeout:     v.GetDuration("lock-timeout"),
		KafkaBrokers:    splitList(v.GetString("kafka-brokers")),
		KafkaTopic:      v.GetString("kafka-topic"),
		KafkaEncoding:   v.GetString("kafka-encoding"),
		EtcdEndpoints:   splitList(v.GetString("etcd-endpoints")),
		ClusterID:       v.GetString("cluster-id"),
		JWTSecret:       v.GetString("jwt-secret"),
		JWTIssuer:       v.GetString("jwt-issuer"),
		NotifyURL:       v.GetString("notify-url"),
		NotifyToken:     v.GetString("notify-token"),
		HTTPTimeout:     v.GetDuration("http-timeout"),
		WebhookDedupTTL: v.GetDuration("webhook-dedup-ttl"),
	}

	err = v.UnmarshalKey("partners", &c.Partners)
	if err != nil {
		return Config{}, errors.Wrap(err, "parse partners")
	}

	if c.Lock == "" {
		c.Lock = c.Store
		if c.Store == BackendSQLite {
			c.Lock = BackendMemory
		}
	}

	if c.Queue == "" {
		c.Queue = BackendMemory
		if c.Store == BackendSQLite {
			c.Queue = BackendSQLite
		}
	}

	return c, c.validate()
}

// partnerWorkflows returns the workflows each partner's webhook may move.
func (c Config) partnerWorkflows() map[string][]string {
	m := make(map[string][]string, len(c.Partners))
	for name, p := range c.Partners {
		m[name] = p.Workflows
	}

	return m
}

func (c Config) validate() error {
	switch c.Store {
	case BackendMemory, BackendSQLite, BackendMySQL, BackendPostgres:
	default:
		return errors.New("unsupported store", j.MKV{"store": string(c.Store)})
	}

	switch c.Lock {
	case BackendMemory, BackendMySQL, BackendPostgres, BackendRedis:
	default:
		return errors.New("unsupported lock", j.MKV{"lock": string(c.Lock)})
	}

	if (c.Lock == BackendMySQL || c.Lock == BackendPostgres) && c.Lock != c.Store {
		return errors.New("database locks require the same store backend", j.MKV{
			"lock":  string(c.Lock),
			"store": string(c.Store),
		})
	}

	switch c.Queue {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return errors.New("unsupported queue", j.MKV{"queue": string(c.Queue)})
	}

	if c.KafkaEncoding != "json" && c.KafkaEncoding != "protobuf" {
		return errors.New("unsupported kafka encoding", j.MKV{"encoding": c.KafkaEncoding})
	}

	if c.Store == BackendMySQL && c.MySQLDSN == "" {
		return errors.New("mysql-dsn is required for the mysql store")
	}

	if c.Store == BackendPostgres && c.PostgresDSN == "" {
		return errors.New("postgres-dsn is required for the postgres store")
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}

	return out
}
