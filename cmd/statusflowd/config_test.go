package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func parseConfig(t *testing.T, args ...string) (Config, error) {
	t.Helper()

	v := viper.New()
	cmd := &cobra.Command{Use: "test"}
	jtest.RequireNil(t, setupFlags(cmd, v))
	jtest.RequireNil(t, cmd.ParseFlags(args))

	return loadConfig(cmd, v)
}

func TestConfigDefaults(t *testing.T) {
	c, err := parseConfig(t)
	jtest.RequireNil(t, err)

	require.Equal(t, ":8080", c.HTTPAddr)
	require.Equal(t, BackendSQLite, c.Store)
	require.Equal(t, BackendMemory, c.Lock)
	require.Equal(t, BackendSQLite, c.Queue)
	require.Equal(t, []string{"localhost:6379"}, c.RedisAddrs)
	require.Equal(t, 5*time.Second, c.LockTimeout)
	require.Equal(t, 24*time.Hour, c.WebhookDedupTTL)
	require.Empty(t, c.KafkaBrokers)
	require.Empty(t, c.EtcdEndpoints)
}

func TestConfigBackendDefaults(t *testing.T) {
	testCases := []struct {
		name  string
		args  []string
		lock  Backend
		queue Backend
	}{
		{name: "memory", args: []string{"--store=memory"}, lock: BackendMemory, queue: BackendMemory},
		{name: "mysql", args: []string{"--store=mysql", "--mysql-dsn=root@/statusflow"}, lock: BackendMySQL, queue: BackendMemory},
		{name: "postgres", args: []string{"--store=postgres", "--postgres-dsn=postgres://localhost/statusflow"}, lock: BackendPostgres, queue: BackendMemory},
		{name: "redis", args: []string{"--store=postgres", "--postgres-dsn=postgres://localhost/statusflow", "--lock=redis", "--queue=redis"}, lock: BackendRedis, queue: BackendRedis},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := parseConfig(t, tc.args...)
			jtest.RequireNil(t, err)
			require.Equal(t, tc.lock, c.Lock)
			require.Equal(t, tc.queue, c.Queue)
		})
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statusflow.yaml")
	err := os.WriteFile(path, []byte(`
store: memory
http-addr: ":9000"
kafka-brokers: "kafka-1:9092, kafka-2:9092"
partners:
  dana:
    prefix: "dana-"
    callback_url: "https://dana.example/callbacks"
  bca:
    workflows: ["Autodebet-BCA"]
`), 0o600)
	jtest.RequireNil(t, err)

	c, err := parseConfig(t, "--config-file="+path, "--http-addr=:9100")
	jtest.RequireNil(t, err)

	require.Equal(t, BackendMemory, c.Store)
	require.Equal(t, ":9100", c.HTTPAddr)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, c.KafkaBrokers)
	require.Equal(t, map[string]PartnerConfig{
		"dana": {Prefix: "dana-", CallbackURL: "https://dana.example/callbacks"},
		"bca":  {Workflows: []string{"Autodebet-BCA"}},
	}, c.Partners)
	require.Equal(t, map[string][]string{
		"dana": nil,
		"bca":  {"Autodebet-BCA"},
	}, c.partnerWorkflows())
}

func TestConfigEnv(t *testing.T) {
	t.Setenv("STATUSFLOW_HTTP_ADDR", ":7000")
	t.Setenv("STATUSFLOW_STORE", "memory")

	c, err := parseConfig(t)
	jtest.RequireNil(t, err)
	require.Equal(t, ":7000", c.HTTPAddr)
	require.Equal(t, BackendMemory, c.Store)
}

func TestConfigInvalid(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{name: "unknown store", args: []string{"--store=mongo"}},
		{name: "unknown lock", args: []string{"--lock=zookeeper"}},
		{name: "unknown queue", args: []string{"--queue=sqs"}},
		{name: "unknown kafka encoding", args: []string{"--kafka-encoding=avro"}},
		{name: "mysql without dsn", args: []string{"--store=mysql"}},
		{name: "postgres without dsn", args: []string{"--store=postgres"}},
		{name: "database lock of another store", args: []string{"--store=memory", "--lock=postgres"}},
		{name: "missing config file", args: []string{"--config-file=" + filepath.Join(os.TempDir(), "statusflow-missing.toml")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseConfig(t, tc.args...)
			require.Error(t, err)
		})
	}
}

func TestSplitList(t *testing.T) {
	require.Nil(t, splitList(""))
	require.Equal(t, []string{"a", "b"}, splitList(" a,, b ,"))
}
