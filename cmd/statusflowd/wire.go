package main

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/rink/v2"
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/adapters/httpnotify"
	"github.com/julo/statusflow/adapters/kafkapublisher"
	"github.com/julo/statusflow/adapters/memlock"
	"github.com/julo/statusflow/adapters/memqueue"
	"github.com/julo/statusflow/adapters/memstore"
	"github.com/julo/statusflow/adapters/pgstore"
	sfredis "github.com/julo/statusflow/adapters/redis"
	"github.com/julo/statusflow/adapters/rinkrolescheduler"
	"github.com/julo/statusflow/adapters/sqlite"
	"github.com/julo/statusflow/adapters/sqlstore"
	"github.com/julo/statusflow/adapters/zaplog"
	"github.com/julo/statusflow/definition"
	"github.com/julo/statusflow/lending"
)

const (
	entityTable  = "statusflow_entities"
	historyTable = "statusflow_history"

	etcdDialTimeout = 5 * time.Second
)

// app holds everything built from Config. Close releases connections in reverse order of creation.
type app struct {
	cfg      Config
	logger   statusflow.Logger
	lending  lending.Config
	registry *statusflow.Registry
	store    statusflow.Store
	locker   statusflow.Locker
	queue    statusflow.TaskQueue
	engine   *statusflow.Engine
	roles    statusflow.RoleScheduler
	notifier *httpnotify.Client
	partners lending.PrefixDirectory

	closers []func() error
}

func newLogger(level string) (statusflow.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrap(err, "parse log level", j.MKV{"level": level})
	}

	return zaplog.New(zaplog.NewProduction(lvl)), nil
}

// lendingConfig is the lending configuration used by the daemon. Fraud screening results are not integrated yet so
// every screening counts as completed.
func lendingConfig() lending.Config {
	return lending.Config{
		FraudChecks: lending.FraudChecksFunc(func(context.Context, string) (bool, error) {
			return true, nil
		}),
	}
}

// loadRegistry builds the registry from the definitions file, or from the built in lending workflows when none is
// configured. Lending handlers are bound to every lending workflow the definitions contain.
func loadRegistry(c Config, lc lending.Config) (*statusflow.Registry, error) {
	if c.Definitions == "" {
		return lending.NewRegistry(lc)
	}

	doc, err := definition.ParseFile(c.Definitions)
	if err != nil {
		return nil, err
	}

	defined := make(map[string]bool)
	for _, wd := range doc.Workflows {
		defined[wd.Name] = true
	}

	var bindings []statusflow.HandlerBinding
	for _, b := range lending.Bindings(lc) {
		if defined[b.Workflow] {
			bindings = append(bindings, b)
		}
	}

	return doc.Registry(bindings...)
}

// jobs returns the lending batch jobs whose workflow is known to the registry.
func (a *app) jobs() []statusflow.BatchJob {
	var jobs []statusflow.BatchJob
	for _, job := range lending.Jobs(a.lending) {
		if _, err := a.registry.Schema(job.Workflow); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs
}

func newApp(ctx context.Context, c Config) (*app, error) {
	a := &app{cfg: c, lending: lendingConfig()}

	err := a.build(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) build(ctx context.Context) error {
	var err error

	a.logger, err = newLogger(a.cfg.LogLevel)
	if err != nil {
		return err
	}

	a.registry, err = loadRegistry(a.cfg, a.lending)
	if err != nil {
		return errors.Wrap(err, "load definitions", j.MKV{"path": a.cfg.Definitions})
	}

	backends, err := a.connect(ctx)
	if err != nil {
		return err
	}

	a.store, err = backends.store(a.cfg.Store)
	if err != nil {
		return err
	}

	a.locker, err = backends.locker(a.cfg.Lock)
	if err != nil {
		return err
	}

	a.queue, err = backends.queue(a.cfg.Queue)
	if err != nil {
		return err
	}

	opts := []statusflow.Option{
		statusflow.WithLogger(a.logger),
		statusflow.WithLockTimeout(a.cfg.LockTimeout),
	}
	if a.cfg.Debug {
		opts = append(opts, statusflow.WithDebugMode())
	}

	if len(a.cfg.KafkaBrokers) > 0 {
		var kopts []kafkapublisher.Option
		if a.cfg.KafkaEncoding == "protobuf" {
			kopts = append(kopts, kafkapublisher.WithProtobuf())
		}

		pub, err := kafkapublisher.New(a.cfg.KafkaBrokers, a.cfg.KafkaTopic, kopts...)
		if err != nil {
			return errors.Wrap(err, "connect kafka", j.MKV{"topic": a.cfg.KafkaTopic})
		}
		a.closers = append(a.closers, pub.Close)
		opts = append(opts, statusflow.WithPublisher(pub))
	}

	a.engine = statusflow.New(a.registry, a.store, a.locker, a.queue, opts...)

	a.roles, err = a.roleScheduler()
	if err != nil {
		return err
	}

	a.notifier = httpnotify.New(a.cfg.NotifyURL,
		httpnotify.WithTimeout(a.cfg.HTTPTimeout),
		httpnotify.WithBearerToken(a.cfg.NotifyToken),
	)

	a.partners = make(lending.PrefixDirectory)
	for name, p := range a.cfg.Partners {
		a.partners[p.Prefix] = lending.Partner{Name: name, CallbackURL: p.CallbackURL}
	}

	return nil
}

func (a *app) roleScheduler() (statusflow.RoleScheduler, error) {
	if len(a.cfg.EtcdEndpoints) == 0 {
		return memlock.NewRoleScheduler(), nil
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   a.cfg.EtcdEndpoints,
		DialTimeout: etcdDialTimeout,
		DialOptions: []grpc.DialOption{grpc.WithBlock()},
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect etcd")
	}
	a.closers = append(a.closers, cli.Close)

	r := rink.New(cli, a.cfg.ClusterID)
	go r.Run()

	rs := rinkrolescheduler.New(r)
	a.closers = append(a.closers, rs.Close)

	return rs, nil
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil

	return first
}

// backends holds the connections shared by the store, lock and queue.
type backends struct {
	sqlite *sql.DB
	mysql  *sql.DB
	pg     *pgxpool.Pool
	redis  redis.UniversalClient
}

func (a *app) connect(ctx context.Context) (*backends, error) {
	var b backends

	uses := func(backend Backend) bool {
		return a.cfg.Store == backend || a.cfg.Lock == backend || a.cfg.Queue == backend
	}

	if uses(BackendSQLite) {
		db, err := sqlite.Open(a.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		err = sqlite.InitSchema(db)
		if err != nil {
			return nil, errors.Wrap(err, "init sqlite schema", j.MKV{"path": a.cfg.SQLitePath})
		}
		b.sqlite = db
	}

	if uses(BackendMySQL) {
		db, err := sql.Open("mysql", a.cfg.MySQLDSN)
		if err != nil {
			return nil, errors.Wrap(err, "open mysql")
		}
		a.closers = append(a.closers, db.Close)

		err = db.PingContext(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "ping mysql")
		}
		b.mysql = db
	}

	if uses(BackendPostgres) {
		pool, err := pgxpool.New(ctx, a.cfg.PostgresDSN)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres")
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})

		err = pgstore.InitSchema(ctx, pool)
		if err != nil {
			return nil, err
		}
		b.pg = pool
	}

	if uses(BackendRedis) {
		cli := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: a.cfg.RedisAddrs})
		a.closers = append(a.closers, cli.Close)

		err := cli.Ping(ctx).Err()
		if err != nil {
			return nil, errors.Wrap(err, "ping redis")
		}
		b.redis = cli
	}

	return &b, nil
}

func (b *backends) store(backend Backend) (statusflow.Store, error) {
	switch backend {
	case BackendMemory:
		return memstore.New(), nil
	case BackendSQLite:
		return sqlite.NewStore(b.sqlite), nil
	case BackendMySQL:
		return sqlstore.New(b.mysql, b.mysql, entityTable, historyTable), nil
	case BackendPostgres:
		return pgstore.New(b.pg), nil
	default:
		return nil, errors.New("unsupported store", j.MKV{"store": string(backend)})
	}
}

func (b *backends) locker(backend Backend) (statusflow.Locker, error) {
	switch backend {
	case BackendMemory:
		return memlock.New(), nil
	case BackendMySQL:
		return sqlstore.NewLocker(b.mysql), nil
	case BackendPostgres:
		return pgstore.NewLocker(b.pg), nil
	case BackendRedis:
		return sfredis.NewLocker(b.redis), nil
	default:
		return nil, errors.New("unsupported lock", j.MKV{"lock": string(backend)})
	}
}

func (b *backends) queue(backend Backend) (statusflow.TaskQueue, error) {
	switch backend {
	case BackendMemory:
		return memqueue.New(), nil
	case BackendSQLite:
		return sqlite.NewTaskQueue(b.sqlite), nil
	case BackendRedis:
		return sfredis.NewTaskQueue(b.redis), nil
	default:
		return nil, errors.New("unsupported queue", j.MKV{"queue": string(backend)})
	}
}
