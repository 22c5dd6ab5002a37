package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/adapters/webui"
	"github.com/julo/statusflow/definition"
	"github.com/julo/statusflow/lending"
	"github.com/julo/statusflow/rest"
)

type cli struct {
	v   *viper.Viper
	cfg Config
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, c.v)
	if err != nil {
		return err
	}

	c.cfg = cfg
	return nil
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	cmd := &cobra.Command{
		Use:               "statusflowd",
		Short:             "Status transition engine for JULO lending workflows",
		PersistentPreRunE: c.setupConfig,
		SilenceUsage:      true,
	}

	if err := setupFlags(cmd, c.v); err != nil {
		log.Fatal(err)
	}

	cmd.AddCommand(
		c.serveCmd(),
		c.validateCmd(),
		c.diagramCmd(),
		c.exportCmd(),
		c.runJobCmd(),
		c.tokenCmd(),
	)

	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST api, run async tasks and scheduled batch jobs",
		Args:  cobra.NoArgs,
		RunE:  c.serve,
	}
}

func (c *cli) serve(cmd *cobra.Command, args []string) error {
	if c.cfg.JWTSecret == "" {
		return errors.New("jwt-secret is required to serve")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := statusflow.NewTaskRunner(a.queue, statusflow.WithTaskRunnerLogger(a.logger, c.cfg.Debug))
	lending.RegisterTasks(runner, a.engine, a.notifier, a.partners, a.notifier)

	scheduler := statusflow.NewScheduler(a.engine, a.roles)
	for _, job := range a.jobs() {
		if err := scheduler.Add(job); err != nil {
			return err
		}
	}

	auth := rest.NewAuthenticator([]byte(c.cfg.JWTSecret), rest.WithIssuer(c.cfg.JWTIssuer))
	opts := []rest.Option{
		rest.WithLogger(a.logger),
		rest.WithDeliveryTTL(c.cfg.WebhookDedupTTL),
		rest.WithOpsHandler(webui.NewHandler("/ops", a.registry, a.store)),
		rest.WithPartnerWorkflows(c.cfg.partnerWorkflows()),
	}
	if c.cfg.Debug {
		opts = append(opts, rest.WithDebugMode())
	}
	srv := rest.NewServer(c.cfg.HTTPAddr, a.engine, auth, opts...)

	metricsSrv := &http.Server{
		Addr:              c.cfg.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runner.Run(ctx)
	defer runner.Stop()

	scheduler.Run(ctx)
	defer scheduler.Stop()

	errc := make(chan error, 2)
	go func() {
		errc <- srv.Start()
	}()
	go func() {
		err := metricsSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
		if err != nil {
			a.logger.Error(ctx, errors.Wrap(err, "server stopped"))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	if stopErr := srv.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}

	return err
}

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a definitions file and print a summary of its workflows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				doc *definition.Document
				err error
			)
			if len(args) == 1 {
				doc, err = definition.ParseFile(args[0])
			} else {
				doc, err = lending.Definition()
			}
			if err != nil {
				return err
			}

			statuses, schemas, err := doc.Build()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d statuses\n", len(statuses.Codes()))
			for _, s := range schemas {
				fmt.Fprintf(out, "%s: %d statuses, %d paths, initial %v, terminal %v\n",
					s.Name(), len(s.Codes()), len(s.Paths()), s.InitialStatuses(), s.TerminalStatuses())
			}

			return nil
		},
	}
}

func (c *cli) diagramCmd() *cobra.Command {
	var (
		workflow  string
		direction string
	)

	cmd := &cobra.Command{
		Use:   "diagram",
		Short: "Print a mermaid state diagram of a workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(c.cfg, lendingConfig())
			if err != nil {
				return err
			}

			schema, err := registry.Schema(workflow)
			if err != nil {
				return err
			}

			return statusflow.MermaidDiagram(schema, cmd.OutOrStdout(), statusflow.MermaidDirection(direction))
		},
	}

	cmd.Flags().StringVar(&workflow, "workflow", lending.WorkflowJuloOne, "workflow to draw")
	cmd.Flags().StringVar(&direction, "direction", string(statusflow.LeftToRightDirection), "mermaid direction: TB, LR, RL or BT")

	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the loaded statuses and workflows as a definitions file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(c.cfg, lendingConfig())
			if err != nil {
				return err
			}

			workflows := registry.Workflows()
			sort.Strings(workflows)

			schemas := make([]*statusflow.Schema, 0, len(workflows))
			for _, w := range workflows {
				s, err := registry.Schema(w)
				if err != nil {
					return err
				}
				schemas = append(schemas, s)
			}

			b, err := definition.FromSchemas(registry.Statuses(), schemas...).Marshal()
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func (c *cli) runJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <name>",
		Short: "Run one batch job now, outside of its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			scheduler := statusflow.NewScheduler(a.engine, a.roles)
			for _, job := range a.jobs() {
				if err := scheduler.Add(job); err != nil {
					return err
				}
			}

			report, err := scheduler.RunJob(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: selected %d, applied %d, skipped %d, failed %d\n",
				report.Job, report.Selected, report.Applied, report.Skipped, report.Failed)
			return nil
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the REST api",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.JWTSecret == "" {
				return errors.New("jwt-secret is required to issue tokens")
			}

			r := statusflow.Role(role)
			if !r.Valid() && r != rest.RolePartner {
				return errors.New("unknown role", j.MKV{"role": role})
			}

			auth := rest.NewAuthenticator([]byte(c.cfg.JWTSecret), rest.WithIssuer(c.cfg.JWTIssuer))
			token, err := auth.Issue(subject, r, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "actor id: a customer id, agent username or partner name")
	cmd.Flags().StringVar(&role, "role", string(statusflow.RoleAgent), "customer, agent, system or partner")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
