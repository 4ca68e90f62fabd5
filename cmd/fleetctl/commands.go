package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/linkfleet/fleetctl"
	"github.com/linkfleet/fleetctl/internal/config"
	"github.com/linkfleet/fleetctl/internal/fleet"
	"github.com/linkfleet/fleetctl/internal/history"
	"github.com/linkfleet/fleetctl/internal/history/factory"
	"github.com/linkfleet/fleetctl/internal/logger"
	"github.com/linkfleet/fleetctl/internal/metrics"
	"github.com/linkfleet/fleetctl/internal/server"
)

type command struct {
	global *GlobalFlags
}

func buildRoot() *cobra.Command {
	global := &GlobalFlags{}
	startFlags := &StartFlags{}
	stopFlags := &StopFlags{}
	logsFlags := &LogsFlags{}
	histFlags := &HistoryFlags{}
	serveFlags := &ServeFlags{}
	c := &command{global: global}

	root := &cobra.Command{
		Use:   "fleetctl",
		Short: "Local microservice fleet supervisor",
		Long: `Fleetctl starts, stops and health-verifies the platform's microservice
fleet on a developer machine: one process per service, pid markers under a
control directory, per-service log files, and Consul registration checks.

Examples:
  fleetctl start                      # start the whole fleet
  fleetctl --env staging start        # against the staging configuration
  fleetctl restart auth_service       # bounce one service
  fleetctl dev order_service          # run one service with auto-reload
  fleetctl status                     # what is actually running`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&global.Env, "env", "e", string(config.Local),
		"environment: local, development, testing, staging, production")
	pf.StringVar(&global.EnvDir, "env-dir", ".", "directory containing .env.<environment> files")
	pf.StringVar(&global.FleetPath, "fleet", "", "optional TOML fleet table overriding the built-in one")
	pf.BoolVarP(&global.Verbose, "verbose", "v", false, "debug logging")

	startCmd := &cobra.Command{
		Use:   "start [service]",
		Short: "Start the fleet (or one service)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(*startFlags, optionalArg(args))
		},
	}
	startCmd.Flags().DurationVar(&startFlags.SettleDelay, "settle", 2*time.Second,
		"wait between launch and the health probe")
	startCmd.Flags().IntVar(&startFlags.RegistrationAttempts, "registry-attempts", 5,
		"registry confirmation poll attempts")
	startCmd.Flags().DurationVar(&startFlags.RegistrationInterval, "registry-interval", 2*time.Second,
		"sleep between registry polls")

	stopCmd := &cobra.Command{
		Use:   "stop [service]",
		Short: "Stop the fleet (or one service) and free its ports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(*stopFlags, optionalArg(args))
		},
	}
	stopCmd.Flags().DurationVar(&stopFlags.Wait, "wait", 3*time.Second,
		"graceful termination window before SIGKILL")

	restartCmd := &cobra.Command{
		Use:   "restart [service]",
		Short: "Stop then start the fleet (or one service)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Restart(*startFlags, optionalArg(args))
		},
	}

	devCmd := &cobra.Command{
		Use:   "dev <service>",
		Short: "Start one service with auto-reload",
		Long: `Start one service using its dev command (uvicorn --reload). File watching
and re-execs belong to the spawned runtime; fleetctl tracks the original pid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Dev(*startFlags, args[0])
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report tracked pids, health and registration for every service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status()
		},
	}

	logsCmd := &cobra.Command{
		Use:   "logs <service>",
		Short: "Print (or follow) one service's log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Logs(*logsFlags, args[0])
		},
	}
	logsCmd.Flags().IntVarP(&logsFlags.Lines, "lines", "n", 100, "number of trailing lines")
	logsCmd.Flags().BoolVarP(&logsFlags.Follow, "follow", "f", false, "keep streaming new output")

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Probe every health endpoint and the registry without touching processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SelfTest()
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history [service]",
		Short: "Show recent lifecycle events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.History(*histFlags, optionalArg(args))
		},
	}
	historyCmd.Flags().IntVarP(&histFlags.Limit, "limit", "n", 20, "events to show")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a read-only HTTP status and metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Serve(*serveFlags)
		},
	}
	serveCmd.Flags().StringVar(&serveFlags.Listen, "listen", "127.0.0.1:8600", "listen address")
	serveCmd.Flags().StringVar(&serveFlags.BasePath, "base-path", "", "path prefix for all endpoints")
	serveCmd.Flags().StringVar(&serveFlags.LogFile, "log-file", "", "rotating log file (stderr when empty)")

	root.AddCommand(startCmd, stopCmd, restartCmd, devCmd, statusCmd, logsCmd, testCmd, historyCmd, serveCmd)
	return root
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// setup resolves the environment, loads configuration, and assembles the
// supervisor. Configuration problems abort before any process action.
func (c *command) setup(sf StartFlags, sw time.Duration) (*fleetctl.Supervisor, *config.Settings, history.Store, error) {
	env, err := config.ParseEnvironment(c.global.Env)
	if err != nil {
		return nil, nil, nil, err
	}
	settings, err := config.Load(env, c.global.EnvDir)
	if err != nil {
		return nil, nil, nil, err
	}

	level := slog.LevelInfo
	if c.global.Verbose {
		level = slog.LevelDebug
	}
	log := logger.NewCLI(level)

	fl := fleet.Default()
	if c.global.FleetPath != "" {
		var warnings []string
		fl, warnings, err = config.LoadFleet(c.global.FleetPath)
		if err != nil {
			return nil, nil, nil, err
		}
		for _, w := range warnings {
			log.Warn(w)
		}
	}

	// History is advisory; a broken store must not block lifecycle work.
	var hist history.Store
	if st, err := factory.NewFromDSN(settings.HistoryDSN); err != nil {
		log.Warn("history store unavailable", "dsn", settings.HistoryDSN, "error", err)
	} else if err := st.EnsureSchema(context.Background()); err != nil {
		log.Warn("history schema", "error", err)
		_ = st.Close()
	} else {
		hist = st
	}

	_ = metrics.Register(prometheus.DefaultRegisterer)

	sup, err := fleetctl.New(fleetctl.Config{
		Fleet:                fl,
		ControlDir:           settings.ControlDir,
		LogDir:               settings.LogDir,
		ConsulAddr:           settings.ConsulAddr,
		Env:                  settings.MergedEnv(),
		Logger:               log,
		History:              hist,
		SettleDelay:          sf.SettleDelay,
		StopWait:             sw,
		RegistrationAttempts: sf.RegistrationAttempts,
		RegistrationInterval: sf.RegistrationInterval,
	})
	if err != nil {
		if hist != nil {
			_ = hist.Close()
		}
		return nil, nil, nil, err
	}
	return sup, settings, hist, nil
}

// signalCtx cancels on operator interrupt so a fleet start in flight can
// run its guaranteed cleanup before the process exits.
func signalCtx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (c *command) Start(f StartFlags, name string) error {
	sup, _, hist, err := c.setup(f, 0)
	if err != nil {
		return err
	}
	defer closeHistory(hist)
	ctx, cancel := signalCtx()
	defer cancel()

	var report fleetctl.Report
	if name == "" {
		report, err = sup.StartAll(ctx)
	} else {
		report, err = sup.StartOne(ctx, name)
	}
	fmt.Print(report.Render())
	if errors.Is(err, context.Canceled) {
		return errors.New("interrupted; fleet stopped")
	}
	return err
}

func (c *command) Stop(f StopFlags, name string) error {
	sup, _, hist, err := c.setup(StartFlags{}, f.Wait)
	if err != nil {
		return err
	}
	defer closeHistory(hist)
	ctx, cancel := signalCtx()
	defer cancel()

	var report fleetctl.Report
	if name == "" {
		report, err = sup.StopAll(ctx)
	} else {
		report, err = sup.StopOne(ctx, name)
	}
	if err != nil {
		return err
	}
	fmt.Printf("stopped %d service(s)\n", len(report.Results))
	return nil
}

func (c *command) Restart(f StartFlags, name string) error {
	sup, _, hist, err := c.setup(f, 0)
	if err != nil {
		return err
	}
	defer closeHistory(hist)
	ctx, cancel := signalCtx()
	defer cancel()

	var report fleetctl.Report
	if name == "" {
		report, err = sup.RestartAll(ctx)
	} else {
		report, err = sup.RestartOne(ctx, name)
	}
	fmt.Print(report.Render())
	if errors.Is(err, context.Canceled) {
		return errors.New("interrupted; fleet stopped")
	}
	return err
}

func (c *command) Dev(f StartFlags, name string) error {
	sup, _, hist, err := c.setup(f, 0)
	if err != nil {
		return err
	}
	defer closeHistory(hist)
	ctx, cancel := signalCtx()
	defer cancel()

	report, err := sup.Dev(ctx, name)
	fmt.Print(report.Render())
	if err != nil {
		return err
	}
	fmt.Printf("tail the reload output with: fleetctl logs %s -f\n", name)
	return nil
}

func (c *command) Status() error {
	sup, _, hist, err := c.setup(StartFlags{}, 0)
	if err != nil {
		return err
	}
	defer closeHistory(hist)
	ctx, cancel := signalCtx()
	defer cancel()

	fmt.Print(sup.Status(ctx).Render())
	return nil
}

func (c *command) SelfTest() error {
	sup, _, hist, err := c.setup(StartFlags{}, 0)
	if err != nil {
		return err
	}
	defer closeHistory(hist)
	ctx, cancel := signalCtx()
	defer cancel()

	report := sup.SelfTest(ctx)
	fmt.Print(report.Render())
	fmt.Printf("health: %d/%d reachable\n", report.Ready(), len(report.Results))
	return nil
}

func (c *command) Logs(f LogsFlags, name string) error {
	sup, _, hist, err := c.setup(StartFlags{}, 0)
	if err != nil {
		return err
	}
	defer closeHistory(hist)
	if _, err := sup.Lookup(name); err != nil {
		return err
	}
	path := sup.LogPath(name)
	if err := printTail(os.Stdout, path, f.Lines); err != nil {
		return err
	}
	if !f.Follow {
		return nil
	}
	ctx, cancel := signalCtx()
	defer cancel()
	return followFile(ctx, os.Stdout, path)
}

func (c *command) History(f HistoryFlags, name string) error {
	sup, _, hist, err := c.setup(StartFlags{}, 0)
	if err != nil {
		return err
	}
	defer closeHistory(hist)
	if name != "" {
		if _, err := sup.Lookup(name); err != nil {
			return err
		}
	}
	if hist == nil {
		return errors.New("history store unavailable")
	}
	events, err := hist.Recent(context.Background(), name, f.Limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no recorded events")
		return nil
	}
	for _, e := range events {
		line := fmt.Sprintf("%s  %-24s %-14s pid=%d",
			e.OccurredAt.Local().Format(time.RFC3339), e.Service, e.Kind, e.PID)
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Println(line)
	}
	return nil
}

func (c *command) Serve(f ServeFlags) error {
	sup, _, hist, err := c.setup(StartFlags{}, 0)
	if err != nil {
		return err
	}
	defer closeHistory(hist)

	log := logger.NewCLI(slog.LevelInfo)
	if f.LogFile != "" {
		w, err := logger.FileConfig{Path: f.LogFile}.Writer()
		if err != nil {
			return err
		}
		defer func() { _ = w.Close() }()
		log = logger.NewDaemon(w, slog.LevelInfo)
	}

	srv := server.NewServer(f.Listen, f.BasePath, sup.Orchestrator())
	log.Info("status server listening", "addr", f.Listen)

	ctx, cancel := signalCtx()
	defer cancel()
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func closeHistory(h history.Store) {
	if h != nil {
		_ = h.Close()
	}
}

// printTail writes the last n lines of path to w. A missing log file just
// means the service never ran here.
func printTail(w io.Writer, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			_, _ = fmt.Fprintf(w, "no log file at %s\n", path)
			return nil
		}
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(w, line)
	}
	return nil
}

// followFile streams appended data until ctx is cancelled. Plain polling:
// the log is an append-only local file and half a second of latency is fine
// for an operator tail.
func followFile(ctx context.Context, w io.Writer, path string) error {
	f, err := os.Open(path) // #nosec G304 -- path derives from the fleet table
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, err := f.Read(buf)
		if n > 0 {
			_, _ = w.Write(buf[:n])
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(500 * time.Millisecond):
		}
	}
}
