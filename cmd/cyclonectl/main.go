package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/cyclone/pkg/app"
	"github.com/cuemby/cyclone/pkg/log"
	"github.com/cuemby/cyclone/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cyclonectl",
	Short: "Cyclone - deterministic periodic computation engine",
	Long: `Cyclone hosts configuration-driven pipelines of computation functions
on named real-time states, moving signal memory between functions and
data sources through planned broker copy lists.

cyclonectl validates configurations and runs the engine with the
built-in memory data source and demo function classes.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Cyclone version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var configureCmd = &cobra.Command{
	Use:   "configure [config.yaml]",
	Short: "Validate a configuration without starting the engine",
	Long: `Parse the configuration tree, instantiate every declared function and
data source, and load the declared states and state machine. Exits 0 if
that succeeds. Broker planning and its checks run when a state is
prepared (by run), not here. With no argument the built-in demo
configuration is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		a, err := buildApplication(path)
		if err != nil {
			return err
		}
		if err := a.Configure(); err != nil {
			return err
		}
		fmt.Println("Configuration OK")
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [config.yaml]",
	Short: "Configure and run the engine",
	Long: `Configure the engine, prepare and start the first declared state (or
--state), and run until --for elapses or an interrupt arrives. --fire
sends a state machine event after --fire-after, exercising the
message-driven transition path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		state, _ := cmd.Flags().GetString("state")
		runFor, _ := cmd.Flags().GetDuration("for")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		fireEvent, _ := cmd.Flags().GetString("fire")
		fireAfter, _ := cmd.Flags().GetDuration("fire-after")

		a, err := buildApplication(path)
		if err != nil {
			return err
		}
		if err := a.Configure(); err != nil {
			return err
		}
		if err := a.Start(state); err != nil {
			return err
		}
		defer a.Stop()

		if metricsAddr != "" {
			metricsLog := log.WithComponent("metrics")
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					metricsLog.Error().Err(err).Msg("metrics endpoint failed")
				}
			}()
			metricsLog.Info().Str("addr", metricsAddr).Msg("serving metrics")
		}

		var fireTimer <-chan time.Time
		if fireEvent != "" {
			fireTimer = time.After(fireAfter)
		}
		var deadline <-chan time.Time
		if runFor > 0 {
			deadline = time.After(runFor)
		}
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case <-fireTimer:
				fireTimer = nil
				reply, err := a.Send(app.MachineDestination, fireEvent, nil, true, 5*time.Second)
				appLog := log.WithComponent("app")
				if err != nil {
					appLog.Error().Err(err).Str("event", fireEvent).Msg("event send failed")
				} else if !reply.Success {
					appLog.Error().Str("event", fireEvent).Msg("event rejected")
				}
			case <-deadline:
				printStatus(a.Status())
				return nil
			case <-interrupt:
				printStatus(a.Status())
				return nil
			}
		}
	},
}

func init() {
	runCmd.Flags().String("state", "", "State to start in (default: first declared state)")
	runCmd.Flags().Duration("for", 0, "Run duration (0 runs until interrupted)")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().String("fire", "", "State machine event to fire while running")
	runCmd.Flags().Duration("fire-after", time.Second, "Delay before firing --fire")
}

func printStatus(st app.Status) {
	fmt.Printf("State: %s\n", st.CurrentState)
	if st.MachineState != "" {
		fmt.Printf("State machine: %s\n", st.MachineState)
	}
	if st.TimingDataSource != "" {
		fmt.Printf("Timing data source: %s\n", st.TimingDataSource)
	}
	for _, th := range st.Threads {
		fmt.Printf("  thread %-12s cycles=%d\n", th.Name, th.Cycles)
	}
}
