package cmd

import (
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/fatih/structs"
	"github.com/sarchlab/pagingsim/datarecording"
	"github.com/sarchlab/pagingsim/kernel"
	"github.com/sarchlab/pagingsim/monitoring"
	"github.com/sarchlab/pagingsim/sim/hooking"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a synthetic workload and print the paging statistics.",
	Long: `Run starts a number of processes, each with its own code, data and ` +
		`stack pages, and shares the processors among them in round-robin ` +
		`order. Every process checks that it loads back what it stored. ` +
		`Flags that are not given are read from the environment or from ` +
		`the .env file.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()

		envFile, _ := flags.GetString("env-file")

		err := loadEnv(flags, envFile)
		if err != nil {
			return err
		}

		cfg, err := configFromFlags(flags)
		if err != nil {
			return err
		}

		opts := runOptions{}
		opts.monitor, _ = flags.GetBool("monitor")
		opts.port, _ = flags.GetInt("port")
		opts.openBrowser, _ = flags.GetBool("open-browser")
		opts.record, _ = flags.GetBool("record")
		opts.recordPath, _ = flags.GetString("record-path")
		opts.verbose, _ = flags.GetBool("verbose")

		return run(cmd, cfg, opts)
	},
}

type runOptions struct {
	monitor     bool
	port        int
	openBrowser bool
	record      bool
	recordPath  string
	verbose     bool
}

func init() {
	rootCmd.AddCommand(runCmd)

	addConfigFlags(runCmd.Flags())
	runCmd.Flags().String("env-file", ".env", "file to read the environment from")
	runCmd.Flags().Bool("monitor", false, "serve the state of the machine over HTTP")
	runCmd.Flags().Int("port", 0, "port of the monitoring server")
	runCmd.Flags().Bool("open-browser", false, "open the monitor in a browser")
	runCmd.Flags().Bool("record", false, "record every paging event in SQLite")
	runCmd.Flags().String("record-path", "",
		"database to record into, without the .sqlite3 suffix")
	runCmd.Flags().BoolP("verbose", "v", false, "log every paging event")
}

func run(cmd *cobra.Command, cfg Config, opts runOptions) error {
	k, err := cfg.kernelBuilder().Build("Kernel")
	if err != nil {
		return err
	}

	defer func() {
		err := k.Shutdown()
		if err != nil {
			log.Printf("shutting down: %v", err)
		}
	}()

	if opts.verbose {
		k.AcceptHook(hooking.NewLogHook(log.New(os.Stderr, "", 0)))
	}

	var monitor *monitoring.Monitor
	if opts.monitor {
		monitor = monitoring.NewMonitor().WithPortNumber(opts.port)
		monitor.RegisterKernel(k)

		url := monitor.StartServer()
		if opts.openBrowser {
			monitor.OpenBrowser(url)
		}
	}

	var exec *datarecording.ExecRecorder
	if opts.record {
		recorder := datarecording.New(opts.recordPath)
		defer recorder.Close()

		k.AcceptHook(datarecording.NewPagingRecorder(recorder))
		exec = startExecRecorder(recorder, cfg)
	}

	result, err := runWorkload(cfg, k, monitor)
	if err != nil {
		return err
	}

	if exec != nil {
		exec.Set("Kernel ID", k.ID())
		exec.End()
	}

	printSummary(cmd, k, result)

	err = k.CheckInvariants()
	if err != nil {
		return err
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("%d processes were killed", result.Killed)
	}

	return nil
}

func startExecRecorder(
	recorder datarecording.DataRecorder,
	cfg Config,
) *datarecording.ExecRecorder {
	exec := datarecording.NewExecRecorder(recorder)
	exec.Start()

	fields := structs.Map(cfg)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		exec.Set(name, fmt.Sprint(fields[name]))
	}

	return exec
}

func printSummary(cmd *cobra.Command, k *kernel.Kernel, r WorkloadResult) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Processes: %d completed, %d killed\n",
		r.Completed, r.Killed)

	for _, err := range r.Errors {
		fmt.Fprintf(out, "  %v\n", err)
	}

	fmt.Fprintln(out, k.Stats().Snapshot())
}
