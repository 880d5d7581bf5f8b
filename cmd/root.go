// SPDX-License-Identifier: GPL-2.0-or-later

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chrislenderman/nabuadapter/internal/eventbus"
	"github.com/chrislenderman/nabuadapter/internal/fetch"
	"github.com/chrislenderman/nabuadapter/internal/nabu"
	"github.com/chrislenderman/nabuadapter/internal/serial"
	"github.com/chrislenderman/nabuadapter/internal/stats"
)

const (
	defaultCycleDir = "cycle"
	defaultHTTPBase = "nabu.retrotechchris.com/cycle2"
)

var (
	flagCycleDir      string
	flagHTTPBase      string
	flagMonitorListen string
)

var rootCmd = &cobra.Command{
	Use:   "nabuadapter <com_port> [cycle_path] [http_host_and_path]",
	Short: "NABU Network Adapter emulator",
	Long: `nabuadapter emulates the serial-attached NABU Network Adapter: it
answers channel-configuration and file-request commands over a serial
link, serving packets from a local cycle directory or an HTTP origin
on cache miss.

com_port selects the serial device (1-4, mapped to /dev/ttyS0 through
/dev/ttyS3, or a raw device path). When omitted, cycle_path defaults to
the local directory "cycle" and http_host_and_path to this project's
usual cycle mirror.`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runAdapter,
}

func init() {
	rootCmd.Flags().StringVar(&flagCycleDir, "cycle-dir", "", "override cycle_path")
	rootCmd.Flags().StringVar(&flagHTTPBase, "http-base", "", "override http_host_and_path")
	rootCmd.Flags().StringVar(&flagMonitorListen, "monitor-listen", "", "address to serve the live-monitor WebSocket feed on (e.g. :8089)")
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

// Execute runs the root command. Argument errors are reported to stderr
// and swallowed here rather than propagated, matching spec §6/§7's
// ArgumentError policy of exit code 0 with usage printed.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		if isArgumentError(err) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, rootCmd.UsageString())
			return nil
		}
		return err
	}
	return nil
}

func isArgumentError(err error) bool {
	// cobra's own args-count/flag-parse failures surface here; anything
	// that escapes RunE itself is treated as fatal and returned as-is.
	return strings.Contains(err.Error(), "arg(s)") ||
		strings.Contains(err.Error(), "unknown flag") ||
		strings.Contains(err.Error(), "unknown shorthand flag") ||
		strings.Contains(err.Error(), "invalid argument")
}

func runAdapter(cmd *cobra.Command, args []string) error {
	comPort := resolveComPort(args[0])

	cycleDir := defaultCycleDir
	if len(args) > 1 {
		cycleDir = args[1]
	}
	if flagCycleDir != "" {
		cycleDir = flagCycleDir
	}
	cycleDir = ensureTrailingSeparator(cycleDir)

	httpBase := defaultHTTPBase
	if len(args) > 2 {
		httpBase = args[2]
	}
	if flagHTTPBase != "" {
		httpBase = flagHTTPBase
	}
	httpBase = strings.TrimSuffix(httpBase, "/")

	if err := os.MkdirAll(cycleDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "nabuadapter: cannot create cycle directory %s: %v\n", cycleDir, err)
		return nil
	}

	port, err := serial.Open(comPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nabuadapter: cannot open serial port %s: %v\n", comPort, err)
		return nil
	}
	defer port.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	bus := eventbus.New()
	collector := stats.NewCollector()
	statsCh, statsUnsub := bus.Subscribe()
	go collector.Run(statsCh)
	defer statsUnsub()

	if flagMonitorListen != "" {
		server := eventbus.NewServer(bus)
		mux := http.NewServeMux()
		mux.Handle("/events", server.Handler())
		httpSrv := &http.Server{Addr: flagMonitorListen, Handler: mux}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "nabuadapter: monitor listener: %v\n", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpSrv.Close()
		}()
	}

	client := fetch.NewClient()
	store := nabu.NewStore(cycleDir, httpBase, client)
	writer := &countingWriter{w: port, collector: collector}
	dispatcher := nabu.NewDispatcher(writer, store, os.Stdout, bus)

	fmt.Fprintf(os.Stdout, "NABU Network Adapter listening on %s (cycle=%s, http=%s)\r\n", port.Name(), cycleDir, httpBase)

	runLoop(ctx, port, dispatcher)

	fmt.Fprint(os.Stdout, collector.Snapshot().String())
	return nil
}

func runLoop(ctx context.Context, port *serial.Port, dispatcher *nabu.Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b, ok, err := port.ReadByte()
		if err != nil {
			fmt.Fprintf(os.Stderr, "nabuadapter: serial read error: %v\n", err)
			return
		}
		if !ok {
			continue
		}
		if err := dispatcher.Step(ctx, b); err != nil {
			fmt.Fprintf(os.Stderr, "nabuadapter: write error: %v\n", err)
			return
		}
	}
}

// resolveComPort maps the DOS-convention com_port argument (1-4) onto a
// platform serial device path; any other value is treated as an
// already-concrete device path and passed through unchanged.
func resolveComPort(arg string) string {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > 4 {
		return arg
	}
	if path, ok := comPortPaths[n]; ok {
		return path
	}
	return arg
}

var comPortPaths = map[int]string{
	1: "/dev/ttyS0",
	2: "/dev/ttyS1",
	3: "/dev/ttyS2",
	4: "/dev/ttyS3",
}

func ensureTrailingSeparator(path string) string {
	if strings.HasSuffix(path, string(filepath.Separator)) {
		return path
	}
	return path + string(filepath.Separator)
}

// countingWriter feeds every byte written to the serial link into a
// stats.Collector, since byte counts aren't carried on nabu.Event itself.
type countingWriter struct {
	w         *serial.Port
	collector *stats.Collector
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.collector.ObserveBytes(n)
	return n, err
}
