// Command hubriskernel is a hosted simulator harness for the kernel: it
// builds a small fixture application descriptor, boots it, and drives a
// handful of trap scenarios to completion while draining the kernel's
// ring-buffer trace into structured logs. It stands in for a real
// board's boot ROM + reset handler, which this rework has no hardware to
// target.
package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/oxidecomputer/hubriskern/pkg/appdesc"
	"github.com/oxidecomputer/hubriskern/pkg/fixture"
	"github.com/oxidecomputer/hubriskern/pkg/ringbuf"
	"github.com/oxidecomputer/hubriskern/pkg/startup"
	"github.com/oxidecomputer/hubriskern/pkg/trapentry"
)

// config is the harness's CLI-configurable surface. The kernel itself
// takes no runtime configuration -- only which fixture app to boot and
// how chatty to be are ours to choose here.
type config struct {
	app      string
	verbose  bool
	memBytes int
}

func parseFlags() config {
	var c config
	pflag.StringVar(&c.app, "app", "ping-demo", "fixture application to boot (ping-demo, fault-demo)")
	pflag.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug-level logging")
	pflag.IntVar(&c.memBytes, "mem", startup.DefaultMemSize, "simulated physical memory size in bytes")
	pflag.Parse()
	return c
}

func main() {
	cfg := parseFlags()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	if cfg.verbose {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	log.Logger = logger

	var desc *appdesc.Descriptor
	switch cfg.app {
	case "ping-demo":
		desc = fixture.PingApp()
	case "fault-demo":
		desc = fixture.FaultApp()
	default:
		log.Fatal().Str("app", cfg.app).Msg("unknown fixture application")
	}

	log.Info().Str("app", cfg.app).Int("tasks", len(desc.Tasks)).Msg("booting")
	m := startup.BootWithMemSize(desc, cfg.memBytes)

	stop := installSignalHandler(m)
	defer signal.Stop(stop)

	runScenario(m, cfg.app)
	drainTrace(m)
}

// installSignalHandler arranges for SIGINT/SIGTERM to drain the trace
// buffer before the process exits, so a harness run interrupted
// mid-scenario (e.g. someone Ctrl-C'ing a long fixture) still surfaces
// whatever the kernel recorded up to that point, the same courtesy a
// real board's supervisor owes a developer watching over a debug UART.
func installSignalHandler(m *trapentry.Machine) chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)
	go func() {
		sig, ok := <-ch
		if !ok {
			return
		}
		log.Warn().Stringer("signal", sig).Msg("interrupted, draining trace before exit")
		drainTrace(m)
		os.Exit(130)
	}()
	return ch
}

// runScenario drives a handful of representative traps for the selected
// fixture, end to end. This is a demonstration harness, not a test
// runner -- pkg/... _test.go files carry the real assertions.
func runScenario(m *trapentry.Machine, app string) {
	switch app {
	case "ping-demo":
		fixture.RunPingScenario(m)
	case "fault-demo":
		fixture.RunFaultScenario(m)
	}
}

// drainTrace copies the kernel's ring buffer out and logs each entry,
// the harness-side half of the split between allocation-free kernel
// tracing and a real logging sink.
func drainTrace(m *trapentry.Machine) {
	for _, e := range m.Tasks.Trace.Snapshot() {
		log.Debug().
			Str("kind", traceKindName(e.Kind)).
			Int32("task", e.Task).
			Uint32("payload", e.Payload).
			Msg("trace")
	}
}

func traceKindName(k ringbuf.Kind) string {
	switch k {
	case ringbuf.KindContextSwitch:
		return "context_switch"
	case ringbuf.KindSyscallEnter:
		return "syscall_enter"
	case ringbuf.KindSyscallExit:
		return "syscall_exit"
	case ringbuf.KindIsrEnter:
		return "isr_enter"
	case ringbuf.KindIsrExit:
		return "isr_exit"
	case ringbuf.KindTimerIsr:
		return "timer_isr"
	case ringbuf.KindFault:
		return "fault"
	case ringbuf.KindNotify:
		return "notify"
	default:
		return "unknown"
	}
}
