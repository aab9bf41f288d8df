// Package monitor implements `traceectl monitor`: attach to a running
// process and stream its state changes as JSON lines, for consumption by a
// higher-level debugger frontend.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/debugshim/traceectl/pkg/procutil"
	"github.com/debugshim/traceectl/pkg/ptracer"
	"github.com/debugshim/traceectl/pkg/session"
	"github.com/debugshim/traceectl/pkg/tracee"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func Example() string {
	return `  # Stream state changes of pid 1234 (Ctrl-C interrupts it, twice detaches)
  traceectl monitor 1234

  # Verify that the process can be stopped and resumed
  traceectl monitor --interrupt 1234`
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "monitor PID",
		Short:                 "Attach to a process and stream its state changes",
		Example:               Example(),
		Args:                  cobra.ExactArgs(1),
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}
	flags := cmd.Flags()
	flags.Bool("interrupt", false, "interrupt the process right after attaching, then resume it")
	return cmd
}

// event is the JSON wire form of a tracee.Event.
type event struct {
	Event    string `json:"event"`
	Reason   string `json:"reason,omitempty"`
	Signal   string `json:"signal,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
}

func wireEvent(ev tracee.Event) event {
	w := event{Event: ev.Kind.String()}
	switch ev.Kind {
	case tracee.EventStopped:
		w.Reason = ev.Reason.String()
		w.Signal = unix.SignalName(ev.Signal)
	case tracee.EventSignaled:
		w.Signal = unix.SignalName(ev.Signal)
	case tracee.EventExited:
		w.ExitCode = &ev.ExitCode
	}
	return w
}

func action(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid pid %q: %w", args[0], err)
	}
	if !procutil.Alive(pid) {
		return fmt.Errorf("%w: %d", tracee.ErrNoSuchProcess, pid)
	}
	flagInterrupt, err := cmd.Flags().GetBool("interrupt")
	if err != nil {
		return err
	}

	s, err := session.New(pid, ptracer.New())
	if err != nil {
		return err
	}
	defer s.Close()
	slog.Info("attached", "pid", pid)

	if flagInterrupt {
		if err := s.Interrupt(); err != nil {
			return err
		}
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigCh)

	enc := json.NewEncoder(cmd.OutOrStdout())
	interrupted := false
	for {
		select {
		case sig := <-sigCh:
			if sig == unix.SIGINT && !interrupted {
				interrupted = true
				slog.Info("interrupting (press Ctrl-C again to detach)", "pid", pid)
				if err := s.Interrupt(); err != nil {
					slog.Warn("failed to interrupt", "pid", pid, "error", err)
				}
				continue
			}
			slog.Info("detaching", "pid", pid)
			return s.Detach()
		case ev, ok := <-s.Events():
			if !ok {
				return s.Err()
			}
			if err := enc.Encode(wireEvent(ev)); err != nil {
				return err
			}
			if flagInterrupt && ev.Kind == tracee.EventStopped && ev.Reason == tracee.StopInterrupt {
				if err := s.Resume(0); err != nil {
					return err
				}
			}
		}
	}
}
