// Command usbpowerd supervises USB devices attached through programmable
// power-switching hubs, pinging each one and power-cycling its port when it
// stops answering.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usbpower/internal/backend"
	"github.com/ardnew/usbpower/internal/config"
	"github.com/ardnew/usbpower/internal/lockfile"
	"github.com/ardnew/usbpower/internal/supervisor"
	"github.com/ardnew/usbpower/internal/topology"
	"github.com/ardnew/usbpower/internal/usbhost/linux"
	"github.com/ardnew/usbpower/pkg"
	"github.com/ardnew/usbpower/pkg/linux/usbid"
)

const componentMain pkg.Component = "main"

const defaultLockPath = "/var/run/usbpowerd.pid"

var (
	logPath  = flag.String("o", "", "redirect log output to this file, truncating it")
	confPath = flag.String("c", "", "path to the handler configuration file")
	detach   = flag.Bool("d", false, "detach from the controlling terminal after initialization")
	verbose  = flag.Bool("v", false, "enable debug-level logging")
	jsonLog  = flag.Bool("json", false, "emit log lines as JSON")
)

func main() {
	flag.Parse()

	if *verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}
	if *jsonLog {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "usbpowerd: opening log file: %v\n", err)
			os.Exit(1)
		}
		opts := &slog.HandlerOptions{Level: slog.LevelInfo}
		if *verbose {
			opts.Level = slog.LevelDebug
		}
		if *jsonLog {
			pkg.SetLogger(pkg.NewJSONLogger(f, opts))
		} else {
			pkg.SetLogger(pkg.NewLogger(f, opts))
		}
	}

	lock, err := lockfile.Acquire(defaultLockPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usbpowerd: %v\n", err)
		os.Exit(1)
	}
	defer lock.Release()

	var cfg *config.Config
	if *confPath != "" {
		cfg, err = config.Load(*confPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "usbpowerd: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = &config.Config{}
	}

	if *detach {
		detachProcess()
	}

	src, err := linux.NewSource()
	if err != nil {
		pkg.LogError(componentMain, "opening USB event source failed", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	reg := topology.NewRegistry()
	backends := map[topology.BackendKind]backend.Switcher{
		topology.BackendYKUSH: backend.NewYKUSH(src),
		topology.BackendGPIO:  backend.NewGPIO(cfg.GPIOPortMap()),
	}

	usbIDs := usbid.New()
	usbIDs.Load()

	engine := supervisor.NewEngine(reg, src, backends)
	engine.Annotate = usbIDs.Annotate
	if err := engine.AddStaticGPIOPorts(cfg.GPIOPortMap()); err != nil {
		pkg.LogError(componentMain, "invalid GPIO port configuration", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	go func() {
		for range sigCh {
			pkg.LogInfo(componentMain, "forced reset sweep requested")
			engine.RequestForceReset()
		}
	}()

	pkg.LogInfo(componentMain, "started")

	ctx := context.Background()
	for {
		if err := engine.Tick(ctx); err != nil {
			pkg.LogError(componentMain, "event loop tick failed", "error", err)
		}
	}
}

// detachProcess detaches the current, already-running process from its
// controlling terminal in place: it redirects the standard streams to
// /dev/null and starts a new session so a later terminal hangup cannot
// reach this process. True daemonization (re-exec, double-fork, PID-file
// handoff to a grandchild) is out of scope for this supervisor beyond the
// -d flag; a failure partway through is logged and otherwise ignored
// rather than treated as a startup error, since the process is already
// past lock acquisition and configuration loading by the time this runs.
func detachProcess() {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		pkg.LogWarn(componentMain, "detach: opening /dev/null failed", "error", err)
		return
	}
	defer devNull.Close()

	fd := int(devNull.Fd())
	for _, std := range []int{syscall.Stdin, syscall.Stdout, syscall.Stderr} {
		if err := unix.Dup2(fd, std); err != nil {
			pkg.LogWarn(componentMain, "detach: redirecting standard stream failed", "fd", std, "error", err)
		}
	}

	if _, err := unix.Setsid(); err != nil {
		pkg.LogWarn(componentMain, "detach: setsid failed", "error", err)
		return
	}
	pkg.LogInfo(componentMain, "detached")
}
