//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/coreration/pkg/enforce"
	"github.com/ja7ad/coreration/pkg/monitor"
	"github.com/ja7ad/coreration/pkg/profile"
	"github.com/ja7ad/coreration/pkg/system/cgroup"
	"github.com/ja7ad/coreration/pkg/system/proc"
)

type opts struct {
	configPath string
	logLevel   string
	noColor    bool

	// enforcement
	dryRun  bool
	workers int

	// monitor
	interval     time.Duration
	revertOnExit bool
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "coreration",
		Short: "Pin processes to CPU cores and priorities by profile",
		Long: `coreration assigns CPU core affinity and scheduling priority to running
processes according to profiles, and can keep enforcing them on processes
started later.

A profile maps process names (case-insensitive) to a core list such as
"0-3,8" and a priority (Idle, BelowNormal, Normal, AboveNormal, High,
Realtime). Processes no rule matches get the profile's OtherCores.

Settings are read from --config, or from default.crs next to the binary,
or from <user config dir>/CoreRation/default.crs.

Examples:
  coreration list
  coreration check Gaming
  coreration apply Gaming --dry-run
  coreration monitor Gaming --interval 500ms
  coreration revert`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger(o.logLevel)
		},
	}

	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "settings file (default: default.crs lookup)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&o.noColor, "no-color", false, "disable colors")

	root.AddCommand(
		listCmd(&o),
		checkCmd(&o),
		applyCmd(&o),
		monitorCmd(&o),
		revertCmd(&o),
		infoCmd(&o),
	)

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func setupLogger(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
	return nil
}

func listCmd(o *opts) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the profiles of the settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, path, err := loadSettings(o.configPath)
			if err != nil {
				return err
			}
			printProfiles(cmd.OutOrStdout(), path, f, !o.noColor)
			return nil
		},
	}
}

func checkCmd(o *opts) *cobra.Command {
	return &cobra.Command{
		Use:   "check <profile>",
		Short: "Compile a profile and show the resulting rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := findProfile(o.configPath, args[0])
			if err != nil {
				return err
			}
			numCores := proc.NumCores()
			c, err := profile.Compile(raw, numCores)
			if err != nil {
				return err
			}
			warnOutsideCpuset(c, numCores)
			printCompiled(cmd.OutOrStdout(), c, !o.noColor)
			return nil
		},
	}
}

func applyCmd(o *opts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <profile>",
		Short: "Apply a profile once to every running process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := findProfile(o.configPath, args[0])
			if err != nil {
				return err
			}
			numCores := proc.NumCores()
			c, err := profile.Compile(raw, numCores)
			if err != nil {
				return err
			}
			warnPrivileges()
			warnOutsideCpuset(c, numCores)

			a := enforce.New(&enforce.Options{Workers: o.workers, DryRun: o.dryRun})
			if err := a.ApplyAll(cmd.Context(), c, proc.NewLister()); err != nil {
				return err
			}
			slog.Info("profile applied", "profile", c.Name(), "rules", c.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "log what would change without changing it")
	cmd.Flags().IntVarP(&o.workers, "workers", "w", 1, "processes handled concurrently")
	return cmd
}

func monitorCmd(o *opts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor <profile>",
		Short: "Apply a profile to every new process until interrupted",
		Long: `monitor applies the profile to all running processes, then polls for
processes started since the previous poll and applies the profile to those
only. Processes already seen are never touched again, so later manual
changes to them are kept.

On SIGINT/SIGTERM the monitor stops and, unless --revert-on-exit=false,
every process gets all cores back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := findProfile(o.configPath, args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("interval") {
				if o.interval <= 0 {
					return fmt.Errorf("--interval must be positive, got %s", o.interval)
				}
				raw.IntervalMS = int(o.interval / time.Millisecond)
				if raw.IntervalMS == 0 {
					raw.IntervalMS = 1
				}
			}
			return runMonitor(cmd.Context(), o, raw)
		},
	}
	cmd.Flags().DurationVarP(&o.interval, "interval", "i", profile.DefaultInterval, "polling interval (overrides the profile's Interval)")
	cmd.Flags().BoolVar(&o.revertOnExit, "revert-on-exit", true, "give every process all cores back when stopping")
	cmd.Flags().IntVarP(&o.workers, "workers", "w", 1, "processes handled concurrently per tick")
	return cmd
}

func runMonitor(ctx context.Context, o *opts, raw profile.Raw) error {
	warnPrivileges()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	numCores := proc.NumCores()
	lister := proc.NewLister()
	a := enforce.New(&enforce.Options{Workers: o.workers})
	m := monitor.New(lister, a, nil)

	if err := m.Start(ctx, raw, numCores); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("interrupted")
	m.Stop()

	if !o.revertOnExit {
		return nil
	}
	// the signal context is done; revert under a fresh one
	if err := a.RevertAll(context.WithoutCancel(ctx), lister, numCores); err != nil {
		return fmt.Errorf("revert: %w", err)
	}
	slog.Info("affinity reverted", "cores", numCores)
	return nil
}

func revertCmd(o *opts) *cobra.Command {
	return &cobra.Command{
		Use:   "revert",
		Short: "Give every running process all cores back",
		Long: `revert resets the affinity of every running process to all cores.
Priorities are left as they are: the previous priority of a process
cannot be recovered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			warnPrivileges()
			numCores := proc.NumCores()
			if err := enforce.New(nil).RevertAll(cmd.Context(), proc.NewLister(), numCores); err != nil {
				return err
			}
			slog.Info("affinity reverted", "cores", numCores)
			return nil
		},
	}
}

func infoCmd(o *opts) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the host's cores, cgroup mode and cpuset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			numCores := proc.NumCores()
			ver, detail, err := cgroup.Detect()
			if err != nil {
				slog.Warn("cgroup detect", "err", err)
			}
			cpuset, ok, err := cgroup.EffectiveCPUs(ver, numCores)
			if err != nil {
				slog.Warn("cpuset", "err", err)
			}
			host, _ := os.Hostname()
			printInfo(cmd.OutOrStdout(), hostInfo{
				Host:     host,
				Cores:    numCores,
				Cgroup:   ver,
				Detail:   detail,
				Cpuset:   cpuset,
				HasSet:   ok,
				Root:     os.Geteuid() == 0,
				Settings: strings.Join(profile.DefaultPaths(), ", "),
			}, !o.noColor)
			return nil
		},
	}
}

func loadSettings(path string) (*profile.File, string, error) {
	if path != "" {
		f, err := profile.Load(path)
		return f, path, err
	}
	f, found, err := profile.LoadDefault()
	if err != nil {
		return nil, found, err
	}
	if found == "" {
		return nil, "", fmt.Errorf("no settings file found (looked in %s)", strings.Join(profile.DefaultPaths(), ", "))
	}
	return f, found, nil
}

func findProfile(path, name string) (profile.Raw, error) {
	f, _, err := loadSettings(path)
	if err != nil {
		return profile.Raw{}, err
	}
	return f.Find(name)
}

func warnPrivileges() {
	if os.Geteuid() != 0 {
		slog.Warn("not running as root; processes of other users will be skipped")
	}
}

// warnOutsideCpuset flags profiles that name cores the kernel will refuse
// because this process is confined to a smaller cpuset.
func warnOutsideCpuset(c *profile.Compiled, numCores int) {
	ver, _, err := cgroup.Detect()
	if err != nil || ver == cgroup.Unsupported {
		return
	}
	cpuset, ok, err := cgroup.EffectiveCPUs(ver, numCores)
	if err != nil || !ok {
		return
	}
	if m, ok := c.Default(); ok && !cpuset.Contains(m) {
		slog.Warn("other cores outside cpuset", "cores", m.String(), "cpuset", cpuset.String())
	}
	for _, r := range c.Rules() {
		if m, ok := r.Affinity(); ok && !cpuset.Contains(m) {
			slog.Warn("process cores outside cpuset", "process", r.Name(), "cores", m.String(), "cpuset", cpuset.String())
		}
	}
}
