//go:build linux

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/ja7ad/coreration/pkg/mask"
	"github.com/ja7ad/coreration/pkg/profile"
	"github.com/ja7ad/coreration/pkg/system/cgroup"
)

var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#3B82F6") // Blue
	colorMuted     = lipgloss.Color("#6B7280") // Gray

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorSecondary).TabWidth(lipgloss.NoTabConversion)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
)

// paint renders s with style when colors are on.
func paint(style lipgloss.Style, s string, color bool) string {
	if !color {
		return s
	}
	return style.Render(s)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printProfiles(w io.Writer, path string, f *profile.File, color bool) {
	fmt.Fprintln(w, paint(titleStyle, "Profiles", color), paint(mutedStyle, "("+path+")", color))
	if len(f.Profiles) == 0 {
		fmt.Fprintln(w, paint(mutedStyle, "  none", color))
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, paint(headerStyle, "NAME\tOTHER CORES\tRULES\tINTERVAL", color))
	for _, p := range f.Profiles {
		interval := "default"
		if d, err := p.Interval(); err == nil && p.IntervalMS != 0 {
			interval = d.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.Name, orDash(p.OtherCores), len(p.Processes), interval)
	}
	tw.Flush()
}

func printCompiled(w io.Writer, c *profile.Compiled, color bool) {
	fmt.Fprintln(w, paint(titleStyle, "Profile "+c.Name(), color),
		paint(mutedStyle, fmt.Sprintf("(%d cores)", c.NumCores()), color))

	def, ok := c.Default()
	fmt.Fprintf(w, "other processes: %s\n\n", describeMask(def, ok))

	tw := newTable(w)
	fmt.Fprintln(tw, paint(headerStyle, "PROCESS\tCORES\tMASK\tPRIORITY", color))
	for _, r := range c.Rules() {
		m, hasMask := r.Affinity()
		prio := "unchanged"
		if cl, ok := r.Priority(); ok {
			prio = cl.String()
		}
		hex := "-"
		if hasMask {
			hex = fmt.Sprintf("%#x", uint64(m))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name(), describeMask(m, hasMask), hex, prio)
	}
	tw.Flush()
}

type hostInfo struct {
	Host     string
	Cores    int
	Cgroup   cgroup.Version
	Detail   string
	Cpuset   mask.CoreMask
	HasSet   bool
	Root     bool
	Settings string
}

func printInfo(w io.Writer, h hostInfo, color bool) {
	fmt.Fprintln(w, paint(titleStyle, "Host", color))
	tw := newTable(w)
	fmt.Fprintf(tw, "  Host:\t%s\n", h.Host)
	fmt.Fprintf(tw, "  Cores:\t%d (%s)\n", h.Cores, mask.Full(h.Cores))
	fmt.Fprintf(tw, "  Cgroup:\t%s %s\n", h.Cgroup, paint(mutedStyle, h.Detail, color))
	fmt.Fprintf(tw, "  Cpuset:\t%s\n", describeMask(h.Cpuset, h.HasSet))
	fmt.Fprintf(tw, "  Root:\t%t\n", h.Root)
	fmt.Fprintf(tw, "  Settings:\t%s\n", h.Settings)
	tw.Flush()
}

func describeMask(m mask.CoreMask, ok bool) string {
	if !ok {
		return "unchanged"
	}
	return m.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
