// internal/watchdog/process.go
package watchdog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// clockTicks is USER_HZ, which is 100 on every Linux architecture we target.
const clockTicks = 100.0

// Process is one sampled OS process.
type Process struct {
	PID        int     `json:"pid"`
	Name       string  `json:"name"`
	Cmdline    string  `json:"cmdline"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// ProcessTable finds and signals processes.
type ProcessTable interface {
	Find(ctx context.Context, name string) ([]Process, error)
	Signal(pid int, sig syscall.Signal) error
	Alive(pid int) bool
}

// ProcFS reads the Linux /proc filesystem.
type ProcFS struct {
	Root     string
	PageSize int
}

var _ ProcessTable = (*ProcFS)(nil)

func NewProcFS(root string) *ProcFS {
	if root == "" {
		root = "/proc"
	}
	return &ProcFS{Root: root, PageSize: os.Getpagesize()}
}

// Find returns every process whose comm or argv[0] contains name, case-insensitively.
// Processes that exit while being sampled are skipped.
func (p *ProcFS) Find(ctx context.Context, name string) ([]Process, error) {
	entries, err := os.ReadDir(p.Root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.Root, err)
	}
	uptime, err := p.uptime()
	if err != nil {
		return nil, err
	}
	self := os.Getpid()
	needle := strings.ToLower(name)

	var (
		mu    sync.Mutex
		found []Process
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() || pid == self {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			proc, ok := p.sample(pid, needle, uptime)
			if ok {
				mu.Lock()
				found = append(found, proc)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sortByPID(found)
	return found, nil
}

func (p *ProcFS) sample(pid int, needle string, uptime float64) (Process, bool) {
	dir := filepath.Join(p.Root, strconv.Itoa(pid))
	comm, err := os.ReadFile(filepath.Join(dir, "comm"))
	if err != nil {
		return Process{}, false
	}
	rawCmd, _ := os.ReadFile(filepath.Join(dir, "cmdline"))
	args := strings.Split(strings.TrimRight(string(rawCmd), "\x00"), "\x00")

	proc := Process{
		PID:     pid,
		Name:    strings.TrimSpace(string(comm)),
		Cmdline: strings.Join(args, " "),
	}
	argv0 := strings.ToLower(filepath.Base(args[0]))
	if !strings.Contains(strings.ToLower(proc.Name), needle) && !strings.Contains(argv0, needle) {
		return Process{}, false
	}

	if statm, err := os.ReadFile(filepath.Join(dir, "statm")); err == nil {
		if f := strings.Fields(string(statm)); len(f) >= 2 {
			pages, _ := strconv.ParseUint(f[1], 10, 64)
			proc.RSSBytes = pages * uint64(p.PageSize)
		}
	}
	if stat, err := os.ReadFile(filepath.Join(dir, "stat")); err == nil {
		proc.CPUPercent = cpuPercent(stat, uptime)
	}
	return proc, true
}

// cpuPercent is lifetime CPU usage: (utime+stime) / (uptime - starttime).
func cpuPercent(stat []byte, uptime float64) float64 {
	i := bytes.LastIndexByte(stat, ')')
	if i < 0 {
		return 0
	}
	// Fields after "(comm)" start at field 3 (state).
	f := strings.Fields(string(stat[i+1:]))
	if len(f) < 20 {
		return 0
	}
	utime, _ := strconv.ParseFloat(f[11], 64)
	stime, _ := strconv.ParseFloat(f[12], 64)
	start, _ := strconv.ParseFloat(f[19], 64)
	elapsed := uptime - start/clockTicks
	if elapsed <= 0 {
		return 0
	}
	return (utime + stime) / clockTicks / elapsed * 100
}

func (p *ProcFS) uptime() (float64, error) {
	raw, err := os.ReadFile(filepath.Join(p.Root, "uptime"))
	if err != nil {
		return 0, fmt.Errorf("reading uptime: %w", err)
	}
	f := strings.Fields(string(raw))
	if len(f) == 0 {
		return 0, errors.New("empty uptime")
	}
	return strconv.ParseFloat(f[0], 64)
}

func (p *ProcFS) Signal(pid int, sig syscall.Signal) error {
	err := syscall.Kill(pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func (p *ProcFS) Alive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func sortByPID(ps []Process) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].PID < ps[j].PID })
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
