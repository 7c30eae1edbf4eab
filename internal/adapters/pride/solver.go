// Package pride runs the PRIDE-PPP pdp3 kinematic solver on daily RINEX files.
package pride

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/geodesy"
	"github.com/example/sfg/internal/ports/secondary"
)

// Options configures the pdp3 command line.
type Options struct {
	Binary          string
	Interval        float64
	System          string
	CutoffElevation int
	LooseEdit       bool
	Timeout         time.Duration
}

// Runner executes a command in dir and returns its combined output.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Solver implements secondary.PPPSolver.
type Solver struct {
	root string // Pride working directory
	opts Options
	run  Runner
	log  *zap.Logger
}

var _ secondary.PPPSolver = (*Solver)(nil)

// NewSolver creates a solver working under root.
func NewSolver(root string, opts Options, log *zap.Logger) *Solver {
	return &Solver{root: root, opts: opts, run: execRunner, log: log}
}

// WithRunner replaces the command runner.
func (s *Solver) WithRunner(r Runner) *Solver {
	s.run = r
	return s
}

// Args builds the pdp3 argument list.
func (s *Solver) Args(req secondary.SolveRequest) []string {
	args := []string{"-m", "K", "-i", strconv.FormatFloat(s.opts.Interval, 'f', -1, 64)}
	if s.opts.System != "" {
		args = append(args, "--system", s.opts.System)
	}
	if s.opts.CutoffElevation > 0 {
		args = append(args, "--cutoff-elev", strconv.Itoa(s.opts.CutoffElevation))
	}
	if s.opts.LooseEdit {
		args = append(args, "--loose-edit")
	}
	args = append(args, "--site", strings.ToUpper(req.Site))
	if req.Products != nil && req.Products.ConfigFile != "" {
		args = append(args, "--config", req.Products.ConfigFile)
	}
	return append(args, req.RinexPath)
}

// Solve runs pdp3 and moves its kin and res outputs to req.OutputDir. Every
// failure, including a timeout, wraps asset.ErrExternalTool.
func (s *Solver) Solve(ctx context.Context, req secondary.SolveRequest) (*secondary.SolveResult, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pride dir: %w", err)
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	args := s.Args(req)
	log := s.log.With(zap.String("rinex", req.RinexPath), zap.String("site", req.Site))
	log.Info("running pdp3", zap.Strings("args", args))

	start := time.Now()
	out, err := s.run(ctx, s.root, s.opts.Binary, args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: pdp3 timed out after %s", asset.ErrExternalTool, s.opts.Timeout)
		}
		return nil, fmt.Errorf("%w: pdp3 failed: %v: %s", asset.ErrExternalTool, err, tail(out, 5))
	}
	log.Debug("pdp3 finished", zap.Duration("elapsed", time.Since(start)))

	year, doy := geodesy.DayOfYear(req.Day)
	workDir := filepath.Join(s.root, strconv.Itoa(year), fmt.Sprintf("%03d", doy))
	suffix := fmt.Sprintf("%d%03d_%s", year, doy, strings.ToLower(req.Site))
	kinSrc := filepath.Join(workDir, "kin_"+suffix)
	resSrc := filepath.Join(workDir, "res_"+suffix)

	if _, err := os.Stat(kinSrc); err != nil {
		return nil, fmt.Errorf("%w: pdp3 produced no kin file at %s", asset.ErrExternalTool, kinSrc)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(req.RinexPath), filepath.Ext(req.RinexPath))
	res := &secondary.SolveResult{KinPath: filepath.Join(req.OutputDir, base+".kin")}
	if err := os.Rename(kinSrc, res.KinPath); err != nil {
		return nil, fmt.Errorf("failed to move kin file: %w", err)
	}
	if _, err := os.Stat(resSrc); err == nil {
		res.ResPath = filepath.Join(req.OutputDir, base+".res")
		if err := os.Rename(resSrc, res.ResPath); err != nil {
			return nil, fmt.Errorf("failed to move res file: %w", err)
		}
	} else {
		log.Warn("pdp3 produced no residual file", zap.String("path", resSrc))
	}
	return res, nil
}

func tail(out []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
