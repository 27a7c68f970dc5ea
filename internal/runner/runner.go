// Package runner synchronizes the configuration repository and runs the
// automation playbook against it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nahidhasan98/netconf-relay/internal/logger"
	"github.com/nahidhasan98/netconf-relay/internal/validation"
)

// NoColorEnv is set for every automation run
const NoColorEnv = "ANSIBLE_NOCOLOR=1"

// ErrNoWorkingCopy is returned when no working copy path is configured
var ErrNoWorkingCopy = errors.New("working copy path is not configured")

// Outcome of an automation run
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
)

// Stage names the step a run reached
type Stage string

const (
	StageSync    Stage = "sync"
	StageExecute Stage = "execute"
)

// Result is the outcome of one Run. Stdout and Stderr are captured verbatim.
type Result struct {
	Outcome  Outcome
	Stage    Stage
	Revision string
	Playbook string
	Limit    []string // sorted; nil for an unrestricted run
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Succeeded reports whether the run completed without error
func (r *Result) Succeeded() bool {
	return r != nil && r.Outcome == Succeeded
}

// SyncError means the working copy could not be brought to the requested
// revision. The automation engine was not invoked.
type SyncError struct {
	Step   string
	Stderr string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Step, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// ExecutionError means the automation engine failed to start or exited
// non-zero.
type ExecutionError struct {
	ExitCode int // -1 when the process did not start
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("automation run exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("automation run: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Options configures a Runner
type Options struct {
	RepoURL   string
	RepoPath  string // on-disk working copy
	RunnerBin string // defaults to ansible-runner
	GitBin    string // defaults to git
	SkipSync  bool   // run against the working copy as it is
}

// Runner owns one working copy. Runs against it are serialized.
type Runner struct {
	opts      Options
	exec      Executor
	sem       *semaphore.Weighted
	validator *validation.Validator
	log       *logger.Logger
}

// New creates a Runner. A nil executor uses os/exec.
func New(opts Options, executor Executor, log *logger.Logger) *Runner {
	if opts.RunnerBin == "" {
		opts.RunnerBin = "ansible-runner"
	}
	if opts.GitBin == "" {
		opts.GitBin = "git"
	}
	if executor == nil {
		executor = ExecExecutor{}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Runner{
		opts:      opts,
		exec:      executor,
		sem:       semaphore.NewWeighted(1),
		validator: validation.New(),
		log:       log,
	}
}

// RepoPath returns the working copy location
func (r *Runner) RepoPath() string {
	return r.opts.RepoPath
}

// Run syncs the working copy to revision and runs playbook, limited to the
// given targets when limit is non-empty. A result is always returned; the
// error is a *SyncError or *ExecutionError when the run failed.
func (r *Runner) Run(ctx context.Context, playbook, revision string, limit []string) (*Result, error) {
	start := time.Now()
	res := &Result{
		Revision: revision,
		Playbook: playbook,
		Limit:    sortedLimit(limit),
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return r.fail(res, StageSync, "", &SyncError{Step: "lock", Err: err}, start)
	}
	defer r.sem.Release(1)

	log := logger.FromContext(ctx, r.log).
		With("revision", revision).
		With("repo_path", r.opts.RepoPath)

	if r.opts.RepoPath == "" {
		err := &SyncError{Step: "prepare", Err: ErrNoWorkingCopy}
		log.Error("Refusing to run without a working copy", err)
		return r.fail(res, StageSync, "", err, start)
	}

	if !r.opts.SkipSync {
		log.Info("Synchronizing working copy")
		if err := r.sync(ctx, revision); err != nil {
			var syncErr *SyncError
			stderr := ""
			if errors.As(err, &syncErr) {
				stderr = syncErr.Stderr
			}
			log.Error("Working copy sync failed", err)
			return r.fail(res, StageSync, stderr, err, start)
		}
	}

	res.Stage = StageExecute
	cmd := r.engineCommand(playbook, res.Limit)
	log.With("limit", strings.Join(res.Limit, ",")).Infof("Running playbook %s", playbook)

	log.Debugf("Executing %s %s", cmd.Name, strings.Join(cmd.Args, " "))
	stdout, stderr, err := r.exec.Execute(ctx, cmd)
	res.Stdout = stdout
	res.Stderr = stderr
	res.Duration = time.Since(start)

	if err != nil {
		res.Outcome = Failed
		execErr := &ExecutionError{ExitCode: -1, Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
		log.Error("Automation run failed", execErr)
		return res, execErr
	}

	res.Outcome = Succeeded
	log.Infof("Automation run succeeded in %s", res.Duration)
	return res, nil
}

func (r *Runner) fail(res *Result, stage Stage, stderr string, err error, start time.Time) (*Result, error) {
	res.Outcome = Failed
	res.Stage = stage
	res.Stderr = stderr
	if res.Stderr == "" {
		res.Stderr = err.Error()
	}
	res.Duration = time.Since(start)
	return res, err
}

// sync clones or fetches, then hard-resets to revision
func (r *Runner) sync(ctx context.Context, revision string) error {
	if appErr := r.validator.ValidateRevision(revision); appErr != nil {
		return &SyncError{Step: "validate", Err: errors.New(appErr.Message)}
	}

	path := r.opts.RepoPath

	if r.hasWorkingCopy() {
		if err := r.git(ctx, "fetch", path, "fetch", "--prune", "origin"); err != nil {
			return err
		}
	} else {
		if r.opts.RepoURL == "" {
			return &SyncError{Step: "clone", Err: errors.New("repository URL is not configured")}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return &SyncError{Step: "clone", Err: err}
		}
		if err := r.git(ctx, "clone", "", "clone", r.opts.RepoURL, path); err != nil {
			return err
		}
	}

	return r.git(ctx, "reset", path, "reset", "--hard", revision)
}

func (r *Runner) hasWorkingCopy() bool {
	_, err := os.Stat(filepath.Join(r.opts.RepoPath, ".git"))
	return err == nil
}

func (r *Runner) git(ctx context.Context, step, dir string, args ...string) error {
	logger.FromContext(ctx, r.log).Debugf("Executing %s %s (dir=%q)", r.opts.GitBin, strings.Join(args, " "), dir)
	_, stderr, err := r.exec.Execute(ctx, Command{Dir: dir, Name: r.opts.GitBin, Args: args})
	if err != nil {
		return &SyncError{Step: step, Stderr: stderr, Err: fmt.Errorf("%s: %w", strings.TrimSpace(stderr), err)}
	}
	return nil
}

func (r *Runner) engineCommand(playbook string, limit []string) Command {
	args := []string{"run", r.opts.RepoPath, "-p", playbook}
	if len(limit) > 0 {
		args = append(args, "--limit", strings.Join(limit, ","))
	}
	return Command{
		Dir:  r.opts.RepoPath,
		Name: r.opts.RunnerBin,
		Args: args,
		Env:  []string{NoColorEnv},
	}
}

func sortedLimit(limit []string) []string {
	if len(limit) == 0 {
		return nil
	}
	out := slices.Clone(limit)
	slices.Sort(out)
	return slices.Compact(out)
}
