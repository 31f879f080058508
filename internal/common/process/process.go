// Package process supervises an optional external helper process, currently
// the bundled ChromaDB server. The process is launched with its output
// forwarded into the service log and is considered started only once its
// readiness URL answers.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ServiceConfig describes an external process to supervise.
type ServiceConfig struct {
	Name          string
	Command       string
	Args          []string
	Env           []string
	ReadyURL      string
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
	StopTimeout   time.Duration
	Logger        Logger
}

// Logger is the minimal logging surface the supervisor needs; *slog.Logger
// satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// ManagedService tracks one launched process until Stop.
type ManagedService struct {
	cfg ServiceConfig
	cmd *exec.Cmd

	done    chan struct{}
	mu      sync.RWMutex
	waitErr error
}

// Start launches the process and blocks until the readiness probe answers or
// the timeout elapses. On probe failure the process is stopped before the
// error returns.
func Start(ctx context.Context, cfg ServiceConfig) (*ManagedService, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("process: command required")
	}
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("process: stdout pipe %s: %w", cfg.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return nil, fmt.Errorf("process: stderr pipe %s: %w", cfg.Name, err)
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("process: launching service",
			"service", cfg.Name, "command", cfg.Command, "args", strings.Join(cfg.Args, " "))
	}
	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("process: start %s: %w", cfg.Name, err)
	}

	svc := &ManagedService{cfg: cfg, cmd: cmd, done: make(chan struct{})}
	var streams sync.WaitGroup
	svc.forward(&streams, stdout, "stdout")
	svc.forward(&streams, stderr, "stderr")
	go func() {
		err := cmd.Wait()
		streams.Wait()
		svc.mu.Lock()
		svc.waitErr = err
		svc.mu.Unlock()
		close(svc.done)
	}()

	if err := svc.waitForReady(ctx); err != nil {
		svc.Stop(context.Background())
		return nil, err
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("process: service ready", "service", cfg.Name, "url", cfg.ReadyURL)
	}
	return svc, nil
}

func (s *ManagedService) forward(wg *sync.WaitGroup, pipe io.ReadCloser, stream string) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer pipe.Close()
		scanner := bufio.NewScanner(pipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if s.cfg.Logger == nil {
				continue
			}
			line := scanner.Text()
			if stream == "stderr" {
				s.cfg.Logger.Warn(line, "service", s.cfg.Name, "stream", stream)
			} else {
				s.cfg.Logger.Info(line, "service", s.cfg.Name, "stream", stream)
			}
		}
	}()
}

// Stop interrupts the process and escalates to a kill after StopTimeout.
func (s *ManagedService) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if s.cfg.Logger != nil {
		s.cfg.Logger.Info("process: stopping service", "service", s.cfg.Name)
	}
	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
			if s.cfg.Logger != nil {
				s.cfg.Logger.Warn("process: interrupt failed", "service", s.cfg.Name, "error", err)
			}
		}
	}
	stopTimeout := s.cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 5 * time.Second
	}
	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return s.normalizeWaitErr()
	case <-timer.C:
		if s.cmd != nil && s.cmd.Process != nil {
			if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return err
			}
		}
		<-s.done
		return s.normalizeWaitErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ManagedService) waitForReady(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.ReadyURL) == "" {
		return nil
	}
	readyTimeout := s.cfg.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = 30 * time.Second
	}
	interval := s.cfg.ReadyInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	client := &http.Client{Timeout: 2 * time.Second}
	readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-readyCtx.Done():
			if lastErr != nil {
				return fmt.Errorf("process: %s not ready after %s: %w", s.cfg.Name, readyTimeout, lastErr)
			}
			return fmt.Errorf("process: %s not ready after %s: %w", s.cfg.Name, readyTimeout, readyCtx.Err())
		case <-s.done:
			return fmt.Errorf("process: %s exited before reporting ready: %w", s.cfg.Name, s.waitError())
		case <-ticker.C:
			req, err := http.NewRequestWithContext(readyCtx, http.MethodGet, s.cfg.ReadyURL, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				lastErr = err
				continue
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusInternalServerError {
				return nil
			}
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
	}
}

func (s *ManagedService) waitError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waitErr
}

func (s *ManagedService) normalizeWaitErr() error {
	err := s.waitError()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.Exited() {
		// Interrupt-driven exits count as a clean shutdown.
		return nil
	}
	return err
}
