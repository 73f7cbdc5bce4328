// Package editor manages the headless code-server instance used for warming.
package editor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ternarybob/prewarm/internal/config"
	"github.com/ternarybob/prewarm/internal/logger"
)

// Server wraps a headless code-server subprocess.
type Server struct {
	cfg     *config.Config
	cmd     *exec.Cmd
	logFile *os.File
}

// NewServer creates a server wrapper for the configured editor binary.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Start spawns code-server with a throwaway user-data dir and waits until its
// health endpoint accepts connections.
func (s *Server) Start(ctx context.Context) error {
	log := logger.GetLogger()

	if s.cmd != nil {
		return fmt.Errorf("editor already started")
	}

	logPath := filepath.Join(s.cfg.DataDir, "logs", "code-server.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open editor log: %w", err)
	}
	s.logFile = f

	cmd := exec.Command(s.cfg.Editor.Binary,
		"--bind-addr", s.cfg.EditorAddress(),
		"--auth", "none",
		"--user-data-dir", s.cfg.UserDataDir(),
		"--extensions-dir", s.cfg.ExtensionsDir(),
		"--disable-telemetry",
		"--disable-update-check",
		s.cfg.Editor.Workspace,
	)
	cmd.Stdout = f
	cmd.Stderr = f

	log.Info().
		Str("binary", s.cfg.Editor.Binary).
		Str("addr", s.cfg.EditorAddress()).
		Str("workspace", s.cfg.Editor.Workspace).
		Msg("Starting headless editor")

	if err := cmd.Start(); err != nil {
		f.Close()
		s.logFile = nil
		return fmt.Errorf("start %s: %w", s.cfg.Editor.Binary, err)
	}
	s.cmd = cmd

	timeout := config.Duration(s.cfg.Editor.StartupTimeout, 60*time.Second)
	if err := s.waitReady(ctx, timeout); err != nil {
		s.Stop()
		return err
	}

	log.Info().Str("url", s.cfg.EditorURL()).Msg("Editor is up")
	return nil
}

// waitReady polls the health endpoint until the server answers.
func (s *Server) waitReady(ctx context.Context, timeout time.Duration) error {
	healthURL := s.cfg.EditorURL() + "/healthz"
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, err := client.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("editor did not become healthy within %s", timeout)
}

// Stop terminates the editor process, escalating to SIGKILL when a graceful
// shutdown stalls. Safe to call when the process never started.
func (s *Server) Stop() {
	log := logger.GetLogger()

	if s.cmd == nil || s.cmd.Process == nil {
		return
	}

	proc := s.cmd.Process
	_ = proc.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = s.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Editor did not exit on SIGTERM, killing")
		_ = proc.Kill()
		<-done
	}

	if s.logFile != nil {
		s.logFile.Close()
		s.logFile = nil
	}
	s.cmd = nil
}
