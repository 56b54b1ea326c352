package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/paespro/lectoguia/internal/config"
)

// cmdStart starts the daemon in the background
func cmdStart() error {
	if isRunning() {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	dir, err := config.EnsurePaesDir()
	if err != nil {
		return fmt.Errorf("setup paes directory: %w", err)
	}

	paesdPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(paesdPath)
	cmd.Dir = dir
	cmd.Stdout = nil
	cmd.Stderr = nil

	// Detach from parent process (platform-specific)
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for range 30 {
		time.Sleep(100 * time.Millisecond)
		if isRunning() {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", daemonAddr)
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'paes logs')")
}

// cmdStop stops the daemon
func cmdStop() error {
	if !isRunning() {
		fmt.Println("Daemon is not running")
		return nil
	}

	dir, err := config.PaesDir()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for range 50 {
		time.Sleep(100 * time.Millisecond)
		if !isRunning() {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

// cmdStatus shows daemon status
func cmdStatus() error {
	if !isRunning() {
		fmt.Println("Status: stopped")
		return nil
	}

	var status struct {
		Status         string   `json:"status"`
		Version        string   `json:"version"`
		Uptime         string   `json:"uptime"`
		LLMProviders   []string `json:"llm_providers"`
		Storage        string   `json:"storage"`
		Queue          bool     `json:"queue"`
		ActiveSessions int      `json:"active_sessions"`
	}
	if err := getJSON("/v1/status", &status); err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	providers := strings.Join(status.LLMProviders, ", ")
	if providers == "" {
		providers = "none (official questions only)"
	}

	fmt.Printf("Status:    %s\n", status.Status)
	fmt.Printf("Version:   %s\n", status.Version)
	fmt.Printf("Uptime:    %s\n", status.Uptime)
	fmt.Printf("Providers: %s\n", providers)
	fmt.Printf("Storage:   %s (queue: %t)\n", status.Storage, status.Queue)
	fmt.Printf("Sessions:  %d\n", status.ActiveSessions)
	fmt.Printf("Address:   %s\n", daemonAddr)

	return nil
}

// cmdLogs shows the tail of the daemon log
func cmdLogs() error {
	dir, err := config.PaesDir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(dir, "logs", "paesd.log")
	file, err := os.Open(logPath)
	if os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	// last ~4KB
	info, err := file.Stat()
	if err != nil {
		return err
	}
	offset := max(info.Size()-4096, 0)
	if _, err := file.Seek(offset, 0); err != nil {
		return err
	}

	reader := bufio.NewReader(file)
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
	return scanner.Err()
}

// findDaemonBinary locates the paesd binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("paesd"); err == nil {
		return path, nil
	}

	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "paesd")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{
		"/usr/local/bin/paesd",
		"./paesd",
		"./cmd/paesd/paesd",
	} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("paesd binary not found (build with 'go build ./cmd/paesd')")
}
