package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFile = "paesd.pid"

var daemonAddr = envOr("PAES_DAEMON_ADDR", "http://127.0.0.1:7432")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "config":
		err = cmdConfig()
	case "provider":
		err = cmdProvider(os.Args[2:])
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "subject":
		err = cmdSubject(os.Args[2:])
	case "practice":
		err = cmdPractice(os.Args[2:])
	case "answer":
		err = cmdAnswer(os.Args[2:])
	case "stats":
		err = cmdStats(os.Args[2:])
	case "exams":
		err = cmdExams()
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("paes %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`PAES Pro - Práctica para la PAES

Usage:
  paes <command> [arguments]

Setup Commands:
  init                  Create ~/.paespro and a default configuration
  config                Show current configuration
  provider              Manage LLM providers

Daemon Commands:
  start                 Start the paesd daemon
  stop                  Stop the daemon
  status                Show daemon status
  logs                  View daemon logs

Practice Commands:
  subject [slug|id]     Show or change the active subject
  practice [skill]      Get an exercise (official first, generated otherwise)
  practice official     Get a random official question
  answer <id> <option>  Answer an exercise by letter (A-E) or option text

Progress Commands:
  stats                 Recent accuracy
  stats skills          Skill levels, weakest first
  exams                 Official exam bank

Integration Commands:
  mcp                   Start MCP server on stdio

Other:
  help                  Show this help message
  version               Show version information

Environment:
  PAES_USER             Student id (default: local)
  PAES_DAEMON_ADDR      Daemon address (default: http://127.0.0.1:7432)`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func currentUser() string {
	return envOr("PAES_USER", "local")
}

// renderProgressBar creates a visual progress bar
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
