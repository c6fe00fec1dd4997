package main

import (
	"fmt"
	"os"
	"strings"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	daemonAddr = "http://127.0.0.1:7433"
	pidFile    = "fracquestd.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "login":
		err = cmdLogin(newClient(daemonAddr), os.Args[2:])
	case "logout":
		err = cmdLogout(newClient(daemonAddr))
	case "whoami":
		err = cmdWhoami(newClient(daemonAddr))
	case "progress":
		err = cmdProgress(newClient(daemonAddr))
	case "stages":
		err = cmdStages(newClient(daemonAddr), os.Args[2:])
	case "complete":
		err = cmdComplete(newClient(daemonAddr), os.Args[2:])
	case "stats":
		err = cmdStats(newClient(daemonAddr), os.Args[2:])
	case "reset":
		err = cmdReset(newClient(daemonAddr), os.Args[2:])
	case "worker":
		err = cmdWorker()
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("fracquest %s\n", Version)
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
	fmt.Println(`FracQuest - Fraction quiz progression

Usage:
  fracquest <command> [arguments]

Daemon Commands:
  start           Start the FracQuest daemon
  stop            Stop the FracQuest daemon
  status          Show daemon status
  logs            View daemon logs

Session Commands:
  login <user-id>   Sign this device in as a student (UUID)
  logout            Return to anonymous play
  whoami            Show the signed-in student

Progress Commands:
  progress                     Show unlocked stages for every level group
  stages <group>               Show unlocked stages for one level group
  complete <group> <stage>     Record a finished quiz session (--wrong, --time <secs>)
  stats                        Show accuracy and answer totals
  stats completion [group]     Show completion percentage
  reset [group]                Reset one level group or all progress

Integration Commands:
  worker          Drain queued attempts into the attempt log
  mcp             Start MCP server (stdio)

Other:
  help            Show this help message
  version         Show version information

Environment:
  FRACQUEST_USER_ID   Act as a student for one command, overriding login

Examples:
  fracquest start                 # Start daemon
  fracquest complete 1 1          # Pass stage 1 of group 1
  fracquest stats completion 2    # How much of group 2 is done
  fracquest mcp                   # Start MCP server`)
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
