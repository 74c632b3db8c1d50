package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	if len(argv) < 1 {
		printUsage()
		return 1
	}

	cmd := argv[0]
	args := argv[1:]

	switch cmd {
	// --- NOUNS ---
	case "worker":
		return runWorkerNoun(args)
	case "controller":
		return runControllerNoun(args)
	case "command":
		return runCommandNoun(args)
	case "result":
		return runResultNoun(args)
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)

	case "version":
		fmt.Printf("aebridge version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`aebridge - file-based command/result bridge for a compositing host

Usage:
  aebridge <noun> <action> [flags]

Core Resources (Nouns):
  worker      Host-side poll loop
  controller  Controller-side HTTP API
  command     The command channel
  result      The result channel
  system      Live status panel
  config      Configuration checks

Worker Commands:
  worker start              Acquire the worker lock and poll for commands

Controller Commands:
  controller start          Serve the HTTP API

Command Commands:
  command publish <name>    Write a pending command (--args JSON)
  command show              Print the current command record

Result Commands:
  result get                Print the latest result (--wait, --expect)

System Commands:
  system watch              Watch the channels in a terminal panel

Config Commands:
  config check              Validate configuration and channel directory

General:
  version                   Show version information
  help                      Show this help message

Every action accepts --config PATH. Without it the config is discovered from
$AEBRIDGE_CONFIG, ~/.config/aebridge/config.yaml or ./config.yaml.
`)
}

// --- NOUN DISPATCHERS ---

type action struct {
	run  func(args []string) int
	help string
}

func dispatchNoun(noun string, args []string, actions map[string]action, names string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: aebridge %s <action>\nActions: %s\n", noun, names)
		return 1
	}
	if isHelpToken(args[0]) {
		fmt.Printf("Usage: aebridge %s <action>\nActions: %s\n", noun, names)
		return 0
	}

	name, actionArgs := args[0], args[1:]
	a, ok := actions[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown %s action: %s\n", noun, name)
		return 1
	}
	if hasHelpFlag(actionArgs) {
		fmt.Println(a.help)
		return 0
	}
	return a.run(actionArgs)
}

func runWorkerNoun(args []string) int {
	return dispatchNoun("worker", args, map[string]action{
		"start": {runWorkerStart, "Usage: aebridge worker start [--config PATH] [--panel]\n" +
			"Poll the command channel and run commands against the in-memory scene host.\n" +
			"--panel shows the status panel and sends logs to the channel directory."},
	}, "start")
}

func runControllerNoun(args []string) int {
	return dispatchNoun("controller", args, map[string]action{
		"start": {runControllerStart, "Usage: aebridge controller start [--config PATH]\n" +
			"Serve POST /commands/{name}, GET /command, GET /result, GET /events\n" +
			"and the server-sent event stream GET /events/stream."},
	}, "start")
}

func runCommandNoun(args []string) int {
	return dispatchNoun("command", args, map[string]action{
		"publish": {runCommandPublish, "Usage: aebridge command publish <name> [--args JSON] [--config PATH]\n" +
			"Overwrite the command channel with a pending command."},
		"show": {runCommandShow, "Usage: aebridge command show [--config PATH]\n" +
			"Print the current command record as JSON."},
	}, "publish, show")
}

func runResultNoun(args []string) int {
	return dispatchNoun("result", args, map[string]action{
		"get": {runResultGet, "Usage: aebridge result get [--wait DURATION] [--expect NAME] [--config PATH]\n" +
			"Print the latest result. With --wait, poll until a result stamped for the\n" +
			"current command (or --expect NAME) at or after its publish time appears."},
	}, "get")
}

func runSystemNoun(args []string) int {
	return dispatchNoun("system", args, map[string]action{
		"watch": {runSystemWatch, "Usage: aebridge system watch [--config PATH] [--interval DURATION]\n" +
			"Show the command status and a command log, refreshed from the channel files."},
	}, "watch")
}

func runConfigNoun(args []string) int {
	return dispatchNoun("config", args, map[string]action{
		"check": {runConfigCheck, "Usage: aebridge config check [--config PATH] [--json]\n" +
			"Validate configuration, the channel directory and the worker lock."},
	}, "check")
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
