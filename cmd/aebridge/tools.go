package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"

	"github.com/mattjoyce/aebridge/internal/config"
	"github.com/mattjoyce/aebridge/internal/dispatch"
	"github.com/mattjoyce/aebridge/internal/doctor"
	"github.com/mattjoyce/aebridge/internal/log"
	"github.com/mattjoyce/aebridge/internal/registry"
	"github.com/mattjoyce/aebridge/internal/tui/watch"
)

// resultPollInterval is how often `result get --wait` rereads the result.
const resultPollInterval = 250 * time.Millisecond

// openTool loads config for a short-lived command. Logs go to stderr so
// stdout carries only the command's output.
func openTool(configPath string) (*config.Config, *dispatch.Dispatcher, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	log.SetupWriter(cfg.Service.LogLevel, os.Stderr)
	return cfg, openBridge(cfg, afero.NewOsFs()).dispatcher(), nil
}

// splitPositional separates leading positional arguments from flags so flags
// may follow the positional, as in `command publish createComposition --args '{}'`.
func splitPositional(args []string, flagsWithValue map[string]bool) (positional, flags []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
			name := strings.TrimLeft(arg, "-")
			if flagsWithValue[name] && !strings.Contains(name, "=") && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
			continue
		}
		positional = append(positional, arg)
	}
	return positional, flags
}

func runCommandPublish(args []string) int {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	argsJSON := fs.String("args", "", "Command arguments as a JSON object")

	positional, flagArgs := splitPositional(args, map[string]bool{"config": true, "args": true})
	if err := fs.Parse(flagArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: aebridge command publish <name> [--args JSON] [--config PATH]")
		return 1
	}
	name := positional[0]

	var cmdArgs map[string]any
	if *argsJSON != "" {
		if err := json.Unmarshal([]byte(*argsJSON), &cmdArgs); err != nil {
			fmt.Fprintf(os.Stderr, "--args must be a JSON object: %v\n", err)
			return 1
		}
	}

	if _, ok := registry.ParseOperation(name); !ok {
		fmt.Fprintf(os.Stderr, "Warning: %q is not a known command; the worker will answer with a dispatch error\n", name)
	}

	_, d, err := openTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	rec, err := d.Submit(name, cmdArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Publish failed: %v\n", err)
		return 1
	}
	return printJSON(rec)
}

func runCommandShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	_, d, err := openTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	rec, ok := d.Current()
	if !ok {
		fmt.Fprintln(os.Stderr, "No command published.")
		return 1
	}
	return printJSON(rec)
}

func runResultGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	wait := fs.Duration("wait", 0, "Poll up to this long for a fresh result")
	expect := fs.String("expect", "", "Command the fresh result must be stamped with (default: the current command)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	_, d, err := openTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if *wait <= 0 {
		payload, err := d.GetResult()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read failed: %v\n", err)
			return 1
		}
		fmt.Println(string(payload))
		return 0
	}

	payload, err := waitForResult(d, *expect, *wait, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	fmt.Println(string(payload))
	return 0
}

// waitForResult polls until a result stamped for expect at or after the
// current command's publish time appears, or timeout elapses. With no
// current command, started is the lower bound.
func waitForResult(d *dispatch.Dispatcher, expect string, timeout time.Duration, started time.Time) (json.RawMessage, error) {
	since := started
	if rec, ok := d.Current(); ok {
		if expect == "" {
			expect = rec.Command
		}
		if at, err := rec.Time(); err == nil && rec.Command == expect {
			since = at
		}
	}
	if expect == "" {
		return nil, fmt.Errorf("no command published and no --expect given")
	}

	deadline := time.Now().Add(timeout)
	for {
		payload, err := d.GetResult()
		if err != nil {
			return nil, err
		}
		if stamp, ok := dispatch.Freshness(payload); ok && stamp.Matches(expect, since) {
			return payload, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out after %s waiting for a result of %s", timeout, expect)
		}
		time.Sleep(resultPollInterval)
	}
}

func runSystemWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	interval := fs.Duration("interval", watch.DefaultPollInterval, "How often to reread the channel files")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	// Channel read errors are shown in the panel; keep log lines off it.
	log.SetupWriter("ERROR", os.Stderr)

	model := watch.New(openBridge(cfg, afero.NewOsFs()).dispatcher(), watch.Options{
		PollInterval: *interval,
	})
	if _, err := tea.NewProgram(model).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
		return 1
	}
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output the report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		if *jsonOut {
			out, _ := doctor.FormatJSON(&doctor.Result{
				Valid:  false,
				Errors: []doctor.Issue{{Category: "config", Message: err.Error()}},
			})
			fmt.Println(out)
		} else {
			fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		}
		return 1
	}

	result := doctor.New(cfg).Validate()
	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode output: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}
