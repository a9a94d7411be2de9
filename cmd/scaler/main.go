package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/mahino/scalar"
	"github.com/mahino/scalar/internal"
)

// CLI defines the command-line interface
var CLI struct {
	Debug bool `help:"Enable debug logging." short:"d"`

	Analyze struct {
		Input string `help:"Path to payload JSON file. If not specified, reads from stdin." short:"i" type:"path"`
	} `cmd:"" help:"Discover the scalable entities of a payload template."`

	Scale struct {
		Input    string         `help:"Path to payload JSON file. If not specified, reads from stdin." short:"i" type:"path"`
		Output   string         `help:"Path to output JSON file. If not specified, writes to stdout." short:"o" type:"path"`
		Counts   map[string]int `help:"Desired entity counts as path=count pairs." short:"c"`
		Rules    string         `help:"Path to a rule set JSON file." short:"r" type:"path"`
		SingleVM bool           `help:"Force single-VM blueprint mode."`
	} `cmd:"" help:"Scale a payload template and print the generated document."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("scaler"),
		kong.Description("A tool to analyze and scale entity payload templates"),
		kong.UsageOnError(),
	)

	logger := zap.NewNop()
	if CLI.Debug {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	var err error
	switch ctx.Command() {
	case "analyze":
		err = runAnalyze()
	case "scale":
		err = runScale()
	default:
		err = fmt.Errorf("unknown command: %s", ctx.Command())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runAnalyze() error {
	payload, err := readDocument(CLI.Analyze.Input)
	if err != nil {
		return err
	}

	engine := internal.NewPipeline(scalar.DefaultConfig(), nil, zap.S())
	entities, err := engine.Analyze(context.Background(), payload)
	if err != nil {
		return err
	}
	return writeResult(os.Stdout, map[string]any{"scalable_entities": entities})
}

func runScale() error {
	payload, err := readDocument(CLI.Scale.Input)
	if err != nil {
		return err
	}

	var rules scalar.RuleSet
	if CLI.Scale.Rules != "" {
		data, err := os.ReadFile(CLI.Scale.Rules)
		if err != nil {
			return fmt.Errorf("failed to read rules file: %w", err)
		}
		if err := json.Unmarshal(data, &rules); err != nil {
			return fmt.Errorf("failed to parse rules file: %w", err)
		}
	}

	counts := make(scalar.EntityCountMap, len(CLI.Scale.Counts))
	for path, count := range CLI.Scale.Counts {
		counts[path] = count
	}

	config := scalar.DefaultConfig()
	config.Blueprint.SingleVMMode = CLI.Scale.SingleVM

	engine := internal.NewPipeline(config, nil, zap.S())
	result, err := engine.Preview(context.Background(), payload, counts, rules)
	if err != nil {
		return err
	}

	out := os.Stdout
	if CLI.Scale.Output != "" {
		f, err := os.Create(CLI.Scale.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning [%s] %s: %s\n", warning.Type, warning.Path, warning.Message)
	}
	return writeResult(out, result.Document)
}

func readDocument(input string) (scalar.Document, error) {
	var data []byte
	var err error
	if input == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(input)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	var payload scalar.Document
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return payload, nil
}

func writeResult(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
