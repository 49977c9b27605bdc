package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vkngwrapper/gapi"
	"golang.org/x/exp/slog"
)

func main() {
	cfg := gapi.DefaultConfig()
	cfg.RegisterFlags(flag.CommandLine)

	configFile := flag.String("config.file", "", "Optional YAML config file. Flags given on the command line are ignored when it is set.")
	baseVertex := flag.Bool("base-vertex", false, "Reserve the base vertex / base instance root parameter")
	verbose := flag.Bool("verbose", false, "Log debug messages to stderr")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] shader.wgsl...\n\nReflects WGSL shaders, merges their bindings into one pipeline layout and prints it as JSON.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if *configFile != "" {
		var err error
		cfg, err = gapi.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed loading config: %v\n", err)
			os.Exit(1)
		}
	} else if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr))

	sources := make(map[string]string, flag.NArg())
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed reading shader: %v\n", err)
			os.Exit(1)
		}
		sources[path] = string(data)
	}

	out, err := inspect(logger, cfg, *baseVertex, flag.Args(), sources)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	os.Stdout.Write(out)
	fmt.Println()
}
