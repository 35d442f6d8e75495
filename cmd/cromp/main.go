package main

import (
	"context"
	"cromp/internal/cli"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"flag"
	"fmt"
	"os"
	"runtime"
)

// Subcommand entry points keyed by name
type mode func(ctx context.Context, opts *global.CommandSet, name string, args []string)

func modes() map[string]mode {
	return map[string]mode{
		"serve":    cli.ServeMode,
		"ping":     cli.PingMode,
		"transfer": cli.TransferMode,
		"configure": func(_ context.Context, opts *global.CommandSet, name string, args []string) {
			cli.ConfigureMode(opts, name, args)
		},
		"version": func(_ context.Context, _ *global.CommandSet, _ string, args []string) {
			printVersion(len(args) > 0 && (args[0] == "-v" || args[0] == "--verbosity"))
		},
	}
}

func printVersion(detailed bool) {
	if !detailed {
		fmt.Println(global.ProgVersion)
		return
	}
	fmt.Printf("%s %s\n", global.ProgBaseName, global.ProgVersion)
	fmt.Printf("Go %s (%s) %s/%s\n", runtime.Version(), runtime.Compiler, runtime.GOOS, runtime.GOARCH)
}

func main() {
	opts := cli.DefineOptions()
	global.CmdOpts = opts

	root := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cli.SetGlobalArguments(root)
	root.Usage = func() { cli.PrintHelpMenu(root, cli.RootCLICommand, opts) }

	if len(os.Args) < 2 {
		root.Usage()
		os.Exit(1)
	}
	root.Parse(os.Args[1:])

	name, args := os.Args[1], os.Args[2:]
	run, known := modes()[name]
	if !known {
		root.Usage()
		os.Exit(1)
	}

	// Logger lives until the subcommand returns, then drains to stdout
	ctx, cancel := context.WithCancel(context.Background())
	logger := logctx.NewLogger(global.ProgBaseName, global.Verbosity, ctx.Done())
	logctx.StartWatcher(logger, os.Stdout)

	run(logctx.WithLogger(ctx, logger), opts, name, args)

	cancel()
	logger.Wake()
	logger.Wait()
}
