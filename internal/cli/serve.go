package cli

import (
	"context"
	"cromp/internal/global"
	"cromp/internal/lifecycle"
	"cromp/internal/logctx"
	"cromp/internal/server"
	"flag"
	"fmt"
	"os"
)

func ServeMode(ctx context.Context, cliOpts *global.CommandSet, commandname string, args []string) {
	var configPath string
	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	SetCommon(commandFlags, &configPath)

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, cliOpts)
	}
	commandFlags.Parse(args)
	logctx.SetLogLevel(ctx, global.Verbosity)

	fileCfg, err := server.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	daemonConfig, err := fileCfg.NewDaemonConf()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	daemon := server.NewDaemon(daemonConfig)
	err = daemon.Start(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server daemon: %v\n", err)
		os.Exit(1)
	}

	err = lifecycle.NotifyReady(ctx)
	if err != nil {
		logctx.LogEvent(ctx, global.VerbosityStandard, global.WarnLog, "Systemd notify ready failed: %v\n", err)
	}

	// Blocks until a shutdown signal has been handled
	lifecycle.SignalHandler(ctx, daemon)
}
