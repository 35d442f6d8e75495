package cli

import (
	"bufio"
	"cromp/internal/global"
	"cromp/internal/server"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// Writes a default server config
func ConfigureMode(cliOpts *global.CommandSet, commandname string, args []string) {
	var outputPath string
	var format string

	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	commandFlags.StringVar(&outputPath, "o", "", "Path to write the config to (stdout if empty)")
	commandFlags.StringVar(&outputPath, "output", "", "Path to write the config to (stdout if empty)")
	commandFlags.StringVar(&format, "f", "json", "Config file format <json|toml>")
	commandFlags.StringVar(&format, "format", "json", "Config file format <json|toml>")

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, cliOpts)
	}
	commandFlags.Parse(args)

	err := writeDefaultConfig(outputPath, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func writeDefaultConfig(outputPath string, format string) (err error) {
	encoded, err := server.DefaultJSONConfig().Marshal(format)
	if err != nil {
		return
	}

	if outputPath == "" {
		_, err = os.Stdout.Write(encoded)
		return
	}

	// Don't overwrite existing
	_, err = os.Stat(outputPath)
	if err == nil {
		// No terminal - no overwrite
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Printf("Existing configuration file present, not overwriting\n")
			return
		}

		fmt.Printf("Configuration file already exists at '%s'. Are you SURE you want to overwrite it? (yes/no): ", outputPath)
		reader := bufio.NewReader(os.Stdin)
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		if strings.ToLower(input) != "yes" {
			fmt.Printf("Not overwriting configuration file\n")
			return
		}
	} else if !os.IsNotExist(err) {
		err = fmt.Errorf("failed checking config file existence: %w", err)
		return
	}

	err = os.WriteFile(outputPath, encoded, 0640)
	if err != nil {
		err = fmt.Errorf("failed writing config file: %w", err)
		return
	}
	fmt.Printf("Wrote %s config to %s\n", format, outputPath)
	return
}
