package cli

import (
	"cromp/internal/global"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

const (
	RootCLICommand  string = "root"
	helpMenuTrailer string = `
Default server port: 10008. Metric queries are served on localhost only.
`
)

// Prints usage, description, subcommands and options for command to stdout
func PrintHelpMenu(fs *flag.FlagSet, command string, rootCmd *global.CommandSet) {
	writeHelpMenu(os.Stdout, fs, command, rootCmd)
}

func writeHelpMenu(out io.Writer, fs *flag.FlagSet, command string, rootCmd *global.CommandSet) {
	const indent = "  "

	cmdSet := rootCmd
	usage := []string{os.Args[0]}
	if command != "" && command != RootCLICommand {
		child, ok := rootCmd.ChildCommands[command]
		if !ok {
			fmt.Fprintf(out, "Unknown command: %s\n", command)
			return
		}
		cmdSet = child
		usage = append(usage, child.CommandName)
	}
	if len(cmdSet.ChildCommands) > 0 {
		usage = append(usage, "[subcommand]")
	}
	if cmdSet.UsageOption != "" {
		usage = append(usage, cmdSet.UsageOption)
	}
	fmt.Fprintf(out, "Usage: %s\n\n", strings.Join(usage, " "))

	if cmdSet == rootCmd {
		fmt.Fprintln(out, cmdSet.Description)
		fmt.Fprintln(out, cmdSet.FullDescription)
		fmt.Fprintln(out)
	} else if cmdSet.FullDescription != "" {
		fmt.Fprintf(out, "%sDescription:\n%s%s%s\n\n", indent, indent, indent, cmdSet.FullDescription)
	}

	if len(cmdSet.ChildCommands) > 0 {
		names := make([]string, 0, len(cmdSet.ChildCommands))
		width := 0
		for name := range cmdSet.ChildCommands {
			names = append(names, name)
			width = max(width, len(name))
		}
		sort.Strings(names)

		fmt.Fprintf(out, "%sSubcommands:\n", indent)
		for _, name := range names {
			fmt.Fprintf(out, "%s%s%-*s  - %s\n", indent, indent, width, name, cmdSet.ChildCommands[name].Description)
		}
		fmt.Fprintln(out)
	}

	writeFlagOptions(out, fs, indent)

	if cmdSet == rootCmd {
		fmt.Fprint(out, helpMenuTrailer)
	}
}

// One option as shown in help: short and long spellings sharing a usage text
type optionLine struct {
	short   string
	long    string
	usage   string
	initial string
}

func (opt optionLine) names() (joined string) {
	switch {
	case opt.short != "" && opt.long != "":
		joined = "-" + opt.short + ", --" + opt.long
	case opt.short != "":
		joined = "-" + opt.short
	default:
		// Aligned under the long names of options that have both
		joined = "    --" + opt.long
	}
	return
}

// Prints flags, folding "-a" and "--address" into one line when they share usage text
func writeFlagOptions(out io.Writer, fs *flag.FlagSet, indent string) {
	byUsage := make(map[string]*optionLine)
	fs.VisitAll(func(arg *flag.Flag) {
		opt, ok := byUsage[arg.Usage]
		if !ok {
			opt = &optionLine{usage: arg.Usage, initial: arg.DefValue}
			byUsage[arg.Usage] = opt
		}
		if len(arg.Name) == 1 {
			opt.short = arg.Name
		} else {
			opt.long = arg.Name
		}
	})

	lines := make([]optionLine, 0, len(byUsage))
	width := 0
	for _, opt := range byUsage {
		lines = append(lines, *opt)
		width = max(width, len(opt.names()))
	}
	sort.Slice(lines, func(a, b int) bool {
		return strings.ToLower(strings.TrimLeft(lines[a].names(), " -")) <
			strings.ToLower(strings.TrimLeft(lines[b].names(), " -"))
	})

	fmt.Fprintf(out, "%sOptions:\n", indent)
	for _, opt := range lines {
		desc := opt.usage
		if opt.initial != "" && opt.initial != "false" && opt.initial != "0" {
			desc += fmt.Sprintf(" [default: %s]", opt.initial)
		}
		fmt.Fprintf(out, "%s%-*s  %s\n", indent, width, opt.names(), desc)
	}
}
