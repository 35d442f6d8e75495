package cli

import (
	"context"
	"cromp/internal/client"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/internal/transfer"
	"cromp/internal/transfer/download"
	"cromp/pkg/protocol"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

func TransferMode(ctx context.Context, cliOpts *global.CommandSet, commandname string, args []string) {
	var address string
	var encrypt bool
	var askToken bool
	var mapping string
	var remotePath string
	var destination string
	var listOnly bool
	var include string
	var changedOnly bool
	var dryRun bool
	var chunk int
	var timeout time.Duration

	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	defaultAddress := net.JoinHostPort("localhost", strconv.Itoa(global.DefaultPort))
	commandFlags.StringVar(&address, "a", defaultAddress, "Server address as host:port")
	commandFlags.StringVar(&address, "address", defaultAddress, "Server address as host:port")
	commandFlags.BoolVar(&encrypt, "e", false, "Secure the channel before logging in")
	commandFlags.BoolVar(&encrypt, "encrypt", false, "Secure the channel before logging in")
	commandFlags.BoolVar(&askToken, "ask-token", false, "Prompt for the login token")
	commandFlags.StringVar(&mapping, "m", "", "Name the server publishes the directory under")
	commandFlags.StringVar(&mapping, "mapping", "", "Name the server publishes the directory under")
	commandFlags.StringVar(&remotePath, "p", "", "File or directory below the mapping root")
	commandFlags.StringVar(&remotePath, "path", "", "File or directory below the mapping root")
	commandFlags.StringVar(&destination, "d", ".", "Local directory receiving the copy")
	commandFlags.StringVar(&destination, "destination", ".", "Local directory receiving the copy")
	commandFlags.BoolVar(&listOnly, "list", false, "Print the remote tree instead of copying it")
	commandFlags.StringVar(&include, "include", "", "Comma separated file name suffixes to copy")
	commandFlags.BoolVar(&changedOnly, "changed-only", false, "Skip local files with matching size and modification time")
	commandFlags.BoolVar(&dryRun, "dry-run", false, "Count what would be copied without writing")
	commandFlags.IntVar(&chunk, "chunk", transfer.DefaultChunk, "Bytes requested per round trip")
	commandFlags.DurationVar(&timeout, "timeout", 30*time.Second, "Wait for each reply")

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, cliOpts)
	}
	commandFlags.Parse(args)
	logctx.SetLogLevel(ctx, global.Verbosity)

	if mapping == "" {
		fmt.Fprintf(os.Stderr, "Error: a mapping name is required\n")
		os.Exit(1)
	}

	var token []byte
	if askToken {
		var err error
		token, err = readToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	conn, err := client.New(ctx, client.Config{
		Address:      address,
		Encrypt:      encrypt,
		Verification: token,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	result := conn.Connect(ctx)
	if result != protocol.OK {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to %s: %v\n", address, result)
		os.Exit(1)
	}
	defer conn.Logout(ctx)

	downloader, err := download.NewDownloader(conn, chunk, timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer downloader.Close()

	if listOnly {
		entries, complete, result := downloader.List(ctx, mapping, remotePath)
		if result != protocol.OK {
			fmt.Fprintf(os.Stderr, "Error: failed to list %s:%s: %v\n", mapping, remotePath, result)
			os.Exit(1)
		}
		writeListing(os.Stdout, entries, complete)
		return
	}

	started := time.Now()
	copied, result := downloader.CopyTree(ctx, mapping, remotePath, destination, download.Options{
		Include:       splitSuffixes(include),
		SkipUnchanged: changedOnly,
		OnlyReport:    dryRun,
	})
	switch result {
	case protocol.OK:
	case protocol.Partial:
		fmt.Fprintf(os.Stderr, "Warning: server truncated the listing, the copy is incomplete\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: copy of %s:%s stopped after %d files: %v\n", mapping, remotePath, copied, result)
		os.Exit(1)
	}

	verb := "Copied"
	if dryRun {
		verb = "Would copy"
	}
	fmt.Printf("%s %d files into %s in %v\n", verb, copied, destination, time.Since(started).Round(time.Millisecond))
}

func writeListing(out io.Writer, entries []transfer.Entry, complete bool) {
	for _, entry := range entries {
		if entry.Dir {
			fmt.Fprintf(out, "%12s  %s  %s/\n", "-", entry.Modified.Format(time.DateTime), entry.Path)
			continue
		}
		fmt.Fprintf(out, "%12d  %s  %s\n", entry.Size, entry.Modified.Format(time.DateTime), entry.Path)
	}
	if !complete {
		fmt.Fprintf(out, "(listing truncated after %d entries)\n", len(entries))
	}
}

func splitSuffixes(list string) (suffixes []string) {
	for _, suffix := range strings.Split(list, ",") {
		suffix = strings.TrimSpace(suffix)
		if suffix != "" {
			suffixes = append(suffixes, suffix)
		}
	}
	return
}
