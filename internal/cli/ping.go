package cli

import (
	"context"
	"cromp/internal/client"
	"cromp/internal/crypto/random"
	"cromp/internal/echo"
	"cromp/internal/global"
	"cromp/internal/logctx"
	"cromp/pkg/protocol"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"
)

func PingMode(ctx context.Context, cliOpts *global.CommandSet, commandname string, args []string) {
	var address string
	var encrypt bool
	var count int
	var askToken bool
	var payloadSize int
	var timeout time.Duration

	commandFlags := flag.NewFlagSet(commandname, flag.ExitOnError)
	SetGlobalArguments(commandFlags)
	defaultAddress := net.JoinHostPort("localhost", strconv.Itoa(global.DefaultPort))
	commandFlags.StringVar(&address, "a", defaultAddress, "Server address as host:port")
	commandFlags.StringVar(&address, "address", defaultAddress, "Server address as host:port")
	commandFlags.BoolVar(&encrypt, "e", false, "Secure the channel before logging in")
	commandFlags.BoolVar(&encrypt, "encrypt", false, "Secure the channel before logging in")
	commandFlags.IntVar(&count, "n", 4, "Number of pings to send")
	commandFlags.IntVar(&count, "count", 4, "Number of pings to send")
	commandFlags.BoolVar(&askToken, "ask-token", false, "Prompt for the login token")
	commandFlags.IntVar(&payloadSize, "size", 56, "Random payload bytes per ping")
	commandFlags.DurationVar(&timeout, "timeout", global.DefaultPingTimeout, "Wait for each reply")

	commandFlags.Usage = func() {
		PrintHelpMenu(commandFlags, commandname, cliOpts)
	}
	commandFlags.Parse(args)
	logctx.SetLogLevel(ctx, global.Verbosity)

	if payloadSize < 0 || count < 1 {
		fmt.Fprintf(os.Stderr, "Error: count must be positive and size must not be negative\n")
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

	started := time.Now()
	result := conn.Connect(ctx)
	if result != protocol.OK {
		fmt.Fprintf(os.Stderr, "Error: failed to connect to %s: %v\n", address, result)
		os.Exit(1)
	}
	fmt.Printf("Connected to %s as %s in %v (encrypted: %t)\n", address, conn.Entity(), time.Since(started).Round(time.Microsecond), conn.Secured())

	failures := 0
	for i := 1; i <= count; i++ {
		payload, err := random.Bytes(payloadSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		sent := time.Now()
		reply, result := conn.SynchronousRequest(ctx, echo.NewPing(payload), timeout)
		elapsed := time.Since(sent).Round(time.Microsecond)
		if result != protocol.OK {
			failures++
			fmt.Printf("ping %d: %v\n", i, result)
			continue
		}

		blob, ok := reply.(*protocol.Blob)
		if !ok || string(blob.Data) != string(payload) {
			failures++
			fmt.Printf("ping %d: reply did not match request\n", i)
			continue
		}
		fmt.Printf("%d bytes from %s: seq=%d time=%v\n", len(blob.Data), address, i, elapsed)
	}

	conn.Logout(ctx)
	fmt.Printf("%d sent, %d failed\n", count, failures)
	if failures > 0 {
		os.Exit(1)
	}
}

// Reads the login token without echo when attached to a terminal
func readToken() (token []byte, err error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var line string
		_, err = fmt.Fscanln(os.Stdin, &line)
		if err != nil {
			err = fmt.Errorf("failed reading token from stdin: %w", err)
			return
		}
		token = []byte(strings.TrimSpace(line))
		return
	}

	fmt.Print("Token: ")
	token, err = term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		err = fmt.Errorf("failed reading token: %w", err)
		return
	}
	return
}
