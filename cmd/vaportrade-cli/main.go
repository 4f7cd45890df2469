package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var (
	errUsage      = errors.New("usage")
	errUsageShown = errors.New("usage shown")
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cli := NewCLIWithDefaults()
	defer cli.Close()

	if err := run(cli, os.Args[1:]); err != nil {
		switch {
		case errors.Is(err, errUsage):
			printUsage()
		case errors.Is(err, errUsageShown):
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(cli *CLI, args []string) error {
	arg := func(i int, usage string) (string, error) {
		if len(args) <= i {
			fmt.Fprintf(os.Stderr, "Usage: vaportrade-cli %s\n", usage)
			return "", errUsageShown
		}
		return args[i], nil
	}

	switch args[0] {
	case "status":
		return cli.Status()
	case "peers":
		return cli.Peers()
	case "trade":
		addr, err := arg(1, "trade <address>")
		if err != nil {
			return err
		}
		return cli.Trade(addr)
	case "select":
		addr, err := arg(1, "select <address>")
		if err != nil {
			return err
		}
		return cli.Select(addr)
	case "minimize":
		return cli.Minimize()
	case "close":
		return cli.CloseWindow()
	case "offer":
		path, err := arg(1, "offer <file|->")
		if err != nil {
			return err
		}
		return cli.Offer(path)
	case "lockin":
		return cli.LockIn(true)
	case "unlock":
		return cli.LockIn(false)
	case "accept":
		path := ""
		if len(args) > 1 {
			path = args[1]
		}
		return cli.Accept(path)
	case "chat":
		return cli.Chat(args[1:])
	case "more-peers":
		return cli.MorePeers()
	case "watch":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return cli.Watch(ctx)
	case "wallet-new":
		return cli.NewWallet()
	case "help", "-h", "--help":
		printUsageTo(cli.output)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		return errUsage
	}
}
