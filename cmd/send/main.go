package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/quantarax/relay/engine"
	"github.com/quantarax/relay/internal/cli"
	"github.com/quantarax/relay/internal/observability"
)

func main() {
	server := flag.String("server", engine.DefaultSignalServerURL, "rendezvous server URL")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: send [-server ws://host:port] <file-or-folder> [more...]")
		os.Exit(1)
	}

	if shutdown, err := observability.InitTracing(context.Background(), "relay-send"); err == nil {
		defer shutdown(context.Background())
	}
	log := observability.NewLogger("relay-send", "dev", nil)
	eng := engine.NewEngine(log)

	result, err := eng.StartSend(paths, *server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Your transfer code: %s\n", result.Code)
	fmt.Printf("Waiting for peer on local port %d...\n", result.Port)

	events, subID, ok := eng.Subscribe(result.SessionID)
	if !ok {
		fmt.Fprintln(os.Stderr, "error: session vanished immediately after start")
		os.Exit(1)
	}
	defer eng.Unsubscribe(result.SessionID, subID)

	cli.DisplayProgress(events)
}
