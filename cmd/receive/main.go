package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/quantarax/relay/engine"
	"github.com/quantarax/relay/internal/cli"
	"github.com/quantarax/relay/internal/observability"
)

func main() {
	server := flag.String("server", engine.DefaultSignalServerURL, "rendezvous server URL")
	saveDir := flag.String("save-dir", ".", "directory to write received files into")
	prompt := flag.Bool("prompt", false, "ask y/n before accepting the incoming file offer")
	flag.Parse()

	args := flag.Args()
	var transferCode string
	if len(args) > 0 {
		transferCode = args[0]
	} else {
		fmt.Print("Enter transfer code: ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		transferCode = strings.TrimSpace(line)
	}

	if shutdown, err := observability.InitTracing(context.Background(), "relay-receive"); err == nil {
		defer shutdown(context.Background())
	}
	log := observability.NewLogger("relay-receive", "dev", nil)
	eng := engine.NewEngine(log)

	sessionID, err := eng.StartReceive(transferCode, *saveDir, *server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	events, subID, ok := eng.Subscribe(sessionID)
	if !ok {
		fmt.Fprintln(os.Stderr, "error: session vanished immediately after start")
		os.Exit(1)
	}
	defer eng.Unsubscribe(sessionID, subID)

	offerSeen := false
	stdin := bufio.NewReader(os.Stdin)

	for event := range events {
		if event.Kind == engine.EventFileOffer && !offerSeen {
			offerSeen = true
			fmt.Printf("incoming offer: %d file(s)\n", len(event.Files))
			for _, f := range event.Files {
				fmt.Printf("  %s (%d bytes)\n", f.Name, f.Size)
			}
			accept := true
			if *prompt {
				fmt.Print("accept? [y/N] ")
				line, _ := stdin.ReadString('\n')
				accept = strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y")
			}
			if err := eng.AcceptTransfer(sessionID, accept); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			if !accept {
				fmt.Println("declined")
				return
			}
			continue
		}
		cli.DisplayOne(event)
		if event.Kind == engine.EventTransferComplete {
			return
		}
		if event.Kind == engine.EventError {
			os.Exit(1)
		}
	}
}
