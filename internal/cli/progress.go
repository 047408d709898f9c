// Package cli holds the terminal progress display shared by the send and
// receive command-line entrypoints.
package cli

import (
	"fmt"
	"os"

	"github.com/quantarax/relay/engine"
)

// DisplayOne prints one progress event. The receive CLI handles FileOffer
// with its own accept/decline prompt and does not pass it here.
func DisplayOne(event engine.ProgressEvent) {
	switch event.Kind {
	case engine.EventStateChanged:
		fmt.Printf("state: %s\n", event.State)
	case engine.EventConnectionTypeChanged:
		fmt.Printf("connected via %s\n", event.ConnectionType)
	case engine.EventFileOffer:
		fmt.Printf("offer: %d file(s)\n", len(event.Files))
		for _, f := range event.Files {
			fmt.Printf("  %s (%d bytes)\n", f.Name, f.Size)
		}
	case engine.EventTransferProgress:
		fmt.Printf("\r%-40s %6.1f%%  %8.0f B/s", event.CurrentFile, event.Percent, event.SpeedBps)
	case engine.EventFileCompleted:
		fmt.Printf("\ndone: %s\n", event.Name)
	case engine.EventTransferComplete:
		fmt.Printf("\ntransfer complete: %d file(s), %d bytes in %.1fs (avg %.0f B/s)\n",
			event.FileCount, event.TotalBytes, event.DurationSeconds, event.AverageSpeed)
	case engine.EventError:
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", event.Message)
	}
}

// DisplayProgress drains events until a TransferComplete or Error event,
// printing each with DisplayOne, and exits the process with a non-zero
// status on Error.
func DisplayProgress(events <-chan engine.ProgressEvent) {
	for event := range events {
		DisplayOne(event)
		switch event.Kind {
		case engine.EventTransferComplete:
			return
		case engine.EventError:
			os.Exit(1)
		}
	}
}
