// Command wsctl is the debugging CLI for weak-signal streams.
//
// Usage:
//
//	wsctl                     Show help
//	wsctl replay <file>       Reconcile a recorded stream and print the state
//	wsctl graph <file>        Print the constellation graph of a recorded run
//	wsctl runs                List runs (producer, else local cache)
//	wsctl serve <dir>         Serve recorded streams as a fake producer
//	wsctl events              Stream journal viewer
package main

import (
	"fmt"
	"os"
)

const usage = `wsctl - weak-signal stream debugging CLI

Usage:
  wsctl <command> [flags]

Commands:
  replay    Reconcile an NDJSON or SSE recording and print the final state as JSON
  graph     Print the constellation graph (nodes and edges) of a recorded run
  runs      List runs from the producer, falling back to the local cache
  serve     Serve a directory of recordings over HTTP as server-sent events
  events    Stream journal viewer

Environment:
  WEAKSIGNAL_API_URL     Producer base URL (default http://localhost:8000)
  WEAKSIGNAL_DATA_DIR    Data directory (default ~/.weaksignal)
  WEAKSIGNAL_PASSWORD    Producer password, if the producer requires one

Run 'wsctl <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	switch cmd {
	case "replay":
		runReplay()
	case "graph":
		runGraph()
	case "runs":
		runRuns()
	case "serve":
		runServe()
	case "events":
		runEvents()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "wsctl: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
