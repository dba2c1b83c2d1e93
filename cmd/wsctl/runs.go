package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/abelbrown/weaksignal/internal/api"
	"github.com/abelbrown/weaksignal/internal/coord"
)

func runRuns() {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum runs to show (0 = all)")
	offline := fs.Bool("offline", false, "Read the local cache only")
	asJSON := fs.Bool("json", false, "Print runs as JSON")
	fs.Parse(os.Args[1:])

	initLogging(false)
	cfg := loadConfig()
	st := openStore(cfg)
	if st != nil {
		defer st.Close()
	}

	var lister coord.RunLister
	if !*offline {
		lister = api.NewClient(cfg.APIURL, cfg.Password, cfg.RequestsPerSecond)
	}
	msg := coord.LoadRuns(context.Background(), lister, st, *limit)
	if msg.Err != nil {
		fatalf("list runs: %v", msg.Err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(msg.Runs); err != nil {
			fatalf("%v", err)
		}
		return
	}

	if msg.Cached {
		fmt.Fprintln(os.Stderr, "(producer unreachable; showing cached runs)")
	}
	fmt.Printf("%-10s %-19s %-16s %-10s %-11s %s\n", "ID", "CREATED", "COUNTRY", "STATUS", "RISK", "HEADLINE")
	for _, r := range msg.Runs {
		created := "-"
		if r.CreatedAt > 0 {
			created = r.Created().Local().Format(time.DateTime)
		}
		headline := ""
		if r.Assessment != nil {
			headline = runewidth.Truncate(r.Assessment.Headline, 60, "…")
		}
		fmt.Printf("%-10s %-19s %s %-10s %-11s %s\n",
			r.ID, created, runewidth.FillRight(runewidth.Truncate(r.Country, 16, "…"), 16),
			r.Status, r.RiskBand(), headline)
	}
}
