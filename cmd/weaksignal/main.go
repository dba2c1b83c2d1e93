// Command weaksignal is the terminal dashboard for weak-signal analysis
// runs.
//
// Usage:
//
//	weaksignal                          Browse runs from the producer
//	weaksignal -run a1b2c3d4            Watch a run
//	weaksignal -country Kenya           Start a new run and watch it
//	weaksignal -fixtures ./testdata -run demo
//	                                    Replay recorded streams offline
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/weaksignal/internal/api"
	"github.com/abelbrown/weaksignal/internal/config"
	"github.com/abelbrown/weaksignal/internal/coord"
	"github.com/abelbrown/weaksignal/internal/logging"
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/otel"
	"github.com/abelbrown/weaksignal/internal/reconcile"
	"github.com/abelbrown/weaksignal/internal/store"
	"github.com/abelbrown/weaksignal/internal/stream"
	"github.com/abelbrown/weaksignal/internal/ui"
)

// runListLimit caps the runs tab.
const runListLimit = 100

func main() {
	configPath := flag.String("config", "", "Config file (default <data dir>/config.json)")
	runID := flag.String("run", "", "Run id to open on start")
	fixtures := flag.String("fixtures", "", "Replay NDJSON fixtures from this directory instead of the producer")
	country := flag.String("country", "", "Start a new run for this country")
	scope := flag.String("scope", "national", "Scope of a new run: national or department")
	department := flag.String("department", "", "Department name for department-scoped runs")
	horizon := flag.Int("horizon", 5, "Horizon of a new run in years")
	domains := flag.String("domains", "", "Comma-separated domains for a new run")
	whatIf := flag.String("whatif", "", "Semicolon-separated scenarios to start once the run completes")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.Path(config.DefaultDataDir())
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weaksignal: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "weaksignal: create data directory: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.DataDir, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "weaksignal: %v\n", err)
		os.Exit(1)
	}
	defer logging.Close()

	// Journal: JSONL on disk when enabled, always feeding the debug overlay.
	journal := otel.NewNullLogger()
	if cfg.Journal {
		f, err := os.OpenFile(cfg.JournalPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logging.Warn("journal unavailable", "path", cfg.JournalPath(), "err", err)
		} else {
			defer f.Close()
			journal = otel.NewLogger(f)
		}
	}
	ring := otel.NewRingBuffer(512)
	journal.SetRingBuffer(ring)
	defer journal.Close()
	journal.Info(otel.KindStartup, "main", "dashboard starting")

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		logging.Fatal("failed to open cache", "path", cfg.StorePath(), "err", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := api.NewClient(cfg.APIURL, cfg.Password, cfg.RequestsPerSecond)
	client.SetJournal(journal)

	var upstream stream.Transport = stream.NewHTTPTransport(cfg.APIURL, nil)
	var lister coord.RunLister = client
	var starter coord.ScenarioStarter = client
	if *fixtures != "" {
		upstream = stream.FileTransport{Dir: *fixtures}
		lister, starter = nil, nil
	}
	transport := store.CachedTransport{Store: st, Next: upstream, Journal: journal}

	if *country != "" {
		if *fixtures != "" {
			logging.Fatal("-country needs the producer; drop -fixtures")
		}
		id, err := client.StartRun(ctx, model.RunConfig{
			Country:        *country,
			Scope:          *scope,
			DepartmentName: *department,
			Horizon:        *horizon,
			Domains:        splitList(*domains, ","),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "weaksignal: start run: %v\n", err)
			os.Exit(1)
		}
		*runID = id
	}

	sessions := &sessionHolder{}
	defer sessions.close()

	var program *tea.Program
	open := func(id string) error {
		s, err := coord.NewSession(ctx, id, coord.Options{
			Transport:     transport,
			Store:         st,
			Starter:       starter,
			Sender:        program,
			Journal:       journal,
			ScenarioLimit: cfg.ScenarioLimit,
		})
		if err != nil {
			return err
		}
		sessions.swap(s)
		return nil
	}

	actions := ui.Actions{
		LoadRuns: func() tea.Cmd {
			return func() tea.Msg {
				return coord.LoadRuns(ctx, lister, st, runListLimit)
			}
		},
		OpenRun: func(id string) tea.Cmd {
			return func() tea.Msg {
				return ui.RunOpened{RunID: id, Err: open(id)}
			}
		},
	}
	if starter != nil {
		actions.StartScenario = func(text string) tea.Cmd {
			return func() tea.Msg {
				s := sessions.current()
				if s == nil {
					return ui.ScenarioStarted{Text: text, Err: fmt.Errorf("no run open")}
				}
				key, err := s.StartScenario(ctx, text)
				return ui.ScenarioStarted{Text: text, Key: key, Err: err}
			}
		}
	}

	app := ui.NewApp(actions, ui.Options{
		SortKey:     cfg.SortKey(),
		ContentTail: cfg.UI.ContentTail,
		Ring:        ring,
	})
	program = tea.NewProgram(app, tea.WithAltScreen())

	if *runID != "" {
		if err := open(*runID); err != nil {
			logging.Fatal("failed to open run", "run", *runID, "err", err)
		}
		if texts := splitList(*whatIf, ";"); len(texts) > 0 && starter != nil {
			s := sessions.current()
			go func() {
				select {
				case <-s.Done():
				case <-ctx.Done():
					return
				}
				if s.State().Phase == reconcile.PhaseComplete {
					s.StartScenarios(ctx, texts...)
				}
			}()
		}
	}

	if _, err := program.Run(); err != nil {
		logging.Error("program exited with error", "err", err)
	}
	journal.Info(otel.KindShutdown, "main", "dashboard stopped")
}

// sessionHolder keeps the session of the run on screen. Opening another
// run closes the previous session.
type sessionHolder struct {
	mu sync.Mutex
	s  *coord.Session
}

func (h *sessionHolder) swap(s *coord.Session) {
	h.mu.Lock()
	prev := h.s
	h.s = s
	h.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (h *sessionHolder) current() *coord.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.s
}

func (h *sessionHolder) close() { h.swap(nil) }

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
