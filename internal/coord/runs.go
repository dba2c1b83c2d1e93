package coord

import (
	"context"
	"time"

	"github.com/abelbrown/weaksignal/internal/logging"
	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/store"
	"github.com/abelbrown/weaksignal/internal/ui"
)

// listTimeout bounds one listing request.
const listTimeout = 15 * time.Second

// RunLister lists the producer's runs. *api.Client implements it.
type RunLister interface {
	ListRuns(ctx context.Context) ([]model.RunSummary, error)
}

// LoadRuns fetches the run listing from the producer and caches it. When
// the producer is unreachable the cached listing is returned instead,
// marked Cached. Either source may be nil.
func LoadRuns(ctx context.Context, lister RunLister, st *store.Store, limit int) ui.RunsLoaded {
	var apiErr error
	if lister != nil {
		listCtx, cancel := context.WithTimeout(ctx, listTimeout)
		runs, err := lister.ListRuns(listCtx)
		cancel()
		if err == nil {
			if limit > 0 && len(runs) > limit {
				runs = runs[:limit]
			}
			cacheRuns(st, runs)
			return ui.RunsLoaded{Runs: runs}
		}
		apiErr = err
		logging.Warn("list runs failed", "err", err)
	}

	if st == nil {
		return ui.RunsLoaded{Err: apiErr}
	}
	runs, err := st.ListRuns(limit)
	if err != nil {
		if apiErr != nil {
			return ui.RunsLoaded{Err: apiErr}
		}
		return ui.RunsLoaded{Err: err}
	}
	return ui.RunsLoaded{Runs: runs, Cached: true}
}

func cacheRuns(st *store.Store, runs []model.RunSummary) {
	if st == nil {
		return
	}
	for _, r := range runs {
		if err := st.SaveRun(r); err != nil {
			logging.Warn("cache run failed", "run", r.ID, "err", err)
		}
	}
}
