package scenario

import (
	"context"
	"fmt"

	"github.com/gravitytiming/core/internal/engine"
	"github.com/gravitytiming/core/internal/harness"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// expectedElapsed is spec §8 scenario 1's per-bib elapsed seconds.
// The original 44-punch log isn't available to this fixture; each
// bib is instead driven by one representative start/finish pair
// timed to reproduce the same elapsed result.
var expectedElapsed = map[int]float64{
	1: 20, 2: 58, 3: 42, 4: 66, 5: 336, 6: 65, 7: 66, 8: 46,
}

func runEnduroEightRider(ctx context.Context, st *store.Store, eng *engine.Engine) (*harness.Result, error) {
	result := harness.NewResult()

	f, err := newFixture(ctx, st, ir.FormatEnduro, 1, nil)
	if err != nil {
		return nil, err
	}

	start := mustTime("2026-06-01 10:00:00")
	for bib := 1; bib <= 8; bib++ {
		chipID := int64(1000 + bib)
		entryID, err := f.addEntry(ctx, st, bib, chipID)
		if err != nil {
			return nil, err
		}

		if _, err := eng.IngestPunch(ctx, f.eventID, chipID, f.startControl, start, ir.SourceManual, nil); err != nil {
			return nil, fmt.Errorf("bib %d start: %w", bib, err)
		}
		finish := start.Add(durationSeconds(expectedElapsed[bib]))
		res, err := eng.IngestPunch(ctx, f.eventID, chipID, f.finishControl, finish, ir.SourceManual, nil)
		if err != nil {
			return nil, fmt.Errorf("bib %d finish: %w", bib, err)
		}
		if res.StageRun == nil || res.StageRun.Status != ir.RunOK {
			result.AddError(fmt.Sprintf("bib %d: expected run status ok, got %+v", bib, res.StageRun))
			continue
		}
		got := *res.StageRun.ElapsedSeconds
		want := expectedElapsed[bib]
		if got != want {
			result.AddError(fmt.Sprintf("bib %d: expected elapsed %.0fs, got %.2fs", bib, want, got))
		}
		result.State[fmt.Sprintf("bib_%d_entry_id", bib)] = entryID
	}

	return result, nil
}
