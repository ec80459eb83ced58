package timeline

import (
	"context"
	"errors"

	apperrors "github.com/edgard/slackarchive/internal/errors"
	"github.com/edgard/slackarchive/internal/model"
)

// maxAdvanceAttempts bounds how often Advance re-reads the open page after
// another writer changed it.
const maxAdvanceAttempts = 10

// Advance brings the channel's open page up to date. It reports true when the
// open page overflowed and was closed, in which case a new open page exists
// and Advance should be called again.
//
// The open page is loaded, or page 1 is assumed when the channel has none.
// Up to PageCapacity+1 top-level timestamps at or after the page's start are
// read. Page 1 always reads from the beginning of the channel so that its
// start tracks the earliest message. With more than PageCapacity results the
// page closes at the PageCapacity-th timestamp and the next page starts at
// the following one, in a single transaction. A channel without messages
// gets an open page 1 starting at 0.
//
// Other processes may advance the same channel against the same database.
// The store rejects writes based on a page that changed since it was read,
// and Advance then starts over from the fresh state.
func (e *Engine) Advance(ctx context.Context, channel string) (bool, error) {
	if channel == "" {
		return false, apperrors.NewMissingChannelError()
	}

	unlock := e.pageLocks.Lock(channel)
	defer unlock()

	var err error
	for attempt := 1; attempt <= maxAdvanceAttempts; attempt++ {
		var closed bool
		closed, err = e.advanceOnce(ctx, channel)
		if !errors.Is(err, apperrors.ErrPageConflict) {
			return closed, err
		}
		e.log.Debug().Err(err).Str("channel", channel).Int("attempt", attempt).Msg("Open page changed, retrying")
	}
	return false, err
}

func (e *Engine) advanceOnce(ctx context.Context, channel string) (bool, error) {
	page, err := e.store.GetOpenPage(ctx, channel)
	if err != nil {
		return false, err
	}
	virtual := page == nil
	if virtual {
		page = &model.Page{Channel: channel, Page: 1}
	}

	from := page.StartTS
	if page.Page == 1 {
		from = 0
	}

	tss, err := e.store.ListTimestampsFrom(ctx, channel, from, PageCapacity+1)
	if err != nil {
		return false, err
	}
	if len(tss) == 0 {
		if !virtual {
			return false, nil
		}
		return false, e.store.SavePage(ctx, *page)
	}

	if page.Page == 1 || page.StartTS == 0 {
		page.StartTS = tss[0]
	}

	if len(tss) > PageCapacity {
		end := tss[PageCapacity-1]
		page.EndTS = &end
		next := model.Page{Channel: channel, Page: page.Page + 1, StartTS: tss[PageCapacity]}

		if err := e.store.SplitPage(ctx, *page, next); err != nil {
			return false, err
		}
		e.metrics.PageClosed()
		e.log.Info().
			Str("channel", channel).
			Int("page", page.Page).
			Float64("start_ts", page.StartTS).
			Float64("end_ts", end).
			Msg("Page closed")
		return true, nil
	}

	if err := e.store.SavePage(ctx, *page); err != nil {
		return false, err
	}
	return false, nil
}

// AdvanceAll runs Advance until the channel has no overflowing page and
// returns how many pages were closed.
func (e *Engine) AdvanceAll(ctx context.Context, channel string) (int, error) {
	closed := 0
	for {
		if err := ctx.Err(); err != nil {
			return closed, err
		}
		more, err := e.Advance(ctx, channel)
		if err != nil {
			return closed, err
		}
		if !more {
			return closed, nil
		}
		closed++
	}
}
