package timeline

import (
	"context"
	"fmt"

	apperrors "github.com/edgard/slackarchive/internal/errors"
	"github.com/edgard/slackarchive/internal/model"
)

// PageResult is one page of a channel with its messages in ascending order.
type PageResult struct {
	Page     model.Page
	Messages []model.Message
}

// Closed reports whether the page's contents are final and cacheable.
func (r PageResult) Closed() bool {
	return r.Page.Closed()
}

// ResolveTimestampToPage returns the number of the page containing ts.
// Pages are scanned in ascending order; the scan stops as soon as ts falls
// below a page's start, since no later page can contain it.
func (e *Engine) ResolveTimestampToPage(ctx context.Context, channel string, ts float64) (int, error) {
	pages, err := e.store.ListPages(ctx, channel)
	if err != nil {
		return 0, err
	}

	for _, p := range pages {
		if ts < p.StartTS {
			break
		}
		if p.Contains(ts) {
			return p.Page, nil
		}
	}
	return 0, apperrors.NewPageNotFoundError(channel,
		fmt.Sprintf("no page contains ts %s", FormatTimestamp(ts)))
}

// FetchPage returns page n of the channel with replies and reactions.
func (e *Engine) FetchPage(ctx context.Context, channel string, n int) (PageResult, error) {
	p, err := e.store.GetPage(ctx, channel, n)
	if err != nil {
		return PageResult{}, err
	}
	if p == nil {
		return PageResult{}, apperrors.NewPageNotFoundError(channel, fmt.Sprintf("page %d does not exist", n))
	}

	msgs, err := e.store.ListMessagesInRange(ctx, channel, p.StartTS, p.EndTS)
	if err != nil {
		return PageResult{}, err
	}
	return PageResult{Page: *p, Messages: msgs}, nil
}
