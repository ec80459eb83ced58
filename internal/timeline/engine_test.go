package timeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/slackarchive/internal/database"
	apperrors "github.com/edgard/slackarchive/internal/errors"
	"github.com/edgard/slackarchive/internal/metrics"
	"github.com/edgard/slackarchive/internal/model"
)

func newTestEngine(t *testing.T) (*Engine, database.Store) {
	t.Helper()
	log := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "timeline.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db, log) })
	store := database.NewStore(db, log)
	return NewEngine(store, log, metrics.New()), store
}

// seed inserts top-level messages with timestamps from..to (inclusive, step 1).
func seed(t *testing.T, e *Engine, channel string, from, to int) {
	t.Helper()
	var msgs []model.Message
	for i := from; i <= to; i++ {
		msgs = append(msgs, model.Message{Channel: channel, TS: float64(i), Text: fmt.Sprintf("m%d", i)})
	}
	report, err := e.Insert(context.Background(), Classify(msgs))
	require.NoError(t, err)
	require.Empty(t, report.Duplicates)
}

func checkPageInvariants(t *testing.T, store database.Store, channel string) []model.Page {
	t.Helper()
	ctx := context.Background()

	pages, err := store.ListPages(ctx, channel)
	require.NoError(t, err)

	open := 0
	for i, p := range pages {
		assert.Equal(t, i+1, p.Page, "page numbers must be gap-free")

		msgs, err := store.ListMessagesInRange(ctx, channel, p.StartTS, p.EndTS)
		require.NoError(t, err)
		if p.Closed() {
			assert.Len(t, msgs, PageCapacity, "closed page %d", p.Page)
			assert.InDelta(t, msgs[len(msgs)-1].TS, *p.EndTS, 0)
		} else {
			open++
			assert.LessOrEqual(t, len(msgs), PageCapacity)
		}
		if i > 0 {
			prev := pages[i-1]
			require.NotNil(t, prev.EndTS)
			assert.Greater(t, p.StartTS, *prev.EndTS, "pages must not overlap")

			between, err := store.ListTimestampsFrom(ctx, channel, *prev.EndTS, 2)
			require.NoError(t, err)
			require.Len(t, between, 2)
			assert.InDelta(t, p.StartTS, between[1], 0, "next page must start at the following message")
		}
	}
	assert.LessOrEqual(t, open, 1, "at most one open page")
	return pages
}

func TestSimpleSplit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, store := newTestEngine(t)

	seed(t, e, "C1", 1, 150)

	more, err := e.Advance(ctx, "C1")
	require.NoError(t, err)
	assert.True(t, more)
	more, err = e.Advance(ctx, "C1")
	require.NoError(t, err)
	assert.False(t, more)

	pages := checkPageInvariants(t, store, "C1")
	require.Len(t, pages, 2)
	assert.InDelta(t, 1, pages[0].StartTS, 0)
	assert.InDelta(t, 100, *pages[0].EndTS, 0)
	assert.InDelta(t, 101, pages[1].StartTS, 0)
	assert.Nil(t, pages[1].EndTS)

	p2, err := e.FetchPage(ctx, "C1", 2)
	require.NoError(t, err)
	assert.Len(t, p2.Messages, 50)
	assert.False(t, p2.Closed())

	ch, err := store.GetChannel(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 2, ch.Pages)
}

func TestAdvanceAllOnLargeBackfill(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, store := newTestEngine(t)

	seed(t, e, "C1", 1, 1000)

	closed, err := e.AdvanceAll(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 9, closed)

	pages := checkPageInvariants(t, store, "C1")
	require.Len(t, pages, 10)
	assert.InDelta(t, 901, pages[9].StartTS, 0)

	last, err := e.FetchPage(ctx, "C1", 10)
	require.NoError(t, err)
	assert.Len(t, last.Messages, PageCapacity, "a full page stays open until it overflows")
	assert.False(t, last.Closed())

	seed(t, e, "C1", 1001, 1001)
	more, err := e.Advance(ctx, "C1")
	require.NoError(t, err)
	assert.True(t, more)

	pages = checkPageInvariants(t, store, "C1")
	require.Len(t, pages, 11)
	assert.InDelta(t, 1001, pages[10].StartTS, 0)
}

func TestIdempotentReadvance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, store := newTestEngine(t)

	seed(t, e, "C1", 1, 250)
	_, err := e.AdvanceAll(ctx, "C1")
	require.NoError(t, err)

	before, err := store.ListPages(ctx, "C1")
	require.NoError(t, err)

	more, err := e.Advance(ctx, "C1")
	require.NoError(t, err)
	assert.False(t, more)
	closed, err := e.AdvanceAll(ctx, "C1")
	require.NoError(t, err)
	assert.Zero(t, closed)

	after, err := store.ListPages(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIncrementalMatchesBulk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, store := newTestEngine(t)

	for i := 1; i <= 230; i++ {
		seed(t, e, "live", i, i)
		_, err := e.Advance(ctx, "live")
		require.NoError(t, err)
	}
	seed(t, e, "bulk", 1, 230)
	_, err := e.AdvanceAll(ctx, "bulk")
	require.NoError(t, err)

	live := checkPageInvariants(t, store, "live")
	bulk := checkPageInvariants(t, store, "bulk")
	require.Len(t, live, len(bulk))
	for i := range live {
		assert.InDelta(t, bulk[i].StartTS, live[i].StartTS, 0)
		assert.Equal(t, bulk[i].EndTS, live[i].EndTS)
	}
}

func TestAdvanceEmptyChannelOpensFirstPage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, store := newTestEngine(t)

	require.NoError(t, store.UpsertChannel(ctx, &model.Channel{ID: "empty", Name: "empty"}))
	more, err := e.Advance(ctx, "empty")
	require.NoError(t, err)
	assert.False(t, more)

	pages, err := store.ListPages(ctx, "empty")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Page)
	assert.Zero(t, pages[0].StartTS)
	assert.False(t, pages[0].Closed())

	ch, err := store.GetChannel(ctx, "empty")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, 1, ch.Pages)

	page, err := e.FetchPage(ctx, "empty", 1)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.False(t, page.Closed())

	seed(t, e, "empty", 7, 9)
	_, err = e.Advance(ctx, "empty")
	require.NoError(t, err)
	open, err := store.GetOpenPage(ctx, "empty")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.InDelta(t, 7, open.StartTS, 0, "first page start follows the first message")

	_, err = e.Advance(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrMissingChannel)
}

// interleavingStore runs before once, ahead of the first SavePage, to let
// another writer change the pages between the engine's read and its write.
type interleavingStore struct {
	database.Store
	once   sync.Once
	before func()
}

func (s *interleavingStore) SavePage(ctx context.Context, p model.Page) error {
	s.once.Do(s.before)
	return s.Store.SavePage(ctx, p)
}

func TestAdvanceAcrossEnginesSharingOneDatabase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "shared.db")

	dbA, err := database.NewDB(path, log)
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(dbA, log) })
	dbB, err := database.NewDB(path, log)
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(dbB, log) })

	storeA := database.NewStore(dbA, log)
	other := NewEngine(database.NewStore(dbB, log), log, nil)
	seed(t, other, "C1", 1, 100)

	interleaved := &interleavingStore{Store: storeA}
	interleaved.before = func() {
		seed(t, other, "C1", 101, 101)
		closed, err := other.AdvanceAll(ctx, "C1")
		require.NoError(t, err)
		require.Equal(t, 1, closed)
	}
	e := NewEngine(interleaved, log, nil)

	more, err := e.Advance(ctx, "C1")
	require.NoError(t, err)
	assert.False(t, more)

	pages := checkPageInvariants(t, storeA, "C1")
	require.Len(t, pages, 2)
	require.NotNil(t, pages[0].EndTS)
	assert.InDelta(t, 100, *pages[0].EndTS, 0)
	assert.InDelta(t, 101, pages[1].StartTS, 0)

	n, err := e.ResolveTimestampToPage(ctx, "C1", 101)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first, err := e.FetchPage(ctx, "C1", 1)
	require.NoError(t, err)
	assert.Len(t, first.Messages, PageCapacity)
	assert.True(t, first.Closed())
}

func TestConcurrentAdvanceAcrossEngines(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "shared.db")

	var engines []*Engine
	var store database.Store
	for i := 0; i < 3; i++ {
		db, err := database.NewDB(path, log)
		require.NoError(t, err)
		t.Cleanup(func() { database.CloseDB(db, log) })
		store = database.NewStore(db, log)
		engines = append(engines, NewEngine(store, log, nil))
	}
	seed(t, engines[0], "C1", 1, 520)

	var wg sync.WaitGroup
	errs := make(chan error, len(engines))
	for _, e := range engines {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			if _, err := e.AdvanceAll(ctx, "C1"); err != nil {
				errs <- err
			}
		}(e)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	pages := checkPageInvariants(t, store, "C1")
	assert.Len(t, pages, 6)
}

func TestFirstPageTracksEarliestMessage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, store := newTestEngine(t)

	seed(t, e, "C1", 50, 60)
	_, err := e.Advance(ctx, "C1")
	require.NoError(t, err)
	seed(t, e, "C1", 10, 20)
	_, err = e.Advance(ctx, "C1")
	require.NoError(t, err)

	open, err := store.GetOpenPage(ctx, "C1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.InDelta(t, 10, open.StartTS, 0)
}

func TestConcurrentAdvanceIsSerialized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, store := newTestEngine(t)

	seed(t, e, "C1", 1, 520)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.AdvanceAll(ctx, "C1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	pages := checkPageInvariants(t, store, "C1")
	assert.Len(t, pages, 6)
}

func TestRoundTripLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t)

	seed(t, e, "C1", 1, 345)
	_, err := e.AdvanceAll(ctx, "C1")
	require.NoError(t, err)

	for _, tsv := range []float64{1, 57, 100, 101, 200, 201, 300, 301, 345} {
		n, err := e.ResolveTimestampToPage(ctx, "C1", tsv)
		require.NoError(t, err, "ts %v", tsv)

		page, err := e.FetchPage(ctx, "C1", n)
		require.NoError(t, err)
		found := false
		for _, m := range page.Messages {
			if m.TS == tsv {
				found = true
				break
			}
		}
		assert.True(t, found, "ts %v not in page %d", tsv, n)
	}

	n, err := e.ResolveTimestampToPage(ctx, "C1", 150)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "resolve returns the page number")
}

func TestResolveStopsBelowFirstPage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t)

	seed(t, e, "C1", 10, 20)
	_, err := e.Advance(ctx, "C1")
	require.NoError(t, err)

	_, err = e.ResolveTimestampToPage(ctx, "C1", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPageNotFound)

	_, err = e.ResolveTimestampToPage(ctx, "nochannel", 5)
	assert.ErrorIs(t, err, apperrors.ErrPageNotFound)

	_, err = e.FetchPage(ctx, "C1", 9)
	assert.ErrorIs(t, err, apperrors.ErrPageNotFound)
}

func TestReplyMergeDoesNotCountTowardCapacity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, store := newTestEngine(t)

	seed(t, e, "C1", 1, 100)
	var replies []model.Message
	for i := 0; i < 30; i++ {
		replies = append(replies, model.Message{Channel: "C1", TS: 100.001 + float64(i)/1000, ThreadTS: ts(50)})
	}
	report, err := e.Insert(ctx, Classify(replies))
	require.NoError(t, err)
	assert.Equal(t, 30, report.Replies)
	assert.Empty(t, report.Channels, "replies never touch pagination")

	more, err := e.Advance(ctx, "C1")
	require.NoError(t, err)
	assert.False(t, more)

	page, err := e.FetchPage(ctx, "C1", 1)
	require.NoError(t, err)
	require.Len(t, page.Messages, 100)
	assert.Len(t, page.Messages[49].Replies, 30)

	pages := checkPageInvariants(t, store, "C1")
	assert.Len(t, pages, 1)
}

func TestOrphanedReply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, store := newTestEngine(t)

	seed(t, e, "C1", 1, 3)
	report, err := e.Insert(ctx, Classify([]model.Message{
		{Channel: "C1", TS: 10, ThreadTS: ts(9)},
		{Channel: "C1", TS: 11, ThreadTS: ts(2)},
	}))
	require.NoError(t, err, "orphans are not a batch failure")
	require.Len(t, report.Orphaned, 1)
	assert.ErrorIs(t, report.Orphaned[0], apperrors.ErrOrphanedReply)
	assert.Equal(t, 1, report.Replies)

	r, err := store.GetReply(ctx, "C1", 10)
	require.NoError(t, err)
	assert.Nil(t, r, "orphan must not be stored")

	loc, err := e.Locate(ctx, "C1", 10)
	require.NoError(t, err)
	assert.Equal(t, NotFound, loc.Kind)
}

func TestInsertReportsDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t)

	seed(t, e, "C1", 1, 2)
	report, err := e.Insert(ctx, Classify([]model.Message{
		{Channel: "C1", TS: 2},
		{Channel: "C1", TS: 3},
		{Channel: "C2", TS: 1},
	}))
	require.NoError(t, err)
	require.Len(t, report.Duplicates, 1)
	assert.ErrorIs(t, report.Duplicates[0], apperrors.ErrDuplicateTimestamp)
	assert.Equal(t, 2, report.Messages)
	assert.Equal(t, []string{"C1", "C2"}, report.Channels)
}

func TestLocateAndEdit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t)

	seed(t, e, "C1", 1, 1)
	_, err := e.Insert(ctx, Classify([]model.Message{{Channel: "C1", TS: 1.5, ThreadTS: ts(1), Text: "reply"}}))
	require.NoError(t, err)

	loc, err := e.Locate(ctx, "C1", 1)
	require.NoError(t, err)
	assert.Equal(t, TopLevel, loc.Kind)
	require.NotNil(t, loc.Message)

	loc, err = e.Locate(ctx, "C1", 1.5)
	require.NoError(t, err)
	assert.Equal(t, InReply, loc.Kind)
	require.NotNil(t, loc.Reply)

	require.NoError(t, e.Edit(ctx, "C1", 1, "parent edited"))
	require.NoError(t, e.Edit(ctx, "C1", 1.5, "reply edited"))

	loc, err = e.Locate(ctx, "C1", 1)
	require.NoError(t, err)
	assert.Equal(t, "parent edited", loc.Message.Text)
	loc, err = e.Locate(ctx, "C1", 1.5)
	require.NoError(t, err)
	assert.Equal(t, "reply edited", loc.Reply.Text)

	err = e.Edit(ctx, "C1", 99, "nope")
	assert.ErrorIs(t, err, apperrors.ErrTargetNotFound)
	assert.Equal(t, apperrors.CodeTargetNotFound, apperrors.Code(err))
}

func TestApplyReactionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t)

	seed(t, e, "C1", 1, 1)

	require.NoError(t, e.ApplyReaction(ctx, "C1", 1, "+1", "A", true))
	require.NoError(t, e.ApplyReaction(ctx, "C1", 1, "+1", "B", true))
	require.NoError(t, e.ApplyReaction(ctx, "C1", 1, "+1", "B", true))
	require.NoError(t, e.ApplyReaction(ctx, "C1", 1, "+1", "A", false))

	loc, err := e.Locate(ctx, "C1", 1)
	require.NoError(t, err)
	assert.Equal(t, []model.Reaction{{Name: "+1", Users: []string{"B"}, Count: 1}}, loc.Message.Reactions)

	require.NoError(t, e.ApplyReaction(ctx, "C1", 1, "+1", "B", false))
	require.NoError(t, e.ApplyReaction(ctx, "C1", 1, "tada", "B", false), "removing unknown reaction is a no-op")

	loc, err = e.Locate(ctx, "C1", 1)
	require.NoError(t, err)
	assert.Empty(t, loc.Message.Reactions)

	err = e.ApplyReaction(ctx, "C1", 42, "+1", "A", true)
	assert.ErrorIs(t, err, apperrors.ErrTargetNotFound)
}

func TestApplyReactionOnReply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t)

	seed(t, e, "C1", 1, 1)
	_, err := e.Insert(ctx, Classify([]model.Message{{Channel: "C1", TS: 2, ThreadTS: ts(1)}}))
	require.NoError(t, err)

	require.NoError(t, e.ApplyReaction(ctx, "C1", 2, "eyes", "U1", true))

	_, err = e.Advance(ctx, "C1")
	require.NoError(t, err)
	page, err := e.FetchPage(ctx, "C1", 1)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Len(t, page.Messages[0].Replies, 1)
	assert.Equal(t, 1, page.Messages[0].Replies[0].Reactions[0].Count)
	assert.Empty(t, page.Messages[0].Reactions)
}

func TestConcurrentReactionsKeepAggregateConsistent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, _ := newTestEngine(t)

	seed(t, e, "C1", 1, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, e.ApplyReaction(ctx, "C1", 1, "+1", fmt.Sprintf("U%d", i), true))
		}(i)
	}
	wg.Wait()

	loc, err := e.Locate(ctx, "C1", 1)
	require.NoError(t, err)
	require.Len(t, loc.Message.Reactions, 1)
	assert.Equal(t, 20, loc.Message.Reactions[0].Count)
	assert.Len(t, loc.Message.Reactions[0].Users, 20)
}
