package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.Inserted("message")
	m.Inserted("message")
	m.Inserted("reply")
	m.Reaction(true)
	m.Reaction(false)
	m.PageClosed()

	assert.InDelta(t, 2, testutil.ToFloat64(m.inserted.WithLabelValues("message")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.inserted.WithLabelValues("reply")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.reactions.WithLabelValues("add")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.pagesClosed), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.Inserted("message")
		m.Orphaned()
		m.Reaction(true)
		m.Event("slack", "message")
	})
}

func TestHandlerExposesCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.Orphaned()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "slackarchive_orphaned_replies_total 1")
}
