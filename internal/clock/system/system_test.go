package system

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after))
}

func TestClockAfter(t *testing.T) {
	t.Parallel()

	clk := New()
	select {
	case <-clk.After(0):
	case <-time.After(time.Second):
		t.Fatal("zero duration should fire immediately")
	}

	start := time.Now()
	<-clk.After(20 * time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestClockNowFormatsAsHTTPDate(t *testing.T) {
	t.Parallel()

	formatted := New().Now().Format(http.TimeFormat)
	parsed, err := http.ParseTime(formatted)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), parsed, 2*time.Second)
}
