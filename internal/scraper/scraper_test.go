package scraper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource simulates an infinite-scroll feed: each Reveal appends the next
// prepared chunk of cards; once the chunks run out the page stops growing.
type fakeSource struct {
	chunks  [][]string
	visible []string
	reveals int
	closed  bool
}

func newFakeSource(chunks ...[]string) *fakeSource {
	src := &fakeSource{chunks: chunks}
	if len(chunks) > 0 {
		src.visible = append(src.visible, chunks[0]...)
		src.chunks = chunks[1:]
	}
	return src
}

func (f *fakeSource) Items(ctx context.Context) ([]string, error) {
	return f.visible, nil
}

func (f *fakeSource) Reveal(ctx context.Context) (bool, error) {
	f.reveals++
	if len(f.chunks) == 0 {
		return false, nil
	}
	f.visible = append(f.visible, f.chunks[0]...)
	f.chunks = f.chunks[1:]
	return true, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func pinCard(id int) string {
	return fmt.Sprintf(
		`<div><h3>Pin %d</h3><a href="/pin/%d/">x</a><img src="https://i.pinimg.com/%d.jpg"/></div>`,
		id, id, id)
}

func cards(from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, pinCard(i))
	}
	return out
}

func testScraper() *Scraper {
	opts := DefaultScrapeOptions()
	opts.RevealDelay = time.Millisecond
	return New(opts)
}

func TestCollectStopsAtMaxPins(t *testing.T) {
	s := testScraper()
	src := newFakeSource(cards(1, 10))

	pins, stats, err := s.collect(context.Background(), src, "q", 5)
	require.NoError(t, err)

	assert.Len(t, pins, 5)
	assert.Equal(t, 5, stats.Collected)
	assert.Equal(t, 5, stats.Requested)
}

func TestCollectStabilityTermination(t *testing.T) {
	// The feed stops yielding new items after the third reveal; asking for
	// 1000 pins must terminate anyway with whatever was collected.
	s := testScraper()
	src := newFakeSource(cards(1, 5), cards(6, 10), cards(11, 15))

	pins, stats, err := s.collect(context.Background(), src, "q", 1000)
	require.NoError(t, err)

	assert.Len(t, pins, 15)
	assert.Less(t, stats.Reveals, s.opts.MaxReveals, "should stop on stability, not the reveal budget")
}

func TestCollectRevealBudget(t *testing.T) {
	// A feed that always grows but never repeats: the reveal budget is the
	// only stop condition short of maxPins.
	opts := DefaultScrapeOptions()
	opts.RevealDelay = time.Millisecond
	opts.MaxReveals = 3
	s := New(opts)

	src := newFakeSource(cards(1, 2), cards(3, 4), cards(5, 6), cards(7, 8), cards(9, 10))

	pins, stats, err := s.collect(context.Background(), src, "q", 1000)
	require.NoError(t, err)

	assert.LessOrEqual(t, stats.Reveals, 3)
	assert.LessOrEqual(t, len(pins), 6)
}

func TestCollectDedupsAcrossReveals(t *testing.T) {
	s := testScraper()
	// The second chunk repeats pin 2 and adds pin 3.
	src := newFakeSource(cards(1, 2), []string{pinCard(2), pinCard(3)})

	pins, _, err := s.collect(context.Background(), src, "q", 100)
	require.NoError(t, err)

	links := make(map[string]int)
	for _, pin := range pins {
		links[pin.PinLink]++
	}
	for link, n := range links {
		assert.Equal(t, 1, n, "pin %s collected more than once", link)
	}
	assert.Len(t, pins, 3)
}

func TestCollectSkipsBrokenCards(t *testing.T) {
	s := testScraper()
	src := newFakeSource([]string{
		pinCard(1),
		`<div><span>not a pin</span></div>`,
		pinCard(2),
	})

	pins, _, err := s.collect(context.Background(), src, "q", 100)
	require.NoError(t, err)

	assert.Len(t, pins, 2)
}

func TestCollectCancelledContext(t *testing.T) {
	s := testScraper()
	src := newFakeSource(cards(1, 5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.collect(ctx, src, "q", 100)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScrapeRejectsNonPositiveMax(t *testing.T) {
	s := testScraper()

	_, _, err := s.Scrape(context.Background(), "q", 0)
	assert.Error(t, err)
}

func TestProvisionalKey(t *testing.T) {
	now := time.Now()

	withLink, err := ParsePin(pinCard(7), now)
	require.NoError(t, err)
	assert.Equal(t, withLink.PinLink, provisionalKey(withLink, 3))

	bare, err := ParsePin(`<div><h3>No Link</h3><img src="https://i.pinimg.com/x.jpg"/></div>`, now)
	require.NoError(t, err)
	assert.Equal(t, "pos:3:No Link", provisionalKey(bare, 3))
}
