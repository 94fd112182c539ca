package linker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/models"
)

func newTestLinker(known ...string) *CashtagLinker {
	return NewCashtagLinker(known, arbor.NewLogger()).(*CashtagLinker)
}

func item(title, body string) *models.ContentItem {
	return &models.ContentItem{
		SourceItemID: "c1",
		ThreadID:     "t1",
		Title:        title,
		Body:         body,
		CreatedAt:    time.Now(),
	}
}

func TestLinkCashtags(t *testing.T) {
	l := newTestLinker()

	mentions := l.Link(item("", "Loaded up on $TSLA and $nvda calls"))
	require.Len(t, mentions, 2)
	assert.Equal(t, "NVDA", mentions[0].Symbol)
	assert.Equal(t, "TSLA", mentions[1].Symbol)
	for _, m := range mentions {
		assert.Equal(t, 0.95, m.Confidence)
	}
}

func TestLinkBareSymbolsRequireKnownList(t *testing.T) {
	withList := newTestLinker("TSLA", "AMD")
	mentions := withList.Link(item("", "TSLA and AMD are printing, but XYZZY is not a ticker"))
	require.Len(t, mentions, 2)
	assert.Equal(t, "AMD", mentions[0].Symbol)
	assert.Equal(t, 0.6, mentions[0].Confidence)

	noList := newTestLinker()
	assert.Empty(t, noList.Link(item("", "TSLA and AMD are printing")))
}

func TestLinkCashtagOutranksBareMatch(t *testing.T) {
	l := newTestLinker("TSLA")

	mentions := l.Link(item("", "$TSLA is moving. TSLA gang rise up"))
	require.Len(t, mentions, 1)
	m := mentions[0]
	assert.Equal(t, "TSLA", m.Symbol)
	assert.Equal(t, 0.95, m.Confidence, "cashtag confidence wins when both forms appear")
	assert.Equal(t, []string{"$TSLA", "TSLA"}, m.MatchedTerms)
}

func TestLinkIgnoresStopTokens(t *testing.T) {
	l := newTestLinker("CEO", "YOLO", "DD")

	mentions := l.Link(item("", "The CEO did a YOLO, read my DD. Even $DD is skipped."))
	assert.Empty(t, mentions)
}

func TestLinkUsesTitleAndBody(t *testing.T) {
	l := newTestLinker()

	mentions := l.Link(item("$NVDA earnings preview", "no tickers in the body"))
	require.Len(t, mentions, 1)
	assert.Equal(t, "NVDA", mentions[0].Symbol)
}

func TestLinkEmptyText(t *testing.T) {
	l := newTestLinker("TSLA")
	assert.Nil(t, l.Link(item("", "   ")))
}

func TestLinkDeterministicOrder(t *testing.T) {
	l := newTestLinker()
	text := "$ZM $AAPL $MSFT $AAPL"

	first := l.Link(item("", text))
	second := l.Link(item("", text))
	require.Equal(t, first, second)
	assert.Equal(t, "AAPL", first[0].Symbol)
	assert.Equal(t, "ZM", first[2].Symbol)
}
