// Package linker provides the default entity linker: a cashtag and symbol
// matcher that links ticker entities to content items. It performs no
// network calls, so the thread scraper may run it in a bounded worker pool.
package linker

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/interfaces"
	"github.com/alextesy/stocktalk/internal/models"
)

const (
	// cashtagConfidence applies to explicit $SYMBOL mentions.
	cashtagConfidence = 0.95
	// bareConfidence applies to bare uppercase tokens that match a known
	// symbol; without the dollar sign the token is ambiguous.
	bareConfidence = 0.6
)

var (
	cashtagPattern = regexp.MustCompile(`\$([A-Za-z]{1,5})\b`)
	barePattern    = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
)

// stopTokens are uppercase words common in forum posts that collide with
// ticker symbols and are never linked bare.
var stopTokens = map[string]struct{}{
	"A": {}, "I": {}, "CEO": {}, "CFO": {}, "DD": {}, "EDIT": {},
	"ETF": {}, "FOMO": {}, "IMO": {}, "IPO": {}, "IRS": {}, "LOL": {},
	"OP": {}, "PE": {}, "SEC": {}, "TLDR": {}, "USA": {}, "USD": {},
	"WSB": {}, "YOLO": {}, "AI": {}, "API": {}, "EPS": {}, "FED": {},
}

// CashtagLinker links ticker mentions by cashtag and known-symbol matching.
type CashtagLinker struct {
	known  map[string]struct{}
	logger arbor.ILogger
}

// NewCashtagLinker creates a linker. knownSymbols gates bare-token matches;
// explicit cashtags are linked regardless.
func NewCashtagLinker(knownSymbols []string, logger arbor.ILogger) interfaces.EntityLinker {
	known := make(map[string]struct{}, len(knownSymbols))
	for _, sym := range knownSymbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			known[sym] = struct{}{}
		}
	}
	return &CashtagLinker{
		known:  known,
		logger: logger,
	}
}

// Link extracts ticker mentions from the item's title and body.
func (l *CashtagLinker) Link(item *models.ContentItem) []models.EntityMention {
	text := item.Title + "\n" + item.Body
	if strings.TrimSpace(text) == "" {
		return nil
	}

	type hit struct {
		confidence float64
		terms      map[string]struct{}
	}
	hits := make(map[string]*hit)

	record := func(symbol, term string, confidence float64) {
		h, ok := hits[symbol]
		if !ok {
			h = &hit{terms: make(map[string]struct{})}
			hits[symbol] = h
		}
		if confidence > h.confidence {
			h.confidence = confidence
		}
		h.terms[term] = struct{}{}
	}

	for _, m := range cashtagPattern.FindAllStringSubmatch(text, -1) {
		symbol := strings.ToUpper(m[1])
		if _, stop := stopTokens[symbol]; stop {
			continue
		}
		record(symbol, m[0], cashtagConfidence)
	}

	// Bare uppercase tokens are only trusted when a symbol list was
	// configured and the token is on it.
	if len(l.known) > 0 {
		for _, token := range barePattern.FindAllString(text, -1) {
			if _, stop := stopTokens[token]; stop {
				continue
			}
			if _, ok := l.known[token]; !ok {
				continue
			}
			record(token, token, bareConfidence)
		}
	}

	if len(hits) == 0 {
		return nil
	}

	symbols := make([]string, 0, len(hits))
	for sym := range hits {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	mentions := make([]models.EntityMention, 0, len(symbols))
	for _, sym := range symbols {
		h := hits[sym]
		terms := make([]string, 0, len(h.terms))
		for t := range h.terms {
			terms = append(terms, t)
		}
		sort.Strings(terms)
		mentions = append(mentions, models.EntityMention{
			Symbol:       sym,
			Confidence:   h.confidence,
			MatchedTerms: terms,
		})
	}
	return mentions
}
