package library

import (
	"strings"

	"github.com/ariefcatur/go-digital-library/internal/orders"
)

// LineItem is the part of a purchased order item the matcher looks at.
// ProductID is empty when the stored row has no product reference.
type LineItem struct {
	ProductID   string
	ProductName string
}

type Candidate struct {
	ID        string
	Name      string
	Category  string
	IsDigital *bool
	HasEbook  bool
}

type Signal string

const (
	SignalFlag     Signal = "flag"
	SignalEbook    Signal = "ebook_metadata"
	SignalCategory Signal = "category_text"
	SignalName     Signal = "name_text"
)

type Classification struct {
	Digital bool
	Signals []Signal
}

// Ambiguous is true when the product is digital only because its name mentions
// book/digital. Such grants are worth a manual look ("Bookshelf Lamp").
func (c Classification) Ambiguous() bool {
	return len(c.Signals) == 1 && c.Signals[0] == SignalName
}

func ItemFromOrder(it orders.OrderItem) LineItem {
	return LineItem{ProductID: it.ProductID, ProductName: it.ProductName}
}

func mentionsDigital(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "book") || strings.Contains(s, "digital")
}

// Classify ORs the four signals; there is no ranking between them.
func Classify(c Candidate) Classification {
	var out Classification
	if c.IsDigital != nil && *c.IsDigital {
		out.Signals = append(out.Signals, SignalFlag)
	}
	if c.HasEbook {
		out.Signals = append(out.Signals, SignalEbook)
	}
	if mentionsDigital(c.Category) {
		out.Signals = append(out.Signals, SignalCategory)
	}
	if mentionsDigital(c.Name) {
		out.Signals = append(out.Signals, SignalName)
	}
	out.Digital = len(out.Signals) > 0
	return out
}

func normalizeName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

type Match struct {
	// ProductIDs to grant, deduplicated, in order of first matching line item.
	ProductIDs []string
	// Ambiguous is the subset of ProductIDs classified digital by name text alone.
	Ambiguous []string
}

// MatchDigital maps purchased line items onto digital candidates. A line item with a
// product id matches by id; when that id is not among the candidates, or the item has
// none, it matches by trimmed, case-insensitive name equality against any digital
// candidate of that name. Unmatched items and non-digital candidates contribute nothing.
func MatchDigital(items []LineItem, candidates []Candidate) Match {
	byID := make(map[string]Candidate, len(candidates))
	byName := make(map[string][]Candidate, len(candidates))
	for _, c := range candidates {
		if _, ok := byID[c.ID]; !ok {
			byID[c.ID] = c
		}
		if n := normalizeName(c.Name); n != "" {
			byName[n] = append(byName[n], c)
		}
	}

	var m Match
	seen := map[string]bool{}
	add := func(c Candidate, cl Classification) {
		if seen[c.ID] {
			return
		}
		seen[c.ID] = true
		m.ProductIDs = append(m.ProductIDs, c.ID)
		if cl.Ambiguous() {
			m.Ambiguous = append(m.Ambiguous, c.ID)
		}
	}
	for _, it := range items {
		if it.ProductID != "" {
			if c, ok := byID[it.ProductID]; ok {
				if cl := Classify(c); cl.Digital {
					add(c, cl)
				}
				continue
			}
		}
		for _, c := range byName[normalizeName(it.ProductName)] {
			if cl := Classify(c); cl.Digital {
				add(c, cl)
				break
			}
		}
	}
	return m
}

// lookupKeys returns the product ids and normalized names a candidate query needs.
func lookupKeys(items []LineItem) (ids, names []string) {
	seenID, seenName := map[string]bool{}, map[string]bool{}
	for _, it := range items {
		if it.ProductID != "" && !seenID[it.ProductID] {
			seenID[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
		// names go along for id items too, in case the id is stale
		n := normalizeName(it.ProductName)
		if n != "" && !seenName[n] {
			seenName[n] = true
			names = append(names, n)
		}
	}
	return ids, names
}
