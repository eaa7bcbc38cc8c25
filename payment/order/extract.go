// heuristics over the rendered text of the external store's payment list and order list.
// the layout is not under our control, so every rule here is a fallback chain

package order

import (
	"regexp"
	"strings"
	"time"
)

// Labels are the UI strings the extractor keys on.
type Labels struct {
	TotalPayment  string // pending card total
	PayBefore     string // pending card deadline
	PaymentMethod string
	InFulfillment string // processed status badge
	TotalPurchase string // processed card total

	PendingSkip   []string // sidebar noise on the payment list
	FallbackSkip  []string
	ProcessedSkip []string // sidebar noise on the order list
}

func DefaultLabels() Labels {
	return Labels{
		TotalPayment:  "Total Pembayaran",
		PayBefore:     "Bayar sebelum",
		PaymentMethod: "QRIS",
		InFulfillment: processedStatus,
		TotalPurchase: "Total Belanja",
		PendingSkip:   []string{"Saldo", "GoPay", "Tokopedia Card", "Kotak Masuk"},
		FallbackSkip:  []string{"Saldo", "GoPay"},
		ProcessedSkip: []string{"Saldo", "GoPay", "Tokopedia Card", "Kotak Masuk", "Chat", "Ulasan"},
	}
}

type ExtractorConfig struct {
	Labels      Labels
	NoiseFloor  int64 // amounts at or below are UI chrome
	Ceiling     int64 // upper bound for the loose pending fallback
	Location    *time.Location
	Now         func() time.Time
	LookAhead   int // lines searched after a status badge
	AmountLines int // lines searched from a total label
	Window      int // lines searched around a fallback keyword
}

func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		Labels:      DefaultLabels(),
		NoiseFloor:  10000,
		Ceiling:     100000000,
		Location:    time.Local,
		Now:         time.Now,
		LookAhead:   20,
		AmountLines: 3,
		Window:      5,
	}
}

// TextExtractor implements Extractor over flattened page text.
type TextExtractor struct {
	cfg             ExtractorConfig
	deadlinePattern *regexp.Regexp
	sectionTotal    *regexp.Regexp
}

func NewTextExtractor(cfg ExtractorConfig) *TextExtractor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &TextExtractor{
		cfg:             cfg,
		deadlinePattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(cfg.Labels.PayBefore) + `[^\d]*(\d+)\s+(\w+),?\s*(\d+:\d+)`),
		sectionTotal:    regexp.MustCompile(`(?i)` + regexp.QuoteMeta(cfg.Labels.TotalPurchase) + `[^\d]*Rp\s*([\d.,]+)`),
	}
}

type pendingCandidate struct {
	amount      int64
	deadlineIdx int
}

// ExtractPending reads the payment list. Deadlines are matched to amounts by
// position: the n-th amount found gets the n-th deadline on the page.
func (e *TextExtractor) ExtractPending(pageText string) []PendingOrder {
	lines := strings.Split(pageText, "\n")
	deadlines := e.deadlines(pageText)

	candidates := e.pendingByTotal(lines)
	if len(candidates) == 0 {
		candidates = e.pendingNearKeywords(lines)
	}

	orders := make([]PendingOrder, 0, len(candidates))
	for _, c := range candidates {
		o := PendingOrder{OrderID: pendingOrderID(c.amount), Amount: c.amount}
		if c.deadlineIdx < len(deadlines) && deadlines[c.deadlineIdx] != nil {
			d := *deadlines[c.deadlineIdx]
			o.Deadline = &d
		}
		orders = append(orders, o)
	}
	return orders
}

// deadlines returns one entry per deadline label on the page, nil where the
// date could not be parsed, so positions stay aligned with the amounts.
func (e *TextExtractor) deadlines(pageText string) []*time.Time {
	now := e.cfg.Now()
	var out []*time.Time
	for _, m := range e.deadlinePattern.FindAllStringSubmatch(pageText, -1) {
		d, ok := ParseDeadline(m[1], m[2], m[3], now, e.cfg.Location)
		if !ok {
			out = append(out, nil)
			continue
		}
		out = append(out, &d)
	}
	return out
}

func (e *TextExtractor) pendingByTotal(lines []string) []pendingCandidate {
	var found []pendingCandidate
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if containsAny(line, e.cfg.Labels.PendingSkip) {
			continue
		}
		if !strings.Contains(line, e.cfg.Labels.TotalPayment) {
			continue
		}
		for j := i; j < min(i+e.cfg.AmountLines, len(lines)); j++ {
			amount, ok := findAmount(lines[j])
			if ok && amount > e.cfg.NoiseFloor {
				found = append(found, pendingCandidate{amount: amount, deadlineIdx: len(found)})
				break
			}
		}
	}
	return found
}

func (e *TextExtractor) pendingNearKeywords(lines []string) []pendingCandidate {
	var found []pendingCandidate
	seen := make(map[int64]bool)
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if containsAny(line, e.cfg.Labels.FallbackSkip) {
			continue
		}
		if !strings.Contains(line, e.cfg.Labels.PaymentMethod) && !strings.Contains(line, e.cfg.Labels.PayBefore) {
			continue
		}
		for j := max(0, i-e.cfg.Window); j < min(i+e.cfg.Window, len(lines)); j++ {
			amount, ok := findAmount(lines[j])
			if !ok || amount <= e.cfg.NoiseFloor || amount >= e.cfg.Ceiling || seen[amount] {
				continue
			}
			seen[amount] = true
			found = append(found, pendingCandidate{amount: amount, deadlineIdx: len(found)})
		}
	}
	return found
}

// ExtractProcessedText is ExtractProcessed without a main content region.
func (e *TextExtractor) ExtractProcessedText(pageText string) []ProcessedOrder {
	return e.ExtractProcessed(pageText, "")
}

// ExtractProcessed reads the order list for orders in fulfillment.
// mainContent narrows the fallback search when the page marks a main region.
func (e *TextExtractor) ExtractProcessed(pageText, mainContent string) []ProcessedOrder {
	amounts := e.processedByStatus(strings.Split(pageText, "\n"))
	if len(amounts) == 0 {
		region := mainContent
		if strings.TrimSpace(region) == "" {
			region = pageText
		}
		amounts = e.processedBySection(region)
	}

	orders := make([]ProcessedOrder, 0, len(amounts))
	for _, a := range amounts {
		orders = append(orders, ProcessedOrder{Amount: a, Status: e.cfg.Labels.InFulfillment})
	}
	return orders
}

func (e *TextExtractor) processedByStatus(lines []string) []int64 {
	var found []int64
	seen := make(map[int64]bool)
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if containsAny(line, e.cfg.Labels.ProcessedSkip) {
			continue
		}
		if !strings.Contains(line, e.cfg.Labels.InFulfillment) {
			continue
		}
		for j := i; j < min(i+e.cfg.LookAhead, len(lines)); j++ {
			if !strings.Contains(lines[j], e.cfg.Labels.TotalPurchase) {
				continue
			}
			for k := j; k < min(j+e.cfg.AmountLines, len(lines)); k++ {
				amount, ok := findAmount(lines[k])
				if !ok || amount <= e.cfg.NoiseFloor {
					continue
				}
				if !seen[amount] {
					seen[amount] = true
					found = append(found, amount)
				}
				break
			}
			break
		}
	}
	return found
}

func (e *TextExtractor) processedBySection(region string) []int64 {
	var found []int64
	seen := make(map[int64]bool)
	sections := strings.Split(region, e.cfg.Labels.InFulfillment)
	for _, section := range sections[1:] {
		m := e.sectionTotal.FindStringSubmatch(section)
		if m == nil {
			continue
		}
		amount, ok := ParseAmount(m[1])
		if !ok || amount <= e.cfg.NoiseFloor || seen[amount] {
			continue
		}
		seen[amount] = true
		found = append(found, amount)
	}
	return found
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
