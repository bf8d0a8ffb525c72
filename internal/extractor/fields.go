package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"alphafeed/internal/models"
)

// Keyword windows stop at clause separators; a keyword never reaches a number
// in the next clause.
const gap = `[^0-9.,;!?\n]{0,20}?`

// Comma grouping is only taken when every group has three digits, so the
// comma in "price 180, target 220" still ends the clause.
const number = `\$?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`

var (
	// Group 1 is a cashtag in any case, group 2 a bare upper-case ticker.
	tokenRe = regexp.MustCompile(`\$([A-Za-z]{2,10})\b|\b([A-Z]{2,10})\b`)

	priceRe  = regexp.MustCompile(`(?:\b(?:price|entry)\b|@)` + gap + number)
	targetRe = regexp.MustCompile(`\b(?:target|tp\d?|take[\s-]*profit)\b` + gap + number)
	stopRe   = regexp.MustCompile(`\b(?:sl|stop[\s-]*loss|stop)\b` + gap + number)

	actionRe = regexp.MustCompile(`\b(buy|sell|long|short|hold|alert|pump|dump)\b`)

	confidenceAfterRe  = regexp.MustCompile(`\b(?:confidence|confident|sure|certain)\b` + gap + `(\d{1,3}(?:\.\d+)?)\s*%`)
	confidenceBeforeRe = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%[^,;!?\n]{0,20}?\b(?:confidence|confident|sure|certain)\b`)

	riskRe = regexp.MustCompile(`\b(low|medium|high)[\s-]*risk\b`)
)

// Upper-case words that read as tickers but are chat vocabulary.
var notTickers = map[string]struct{}{
	"BUY": {}, "SELL": {}, "LONG": {}, "SHORT": {}, "HOLD": {}, "ALERT": {}, "PUMP": {}, "DUMP": {},
	"TP": {}, "SL": {}, "ENTRY": {}, "PRICE": {}, "TARGET": {}, "STOP": {}, "LOSS": {},
	"RISK": {}, "LOW": {}, "MEDIUM": {}, "HIGH": {},
	"OK": {}, "GM": {}, "GN": {}, "LOL": {}, "IMO": {}, "NFA": {}, "DYOR": {}, "ATH": {},
}

// ExtractToken returns the first ticker in scan order: a cashtag ($sol, $SOL)
// or a bare upper-case word. Bare words in notTickers are skipped; cashtags
// never are. Matching runs on the original text since bare tickers are only
// recognised in upper case.
func ExtractToken(text string) *string {
	for _, m := range tokenRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			sym := strings.ToUpper(m[1])
			return &sym
		}
		if _, skip := notTickers[m[2]]; skip {
			continue
		}
		sym := m[2]
		return &sym
	}
	return nil
}

func ExtractPrice(text string) *decimal.Decimal {
	return firstNumber(priceRe, strings.ToLower(text))
}

func ExtractTarget(text string) *decimal.Decimal {
	return firstNumber(targetRe, strings.ToLower(text))
}

func ExtractStopLoss(text string) *decimal.Decimal {
	return firstNumber(stopRe, strings.ToLower(text))
}

// ExtractAction maps the first action keyword: buy/long -> buy, sell/short ->
// sell, hold -> hold, anything else (alert, pump, dump) -> alert.
func ExtractAction(text string) *models.Action {
	m := actionRe.FindStringSubmatch(strings.ToLower(text))
	if len(m) != 2 {
		return nil
	}
	var a models.Action
	switch m[1] {
	case "buy", "long":
		a = models.ActionBuy
	case "sell", "short":
		a = models.ActionSell
	case "hold":
		a = models.ActionHold
	default:
		a = models.ActionAlert
	}
	return &a
}

// ExtractConfidence reads "90% confidence" or "confidence: 90%". The earliest
// occurrence wins. Values above 100 are ignored.
func ExtractConfidence(text string) *float64 {
	lower := strings.ToLower(text)
	var best []int
	for _, re := range []*regexp.Regexp{confidenceAfterRe, confidenceBeforeRe} {
		loc := re.FindStringSubmatchIndex(lower)
		if loc == nil {
			continue
		}
		if best == nil || loc[0] < best[0] {
			best = loc
		}
	}
	if best == nil {
		return nil
	}
	d, err := decimal.NewFromString(lower[best[2]:best[3]])
	if err != nil {
		return nil
	}
	v := d.InexactFloat64()
	if v < 0 || v > 100 {
		return nil
	}
	return &v
}

func ExtractRiskLevel(text string) *models.RiskLevel {
	m := riskRe.FindStringSubmatch(strings.ToLower(text))
	if len(m) != 2 {
		return nil
	}
	r := models.RiskLevel(m[1])
	return &r
}

func firstNumber(re *regexp.Regexp, lower string) *decimal.Decimal {
	m := re.FindStringSubmatch(lower)
	if len(m) != 2 {
		return nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &d
}
