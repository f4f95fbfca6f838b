package ticker

import "wsb-sentiment-lab/internal/domain"

// builtinAliases covers the default universe: symbol, cash-tag, company name
// and its common casings.
var builtinAliases = map[string][]string{
	"TSLA": {"TSLA", "$TSLA", "TESLA", "Tesla", "tesla"},
	"AAPL": {"AAPL", "$AAPL", "APPLE", "Apple", "apple"},
	"MSFT": {"MSFT", "$MSFT", "MICROSOFT", "Microsoft", "microsoft"},
	"NVDA": {"NVDA", "$NVDA", "NVIDIA", "Nvidia", "nvidia"},
	"AMD":  {"AMD", "$AMD", "Advanced Micro Devices", "advanced micro devices"},
	"GME":  {"GME", "$GME", "GAMESTOP", "GameStop", "Gamestop", "gamestop"},
}

// Aliases builds the alias table for tickers. overrides replace the built-in
// set of a ticker; symbols without either get [T, $T].
func Aliases(tickers []string, overrides map[string][]string) []domain.TickerAlias {
	out := make([]domain.TickerAlias, 0, len(tickers))
	for _, t := range tickers {
		words, ok := overrides[t]
		if !ok || len(words) == 0 {
			words, ok = builtinAliases[t]
		}
		if !ok || len(words) == 0 {
			words = []string{t, "$" + t}
		}
		out = append(out, domain.TickerAlias{
			Ticker:  t,
			Aliases: append([]string(nil), words...),
		})
	}
	return out
}
