package binance

import "strings"

// quoteAssets lists the quote currencies we can split a flat vendor symbol
// on, longest first so USDT wins over USD.
var quoteAssets = []string{"USDT", "USDC", "FDUSD", "TUSD", "BUSD", "BTC", "ETH", "BNB", "EUR", "GBP", "USD", "TRY", "DAI"}

// normalizeSymbol converts the canonical "BASE/QUOTE" form into the flat
// upper-case pair Binance expects. Already-flat input passes through.
func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
}

// denormalizeSymbol converts a flat vendor symbol back to "BASE/QUOTE". When
// no known quote asset matches, the flat symbol is returned unchanged rather
// than guessing a split.
func denormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)

	for _, quote := range quoteAssets {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return symbol[:len(symbol)-len(quote)] + "/" + quote
		}
	}

	return symbol
}
