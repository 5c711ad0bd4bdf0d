package signal

import (
	"slices"
	"strings"

	"signal-relay/internal/domain"
)

// Classify maps an instrument to its market. Order matters: commodities, then crypto by
// substring, then indices, then forex.
func Classify(instrument string) domain.Market {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))

	if slices.Contains(domain.CommodityInstruments, instrument) {
		return domain.MarketCommodities
	}
	for _, base := range domain.CryptoBases {
		if strings.Contains(instrument, base) {
			return domain.MarketCrypto
		}
	}
	if slices.Contains(domain.IndexInstruments, instrument) {
		return domain.MarketIndices
	}
	return domain.MarketForex
}
