package market

import (
	"github.com/shopspring/decimal"

	"github.com/papertrade/game-engine/internal/model"
)

// DefaultUniverse returns the built-in starter catalog: two instruments per
// sector with fixed starting prices, used when no catalog is configured.
func DefaultUniverse() []Definition {
	p := decimal.NewFromInt
	return []Definition{
		{Symbol: "NVX", Sector: model.SectorTech, InitialPrice: p(52000)},
		{Symbol: "CLDW", Sector: model.SectorTech, InitialPrice: p(31000)},
		{Symbol: "SILIC", Sector: model.SectorSemi, InitialPrice: p(78000)},
		{Symbol: "WAFR", Sector: model.SectorSemi, InitialPrice: p(45000)},
		{Symbol: "VOLTA", Sector: model.SectorEV, InitialPrice: p(23000)},
		{Symbol: "EMOTR", Sector: model.SectorEV, InitialPrice: p(17000)},
		{Symbol: "BITX", Sector: model.SectorCrypto, InitialPrice: p(95000)},
		{Symbol: "CHAIN", Sector: model.SectorCrypto, InitialPrice: p(8000)},
		{Symbol: "MEGAH", Sector: model.SectorCorp, InitialPrice: p(64000)},
		{Symbol: "STEEL", Sector: model.SectorCorp, InitialPrice: p(38000)},
	}
}
