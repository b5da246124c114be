package indicator

import (
	"github.com/ridopark/decisioncore/internal/indicator/nw"
	"github.com/ridopark/decisioncore/internal/indicator/obfvg"
	"github.com/ridopark/decisioncore/internal/indicator/smc"
	"github.com/ridopark/decisioncore/internal/indicator/tpo"
	"github.com/ridopark/decisioncore/internal/market"
)

// registerMarketStructure wires the three PineScript-derived
// indicators (§4.2 "Market-structure indicators") plus the TPO
// market-profile indicator into the engine's dispatch table.
func registerMarketStructure(e *Engine) {
	e.Register("SMC_Structure", func(bars []market.Bar, i int, params Params) Result {
		return Result(smc.StructureAt(bars, i, map[string]float64(params)))
	}, func() Result { return Result(smc.Empty()) })

	e.Register("OB_FVG", func(bars []market.Bar, i int, params Params) Result {
		return Result(obfvg.StructureAt(bars, i, map[string]float64(params)))
	}, func() Result { return Result(obfvg.Empty()) })

	e.Register("NW_Envelope", func(bars []market.Bar, i int, params Params) Result {
		return Result(nw.EnvelopeAt(bars, i, map[string]float64(params)))
	}, func() Result { return Result(nw.EmptyEnvelope()) })

	e.Register("NW_RQ_Kernel", func(bars []market.Bar, i int, params Params) Result {
		return Result(nw.KernelAt(bars, i, map[string]float64(params)))
	}, func() Result { return Result(nw.EmptyKernel()) })

	e.Register("TPO", func(bars []market.Bar, i int, params Params) Result {
		return Result(tpo.At(bars, i, map[string]float64(params)))
	}, func() Result { return Result(tpo.Empty()) })
}
