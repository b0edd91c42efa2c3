package indicator

import "github.com/raykavin/backsweep/pkg/core"

func vwap(highs, lows, closes, volumes []float64, cfg Config) []float64 {
	typical := TypicalPrice(highs, lows, closes)
	if cfg.VWAPMode == VWAPRolling {
		return rollingVWAP(typical, volumes, cfg.VWAPWindow)
	}
	return cumulativeVWAP(typical, volumes)
}

// cumulativeVWAP is undefined until some volume has traded
func cumulativeVWAP(typical, volumes []float64) []float64 {
	out := make([]float64, len(typical))
	var pv, vol float64
	for i := range typical {
		pv += typical[i] * volumes[i]
		vol += volumes[i]
		if vol == 0 {
			out[i] = core.Undefined()
			continue
		}
		out[i] = pv / vol
	}
	return out
}

func rollingVWAP(typical, volumes []float64, window int) []float64 {
	pv := SUM(Mult(typical, volumes), window)
	vol := SUM(volumes, window)

	out := undefinedSlice(len(typical))
	for i := range out {
		if core.IsDefined(pv[i]) && vol[i] > 0 {
			out[i] = pv[i] / vol[i]
		}
	}
	return out
}
