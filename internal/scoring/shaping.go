package scoring

import "math"

// diminish maps x >= 0 onto [0,1] with logarithmic diminishing returns:
// log1p(x/scale) normalized so that xmax lands on 1.0. Doubling an already
// extreme input moves the output sub-linearly.
func diminish(x, scale, xmax float64) float64 {
	if x <= 0 || scale <= 0 || xmax <= 0 {
		return 0
	}
	v := math.Log1p(x/scale) / math.Log1p(xmax/scale)
	return clamp01(v)
}

// rangeBump scores a value against a sweet spot: 0 below lo and above hi,
// 1.0 on the [plateauLo, plateauHi] plateau, linear ramps between.
func rangeBump(x, lo, plateauLo, plateauHi, hi float64) float64 {
	switch {
	case x <= lo || x >= hi:
		return 0
	case x >= plateauLo && x <= plateauHi:
		return 1
	case x < plateauLo:
		return (x - lo) / (plateauLo - lo)
	default:
		return (hi - x) / (hi - plateauHi)
	}
}

// logistic is the standard sigmoid.
func logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
