// Package showmode implements the three visual mode policies, the
// pattern-only fallback, HSV color conversion, and the per-lamp send
// throttle described in spec section 4.D.
package showmode

import "math"

// RGB is an 8-bit-per-channel color.
type RGB struct {
	R, G, B uint8
}

// HSVToRGB is the standard 6-sector piecewise conversion. h is in
// [0, 1), s and v are in [0, 1]. s=0 yields an achromatic triple.
func HSVToRGB(h, s, v float64) RGB {
	if s <= 0 {
		c := uint8(math.Round(v * 255))
		return RGB{c, c, c}
	}

	h = math.Mod(h, 1)
	if h < 0 {
		h++
	}

	hh := h * 6
	sector := int(hh)
	f := hh - float64(sector)

	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	var r, g, b float64
	switch sector % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}

	return RGB{
		R: uint8(math.Round(r * 255)),
		G: uint8(math.Round(g * 255)),
		B: uint8(math.Round(b * 255)),
	}
}

// mod1 wraps x into [0, 1).
func mod1(x float64) float64 {
	x = math.Mod(x, 1)
	if x < 0 {
		x++
	}
	return x
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
