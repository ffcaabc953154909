package analysis

import (
	"math"
	"math/cmplx"
)

// fft computes an iterative radix-2 Cooley-Tukey transform and returns
// it in a new slice; x is left unchanged. len(x) must be a power of two; the analysis window size (1024) is
// fixed specifically so this holds.
func fft(x []complex128) []complex128 {
	n := len(x)
	if n <= 1 {
		return x
	}

	result := make([]complex128, n)
	bits := 0
	for tmp := n; tmp > 1; tmp >>= 1 {
		bits++
	}
	for i := 0; i < n; i++ {
		j := 0
		for k := 0; k < bits; k++ {
			if i&(1<<k) != 0 {
				j |= 1 << (bits - 1 - k)
			}
		}
		result[j] = x[i]
	}

	for size := 2; size <= n; size *= 2 {
		halfSize := size / 2
		tableStep := n / size
		for i := 0; i < n; i += size {
			k := 0
			for j := i; j < i+halfSize; j++ {
				angle := -2 * math.Pi * float64(k) / float64(n)
				w := cmplx.Exp(complex(0, angle))
				t := result[j+halfSize] * w
				result[j+halfSize] = result[j] - t
				result[j] = result[j] + t
				k += tableStep
			}
		}
	}

	return result
}

// magnitudeSpectrum returns |FFT(samples)[0..n/2]| for a real-valued
// input of length n (a power of two).
func magnitudeSpectrum(samples []float32) []float64 {
	n := len(samples)
	in := make([]complex128, n)
	for i, v := range samples {
		in[i] = complex(float64(v), 0)
	}
	out := fft(in)

	half := n / 2
	mag := make([]float64, half+1)
	for k := 0; k <= half; k++ {
		mag[k] = cmplx.Abs(out[k])
	}
	return mag
}
