package wave

import "github.com/chewxy/math32"

// coefficients returns the update weights of the damped wave equation for the
// given constants. next = k0*prev + k1*curr + k2*(sum of the 4 neighbours).
func coefficients(speed, damping, dx, dt float32) [3]float32 {
	d := damping*dt + 2
	e := (speed * speed) * (dt * dt) / (dx * dx)
	return [3]float32{
		(damping*dt - 2) / d,
		(4 - 8*e) / d,
		(2 * e) / d,
	}
}

// courant returns speed²dt²/dx². The explicit scheme is stable while it stays at or below 0.5.
func courant(speed, dx, dt float32) float32 {
	return (speed * speed) * (dt * dt) / (dx * dx)
}

// stepRows writes next for the interior cells of rows [r0, r1). Row 0, row rows-1 and
// the first and last column are never written.
func stepRows(prev, curr, next []float32, cols, r0, r1 int, k [3]float32) {
	if r0 < 1 {
		r0 = 1
	}
	rows := len(curr) / cols
	if r1 > rows-1 {
		r1 = rows - 1
	}
	for i := r0; i < r1; i++ {
		base := i * cols
		for j := 1; j < cols-1; j++ {
			c := base + j
			next[c] = k[0]*prev[c] + k[1]*curr[c] +
				k[2]*(curr[c-cols]+curr[c+cols]+curr[c-1]+curr[c+1])
		}
	}
}

// disturbCells bumps (row, col) by magnitude and its four neighbours by a quarter of it,
// clamping every result to [-limit, limit]. Bounds are checked by the caller.
func disturbCells(h []float32, cols, row, col int, magnitude, limit float32) {
	quarter := 0.25 * magnitude
	c := row*cols + col
	h[c] = clamp(h[c]+magnitude, limit)
	h[c-1] = clamp(h[c-1]+quarter, limit)
	h[c+1] = clamp(h[c+1]+quarter, limit)
	h[c-cols] = clamp(h[c-cols]+quarter, limit)
	h[c+cols] = clamp(h[c+cols]+quarter, limit)
}

func clamp(v, limit float32) float32 {
	return math32.Max(-limit, math32.Min(limit, v))
}

// InDisturbRange reports whether (row, col) keeps the disturb stencil two cells away from every edge.
func InDisturbRange(rows, cols, row, col int) bool {
	return row >= 2 && row <= rows-3 && col >= 2 && col <= cols-3
}
