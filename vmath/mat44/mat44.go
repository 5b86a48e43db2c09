package mat44

import (
	"errors"
	"math"

	"aotrace/vmath/vec4"
)

// ErrSingular is returned when a matrix has no usable inverse.
var ErrSingular = errors.New("matrix is singular")

// singularRatio is the smallest pivot, relative to the largest element of
// the input, that elimination will accept.
const singularRatio = 1e-14

// T is a row-major 4x4 matrix.
type T [16]float64

func Identity() T {
	return T{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

func (m T) At(r, c int) float64 {
	return m[r*4+c]
}

func MulMM(a, b T) T {
	result := T{}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			for k := 0; k < 4; k++ {
				result[i*4+j] += a[i*4+k] * b[k*4+j]
			}
		}
	}
	return result
}

func MulMV(a T, b vec4.T) vec4.T {
	return vec4.T{
		a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3],
		a[4]*b[0] + a[5]*b[1] + a[6]*b[2] + a[7]*b[3],
		a[8]*b[0] + a[9]*b[1] + a[10]*b[2] + a[11]*b[3],
		a[12]*b[0] + a[13]*b[1] + a[14]*b[2] + a[15]*b[3],
	}
}

// IsFinite reports whether no element is NaN or infinite.
func (m T) IsFinite() bool {
	for _, x := range m {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func maxAbs(m *T) float64 {
	scale := 0.0
	for _, x := range m {
		if a := math.Abs(x); a > scale {
			scale = a
		}
	}
	return scale
}

func rowEchelonInplace(m, a *T) error {
	threshold := maxAbs(m) * singularRatio

	for k := 0; k < 4; k++ {
		// Select the row below row k with the best pivot.
		maxRow := k
		for i := k; i < 4; i++ {
			if math.Abs(m[i*4+k]) > math.Abs(m[maxRow*4+k]) {
				maxRow = i
			}
		}

		// Swap selected row to current row.
		for i := 0; i < 4; i++ {
			m[k*4+i], m[maxRow*4+i] = m[maxRow*4+i], m[k*4+i]
			a[k*4+i], a[maxRow*4+i] = a[maxRow*4+i], a[k*4+i]
		}

		// Now the pivot element is at m[k, k].
		pivot := m[k*4+k]
		if math.IsNaN(pivot) || math.Abs(pivot) <= threshold {
			return ErrSingular
		}
		for r := k + 1; r < 4; r++ {
			scale := m[r*4+k] / pivot
			for c := k + 1; c < 4; c++ {
				m[r*4+c] -= m[k*4+c] * scale
			}
			for c := 0; c < 4; c++ {
				a[r*4+c] -= a[k*4+c] * scale
			}
			m[r*4+k] = 0.0
		}
	}
	return nil
}

func backsubInplace(m, a *T) {
	for k := 4 - 1; k > 0; k-- {
		// m[k,k] is the pivot

		// Nullify all entries above the pivot element.
		for r := 0; r < k; r++ {
			scale := m[r*4+k] / m[k*4+k]

			m[r*4+k] = 0
			for c := k + 1; c < 4; c++ {
				m[r*4+c] -= m[k*4+c] * scale
			}

			// Mirror the action in the augmented matrix.
			for c := 0; c < 4; c++ {
				a[r*4+c] -= a[k*4+c] * scale
			}
		}
	}

	// Now we simply need to divide each row by its pivot.
	for k := 0; k < 4; k++ {
		for c := k + 1; c < 4; c++ {
			m[k*4+c] /= m[k*4+k]
		}
		for c := 0; c < 4; c++ {
			a[k*4+c] /= m[k*4+k]
		}
		m[k*4+k] = 1
	}
}

// Inverse returns the inverse of m by Gauss-Jordan elimination with partial
// pivoting.  It returns ErrSingular instead of a NaN-filled result when m is
// not invertible or contains non-finite elements.
func Inverse(m T) (T, error) {
	if !m.IsFinite() {
		return T{}, ErrSingular
	}

	a := Identity()
	if err := rowEchelonInplace(&m, &a); err != nil {
		return T{}, err
	}
	backsubInplace(&m, &a)

	if !a.IsFinite() {
		return T{}, ErrSingular
	}
	return a, nil
}
