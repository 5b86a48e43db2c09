// Package warp maps uniform samples from the unit square onto directional
// and areal distributions, following the Monte Carlo integration chapter of
// Physically Based Rendering.
package warp

import (
	"fmt"
	"math"

	"aotrace/vmath/mat33"
	"aotrace/vmath/vec3"
)

type Distribution int

const (
	UniformSphere Distribution = iota
	UniformHemisphere
	UniformDisk
	ConcentricDisk
	CosineHemisphere
	UniformTriangle
	UniformSquare
)

var distributionNames = map[Distribution]string{
	UniformSphere:     "uniformSphere",
	UniformHemisphere: "uniformHemisphere",
	UniformDisk:       "uniformDisk",
	ConcentricDisk:    "concentricDisk",
	CosineHemisphere:  "cosineHemisphere",
	UniformTriangle:   "uniformTriangle",
	UniformSquare:     "uniformSquare",
}

func (d Distribution) String() string {
	if name, ok := distributionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Distribution(%d)", int(d))
}

// ParseDistribution is the inverse of Distribution.String.
func ParseDistribution(name string) (Distribution, error) {
	for d, n := range distributionNames {
		if n == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown warp distribution %q", name)
}

// Warp maps (s, t) in [0,1)^2 to a sample of the distribution d.  Disk,
// triangle, and square samples lie in the z = 0 plane; hemisphere samples
// have z >= 0.
func Warp(s, t float64, d Distribution) vec3.T {
	switch d {
	case UniformSphere:
		z := 1.0 - 2.0*s
		r := math.Sqrt(math.Max(0, 1-z*z))
		phi := 2 * math.Pi * t
		return vec3.T{r * math.Cos(phi), r * math.Sin(phi), z}

	case UniformHemisphere:
		z := s
		r := math.Sqrt(math.Max(0, 1-z*z))
		phi := 2 * math.Pi * t
		return vec3.T{r * math.Cos(phi), r * math.Sin(phi), z}

	case UniformDisk:
		r := math.Sqrt(s)
		theta := 2 * math.Pi * t
		return vec3.T{r * math.Cos(theta), r * math.Sin(theta), 0}

	case ConcentricDisk:
		rho, theta := concentricPolar(s, t)
		return vec3.T{rho * math.Cos(theta), rho * math.Sin(theta), 0}

	case CosineHemisphere:
		v := Warp(s, t, ConcentricDisk)
		v[2] = math.Sqrt(math.Max(0, 1-v[0]*v[0]-v[1]*v[1]))
		return v

	case UniformTriangle:
		su := math.Sqrt(s)
		return vec3.T{1 - su, t * su, 0}
	}

	// UniformSquare, and anything unrecognized.
	return vec3.T{2*s - 1, 2*t - 1, 0}
}

// PDF returns the density of Warp(s, t, d) with respect to solid angle for
// the spherical distributions and area for the planar ones.
func PDF(s, t float64, d Distribution) float64 {
	switch d {
	case UniformSphere:
		return 1 / (4 * math.Pi)
	case UniformHemisphere:
		return 1 / (2 * math.Pi)
	case UniformDisk, ConcentricDisk:
		return 1 / math.Pi
	case CosineHemisphere:
		rho, _ := concentricPolar(s, t)
		cosTheta := math.Sqrt(math.Max(0, 1-rho*rho))
		return cosTheta / math.Pi
	case UniformTriangle:
		return 2
	}
	return 0.25
}

// concentricPolar is Shirley and Chiu's area-preserving square-to-disk map.
// The square [-1,1]^2 is split into four triangular regions by its
// diagonals, each mapped onto a quarter of the disk.
func concentricPolar(u1, u2 float64) (rho, theta float64) {
	sx := 2*u1 - 1
	sy := 2*u2 - 1
	if sx == 0 && sy == 0 {
		return 0, 0
	}

	var r, t float64
	if sx >= -sy {
		if sx > sy {
			// First region.
			r = sx
			if sy > 0 {
				t = sy / r
			} else {
				t = 8 + sy/r
			}
		} else {
			// Second region.
			r = sy
			t = 2 - sx/r
		}
	} else {
		if sx <= sy {
			// Third region.
			r = -sx
			t = 4 - sy/r
		} else {
			// Fourth region.
			r = -sy
			t = 6 + sx/r
		}
	}

	return r, t * (math.Pi / 4)
}

const (
	alignedEpsilon  = 1e-9
	collinearCutoff = 0.9
	crossEpsilon    = 1e-12
)

// RotateToAlign returns a rotation taking the unit vector from onto the unit
// vector to.
func RotateToAlign(from, to vec3.T) mat33.T {
	cosine := vec3.IProd(from, to)
	if cosine > 1-alignedEpsilon {
		return mat33.Identity()
	}

	axis := vec3.CProd(from, to)
	if axis.NormSquared() < crossEpsilon {
		// Antiparallel.  Any axis perpendicular to from works; derive one from
		// the first coordinate axis that from is not nearly collinear with.
		helper := vec3.ZAxis
		switch {
		case math.Abs(from[0]) < collinearCutoff:
			helper = vec3.XAxis
		case math.Abs(from[1]) < collinearCutoff:
			helper = vec3.YAxis
		}
		return mat33.AxisAngle(vec3.Normalize(vec3.CProd(from, helper)), math.Pi)
	}

	return mat33.AxisAngle(vec3.Normalize(axis), math.Acos(math.Min(1, math.Max(-1, cosine))))
}
