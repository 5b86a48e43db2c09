// Package vec4 holds homogeneous coordinates for the camera's projective
// transforms.
package vec4

import "aotrace/vmath/vec3"

type T [4]float64

// Point lifts a 3D point to homogeneous coordinates with w = 1.
func Point(p vec3.T) T {
	return T{p[0], p[1], p[2], 1}
}

// Dehomogenize performs the perspective divide.
func (v T) Dehomogenize() vec3.T {
	return vec3.T{
		v[0] / v[3],
		v[1] / v[3],
		v[2] / v[3],
	}
}
