package ray

import (
	"aotrace/vmath/vec3"
)

// Ray is the segment of the line Origin + t*Dir with TMin <= t <= TMax.
//
// Dir is unit length.  Scene queries tighten TMax as closer hits are found;
// nothing else should mutate a Ray after construction.
type Ray struct {
	Origin vec3.T
	Dir    vec3.T
	TMin   float64
	TMax   float64
}

// New constructs a Ray, normalizing dir.  dir must be nonzero.
func New(origin, dir vec3.T, tMin, tMax float64) Ray {
	return Ray{
		Origin: origin,
		Dir:    vec3.Normalize(dir),
		TMin:   tMin,
		TMax:   tMax,
	}
}

func (r *Ray) Eval(t float64) vec3.T {
	return vec3.T{
		r.Origin[0] + t*r.Dir[0],
		r.Origin[1] + t*r.Dir[1],
		r.Origin[2] + t*r.Dir[2],
	}
}
