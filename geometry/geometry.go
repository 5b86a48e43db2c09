package geometry

import (
	"errors"
	"fmt"
	"math"

	"aotrace/contact"
	"aotrace/ray"
	"aotrace/shader"
	"aotrace/vmath/vec3"
)

// Shape is a surface that rays can strike.
type Shape interface {
	// Intersect returns the nearest contact within [r.TMin, r.TMax].
	Intersect(r ray.Ray) (contact.Contact, bool)

	Shader() shader.Shader
}

// DefaultTolerance is how far below r.TMin a sphere hit may fall and still
// count.
const DefaultTolerance = 1e-9

var ErrInvalidSphere = errors.New("invalid sphere")

// Sphere is a Shape given by a center and radius.
type Sphere struct {
	center    vec3.T
	radius    float64
	tolerance float64
	shader    shader.Shader
}

type SphereOpt func(*Sphere)

// WithTolerance sets the self-intersection tolerance.
func WithTolerance(eps float64) SphereOpt {
	return func(s *Sphere) {
		s.tolerance = eps
	}
}

func NewSphere(center vec3.T, radius float64, sh shader.Shader, opts ...SphereOpt) (*Sphere, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: radius %v must be positive and finite", ErrInvalidSphere, radius)
	}
	if !center.IsFinite() {
		return nil, fmt.Errorf("%w: center %v is not finite", ErrInvalidSphere, center)
	}
	if sh == nil {
		return nil, fmt.Errorf("%w: nil shader", ErrInvalidSphere)
	}

	s := &Sphere{
		center:    center,
		radius:    radius,
		tolerance: DefaultTolerance,
		shader:    sh,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !(s.tolerance >= 0) {
		return nil, fmt.Errorf("%w: tolerance %v must be non-negative", ErrInvalidSphere, s.tolerance)
	}
	return s, nil
}

func (s *Sphere) Center() vec3.T {
	return s.center
}

func (s *Sphere) Radius() float64 {
	return s.radius
}

func (s *Sphere) Shader() shader.Shader {
	return s.shader
}

// Intersect uses the geometric construction: dk is the distance along the ray
// to the point closest to the center, and d2 the squared distance between
// them.
//
// Only the near root is considered, so a ray starting inside the sphere
// misses it.
func (s *Sphere) Intersect(r ray.Ray) (contact.Contact, bool) {
	oc := vec3.SubVV(s.center, r.Origin)
	dk := vec3.IProd(oc, r.Dir)
	d2 := oc.NormSquared() - dk*dk

	r2 := s.radius * s.radius
	if d2 > r2 {
		return contact.Contact{}, false
	}

	f := math.Sqrt(r2 - d2)
	t := math.Min(dk+f, dk-f)
	if t < r.TMin-s.tolerance || t > r.TMax {
		return contact.Contact{}, false
	}

	p := r.Eval(t)
	return contact.Contact{
		T: t,
		I: vec3.Neg(r.Dir),
		P: p,
		O: r.Origin,
		N: vec3.DivVS(vec3.SubVV(p, s.center), s.radius),
	}, true
}
