// Package shader turns a surface contact into a color.
package shader

import (
	"fmt"
	"math"
	"math/rand"

	"aotrace/contact"
	"aotrace/ray"
	"aotrace/vmath/mat33"
	"aotrace/vmath/vec3"
	"aotrace/warp"
)

// Tracer answers nearest-hit queries for secondary rays.  Implementations
// may tighten r.TMax.
type Tracer interface {
	Intersect(r *ray.Ray) (contact.Contact, bool)
}

// Shader computes the color leaving a contact toward the ray origin.
//
// Shaders are shared between shapes and called from many goroutines at
// once, so Shade must not mutate the shader.  All randomness comes from rng,
// which belongs to the calling goroutine.
type Shader interface {
	Shade(c contact.Contact, t Tracer, rng *rand.Rand) vec3.T
}

// Gouraud colors a surface by its normal, mapping each normal component from
// [-1, 1] to [0, 1] and tinting by Color.
type Gouraud struct {
	Color vec3.T
}

func (g *Gouraud) Shade(c contact.Contact, t Tracer, rng *rand.Rand) vec3.T {
	return vec3.MulVV(g.Color, vec3.AddVS(vec3.MulVS(c.N, 0.5), 0.5))
}

// Phong returns its color unlit.
//
// TODO(aotrace): light it with the scene's point lights once Tracer exposes
// them.
type Phong struct {
	Color vec3.T
}

func (p *Phong) Shade(c contact.Contact, t Tracer, rng *rand.Rand) vec3.T {
	return p.Color
}

// SecondaryTMin is the lower bound of occlusion rays: the float64 machine
// epsilon.
const SecondaryTMin = 2.220446049250313e-16

// AmbientOcclusion estimates the unoccluded fraction of the hemisphere above
// a contact by Monte Carlo sampling, scaled by Color.
type AmbientOcclusion struct {
	Samples int
	Color   vec3.T

	// Anything other than UniformHemisphere samples cosine-weighted.
	sampling warp.Distribution
}

type AOOpt func(*AmbientOcclusion)

// WithSampling selects the hemisphere distribution for occlusion probes.
// Only CosineHemisphere and UniformHemisphere are accepted.
func WithSampling(d warp.Distribution) AOOpt {
	return func(a *AmbientOcclusion) {
		a.sampling = d
	}
}

func NewAmbientOcclusion(samples int, color vec3.T, opts ...AOOpt) (*AmbientOcclusion, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("ambient occlusion sample count must be positive, got %d", samples)
	}

	a := &AmbientOcclusion{
		Samples:  samples,
		Color:    color,
		sampling: warp.CosineHemisphere,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.sampling != warp.CosineHemisphere && a.sampling != warp.UniformHemisphere {
		return nil, fmt.Errorf("ambient occlusion cannot sample from %v", a.sampling)
	}
	return a, nil
}

func (a *AmbientOcclusion) Sampling() warp.Distribution {
	if a.sampling == warp.UniformHemisphere {
		return warp.UniformHemisphere
	}
	return warp.CosineHemisphere
}

// Shade casts Samples rays from the contact point into the hemisphere around
// the normal.  Each ray that escapes contributes Color, weighted by
// cos(theta) / (pi * pdf).
//
// Under cosine-weighted sampling the weight is exactly 1.
func (a *AmbientOcclusion) Shade(c contact.Contact, t Tracer, rng *rand.Rand) vec3.T {
	toWorld := warp.RotateToAlign(vec3.ZAxis, c.N)
	sampling := a.Sampling()

	accum := vec3.T{}
	for i := 0; i < a.Samples; i++ {
		local := warp.Warp(rng.Float64(), rng.Float64(), sampling)
		dir := mat33.MulMV(toWorld, local)

		probe := ray.New(c.P, dir, SecondaryTMin, math.Inf(1))
		if _, hit := t.Intersect(&probe); hit {
			continue
		}

		if sampling == warp.CosineHemisphere {
			accum = vec3.AddVV(accum, a.Color)
		} else {
			accum = vec3.AddVV(accum, vec3.MulVS(a.Color, 2*local[2]))
		}
	}

	return vec3.DivVS(accum, float64(a.Samples))
}
