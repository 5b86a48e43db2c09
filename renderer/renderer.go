// Package renderer shades camera rays against a scene and drives the
// parallel per-pixel loop that fills an image.
package renderer

import (
	"errors"
	"math/rand"

	"aotrace/contact"
	"aotrace/ray"
	"aotrace/scene"
	"aotrace/vmath/vec3"
)

// Renderer evaluates the color carried back along a ray.  It is read-only
// after construction and may be shared between goroutines.
type Renderer struct {
	scene      *scene.Scene
	background vec3.T
}

type Opt func(*Renderer)

// WithBackground sets the color returned for rays that hit nothing.  The
// default is black.
func WithBackground(c vec3.T) Opt {
	return func(r *Renderer) {
		r.background = c
	}
}

func New(s *scene.Scene, opts ...Opt) (*Renderer, error) {
	if s == nil {
		return nil, errors.New("renderer needs a scene")
	}

	r := &Renderer{
		scene: s,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Renderer) Scene() *scene.Scene {
	return r.scene
}

func (r *Renderer) Background() vec3.T {
	return r.background
}

// Intersect answers nearest-hit queries for shaders casting secondary rays.
func (r *Renderer) Intersect(q *ray.Ray) (contact.Contact, bool) {
	c, _, hit := r.scene.Intersect(q)
	return c, hit
}

// Render returns the color seen along q.  Hits are shaded by the struck
// shape's shader, which may trace further rays through r.
func (r *Renderer) Render(q ray.Ray, rng *rand.Rand) vec3.T {
	c, shape, hit := r.scene.Intersect(&q)
	if !hit {
		return r.background
	}
	return shape.Shader().Shade(c, r, rng)
}
