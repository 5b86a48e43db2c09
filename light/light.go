// Package light holds the scene's emitters.
package light

import (
	"aotrace/vmath/vec3"
)

// Light is an emitter that can be sampled for positions on its surface.
type Light interface {
	// Sample returns one position on the light.
	Sample() vec3.T

	// Samples returns a fixed set of positions covering the light.
	Samples() []vec3.T

	Intensity() vec3.T
}

// Point is an infinitesimal light.
type Point struct {
	Position vec3.T
	Color    vec3.T
}

func (p *Point) Sample() vec3.T {
	return p.Position
}

func (p *Point) Samples() []vec3.T {
	return []vec3.T{p.Position}
}

func (p *Point) Intensity() vec3.T {
	return p.Color
}
