// Package scenepack builds scenes from YAML descriptions, and provides the
// built-in default scene.
package scenepack

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"aotrace/camera"
	"aotrace/geometry"
	"aotrace/light"
	"aotrace/scene"
	"aotrace/shader"
	"aotrace/vmath/vec3"
	"aotrace/warp"

	"sigs.k8s.io/yaml"
)

// DefaultSamples is the ambient occlusion sample count of the default scene.
const DefaultSamples = 128

// Pack is a loaded scene plus the viewing parameters that came with it.
type Pack struct {
	Scene      *scene.Scene
	CameraOpts []camera.Opt
	Background vec3.T
}

// Default returns two unit spheres resting on a huge ground sphere, all
// shaded by one shared ambient occlusion shader.
func Default(samples int) (*Pack, error) {
	ao, err := shader.NewAmbientOcclusion(samples, vec3.T{0.5, 0.5, 0.5})
	if err != nil {
		return nil, fmt.Errorf("while creating default shader: %w", err)
	}

	spheres := []struct {
		center vec3.T
		radius float64
	}{
		{vec3.T{-2, 0, 0}, 1},
		{vec3.T{2, 0, 0}, 1},
		{vec3.T{0, 0, -1e7 - 1}, 1e7},
	}

	shapes := []geometry.Shape{}
	for _, s := range spheres {
		sphere, err := geometry.NewSphere(s.center, s.radius, ao)
		if err != nil {
			return nil, fmt.Errorf("while creating default sphere: %w", err)
		}
		shapes = append(shapes, sphere)
	}

	sc, err := scene.New(shapes, nil)
	if err != nil {
		return nil, fmt.Errorf("while creating default scene: %w", err)
	}
	return &Pack{Scene: sc}, nil
}

// vecDef is a vector written as a three-element list.
type vecDef vec3.T

func (v *vecDef) UnmarshalJSON(data []byte) error {
	var elts []float64
	if err := json.Unmarshal(data, &elts); err != nil {
		return err
	}
	if len(elts) != 3 {
		return fmt.Errorf("vector needs 3 components, got %d", len(elts))
	}
	copy(v[:], elts)
	return nil
}

type sceneFile struct {
	Background *vecDef      `json:"background,omitempty"`
	Camera     *cameraBlock `json:"camera,omitempty"`
	Shaders    []shaderDef  `json:"shaders"`
	Spheres    []sphereDef  `json:"spheres"`
	Lights     []lightDef   `json:"lights,omitempty"`
}

type cameraBlock struct {
	Position    *vecDef  `json:"position,omitempty"`
	Front       *vecDef  `json:"front,omitempty"`
	Up          *vecDef  `json:"up,omitempty"`
	FieldOfView *float64 `json:"fieldOfView,omitempty"`
	Near        *float64 `json:"near,omitempty"`
	Far         *float64 `json:"far,omitempty"`
}

type shaderDef struct {
	Name string `json:"name"`

	// Exactly one of these is set.
	Gouraud          *colorDef `json:"gouraud,omitempty"`
	Phong            *colorDef `json:"phong,omitempty"`
	AmbientOcclusion *aoDef    `json:"ambientOcclusion,omitempty"`
}

type colorDef struct {
	Color vecDef `json:"color"`
}

type aoDef struct {
	Samples  int    `json:"samples"`
	Color    vecDef `json:"color"`
	Sampling string `json:"sampling,omitempty"`
}

type sphereDef struct {
	Center    vecDef   `json:"center"`
	Radius    float64  `json:"radius"`
	Shader    string   `json:"shader"`
	Tolerance *float64 `json:"tolerance,omitempty"`
}

type lightDef struct {
	Position vecDef `json:"position"`
	Color    vecDef `json:"color"`
}

func LoadScene(fileName string) (*Pack, error) {
	fileBytes, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("while opening scene file: %w", err)
	}

	pack, err := ParseScene(fileBytes)
	if err != nil {
		return nil, fmt.Errorf("while parsing %s: %w", fileName, err)
	}
	return pack, nil
}

// ParseScene builds a Pack from a YAML scene description.  Spheres refer to
// shaders by name, and spheres naming the same shader share it.
func ParseScene(data []byte) (*Pack, error) {
	sf := &sceneFile{}
	if err := yaml.UnmarshalStrict(data, sf); err != nil {
		return nil, fmt.Errorf("while unmarshaling scene: %w", err)
	}

	shaders := map[string]shader.Shader{}
	for i, def := range sf.Shaders {
		if def.Name == "" {
			return nil, fmt.Errorf("shader %d has no name", i)
		}
		if _, ok := shaders[def.Name]; ok {
			return nil, fmt.Errorf("shader %q defined twice", def.Name)
		}

		sh, err := convertShader(def)
		if err != nil {
			return nil, fmt.Errorf("while converting shader %q: %w", def.Name, err)
		}
		shaders[def.Name] = sh
	}

	shapes := []geometry.Shape{}
	for i, def := range sf.Spheres {
		sh, ok := shaders[def.Shader]
		if !ok {
			return nil, fmt.Errorf("sphere %d references unknown shader %q", i, def.Shader)
		}

		opts := []geometry.SphereOpt{}
		if def.Tolerance != nil {
			opts = append(opts, geometry.WithTolerance(*def.Tolerance))
		}

		sphere, err := geometry.NewSphere(vec3.T(def.Center), def.Radius, sh, opts...)
		if err != nil {
			return nil, fmt.Errorf("while converting sphere %d: %w", i, err)
		}
		shapes = append(shapes, sphere)
	}

	lights := []light.Light{}
	for _, def := range sf.Lights {
		lights = append(lights, &light.Point{
			Position: vec3.T(def.Position),
			Color:    vec3.T(def.Color),
		})
	}

	sc, err := scene.New(shapes, lights)
	if err != nil {
		return nil, fmt.Errorf("while assembling scene: %w", err)
	}

	pack := &Pack{
		Scene:      sc,
		CameraOpts: convertCamera(sf.Camera),
	}
	if sf.Background != nil {
		pack.Background = vec3.T(*sf.Background)
	}
	return pack, nil
}

func convertShader(def shaderDef) (shader.Shader, error) {
	var sh shader.Shader
	set := 0

	if def.Gouraud != nil {
		sh = &shader.Gouraud{Color: vec3.T(def.Gouraud.Color)}
		set++
	}
	if def.Phong != nil {
		sh = &shader.Phong{Color: vec3.T(def.Phong.Color)}
		set++
	}
	if def.AmbientOcclusion != nil {
		opts := []shader.AOOpt{}
		if def.AmbientOcclusion.Sampling != "" {
			d, err := warp.ParseDistribution(def.AmbientOcclusion.Sampling)
			if err != nil {
				return nil, err
			}
			opts = append(opts, shader.WithSampling(d))
		}

		ao, err := shader.NewAmbientOcclusion(def.AmbientOcclusion.Samples, vec3.T(def.AmbientOcclusion.Color), opts...)
		if err != nil {
			return nil, err
		}
		sh = ao
		set++
	}

	if set != 1 {
		return nil, errors.New("exactly one of gouraud, phong, or ambientOcclusion must be set")
	}
	return sh, nil
}

func convertCamera(block *cameraBlock) []camera.Opt {
	if block == nil {
		return nil
	}

	opts := []camera.Opt{}
	if block.Position != nil {
		opts = append(opts, camera.WithPosition(vec3.T(*block.Position)))
	}
	if block.Front != nil {
		opts = append(opts, camera.WithFront(vec3.T(*block.Front)))
	}
	if block.Up != nil {
		opts = append(opts, camera.WithUp(vec3.T(*block.Up)))
	}
	if block.FieldOfView != nil {
		opts = append(opts, camera.WithFieldOfView(*block.FieldOfView))
	}
	if block.Near != nil || block.Far != nil {
		near, far := camera.DefaultNear, camera.DefaultFar
		if block.Near != nil {
			near = *block.Near
		}
		if block.Far != nil {
			far = *block.Far
		}
		opts = append(opts, camera.WithClip(near, far))
	}
	return opts
}
