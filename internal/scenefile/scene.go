// Package scenefile describes test and demo scenes for the stream server.
// A scene is a list of loader sessions, each with its geometries and the
// objects placing them. Scenes load from YAML or TOML, import glTF meshes,
// or are generated synthetically, and convert to the loader message stream.
package scenefile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrDuplicateID     = errors.New("scenefile: duplicate id")
	ErrUnknownGeometry = errors.New("scenefile: object references unknown geometry")
	ErrUnknownShape    = errors.New("scenefile: unknown shape")
	ErrEmptyGeometry   = errors.New("scenefile: geometry has no triangles")
)

// Scene is a complete streamed model.
type Scene struct {
	Name     string     `yaml:"name" toml:"name"`
	Sessions []*Session `yaml:"sessions" toml:"sessions"`
}

// Session is one loader and the revision it streams.
type Session struct {
	Loader int   `yaml:"loader" toml:"loader"`
	Roid   int64 `yaml:"roid" toml:"roid"`
	// GLTF names a glTF file whose meshes and nodes are appended to the
	// session. Relative paths resolve against the scene file.
	GLTF       string      `yaml:"gltf,omitempty" toml:"gltf,omitempty"`
	Geometries []*Geometry `yaml:"geometries" toml:"geometries"`
	Objects    []*Object   `yaml:"objects" toml:"objects"`
}

// Geometry is either a generated shape or explicit triangle data.
type Geometry struct {
	ID    int64      `yaml:"id" toml:"id"`
	Shape string     `yaml:"shape,omitempty" toml:"shape,omitempty"` // box, plane
	Size  [3]float32 `yaml:"size,omitempty" toml:"size,omitempty"`

	Positions []float32 `yaml:"positions,omitempty" toml:"positions,omitempty"`
	Normals   []float32 `yaml:"normals,omitempty" toml:"normals,omitempty"`
	Colors    []float32 `yaml:"colors,omitempty" toml:"colors,omitempty"`
	Indices   []uint32  `yaml:"indices,omitempty" toml:"indices,omitempty"`

	Color       [4]float32 `yaml:"color" toml:"color"`
	Transparent bool       `yaml:"transparent,omitempty" toml:"transparent,omitempty"`
	// Reused overrides the reference count derived from the objects.
	Reused int `yaml:"reused,omitempty" toml:"reused,omitempty"`
}

// Object places geometries in the scene.
type Object struct {
	ID       int64   `yaml:"id" toml:"id"`
	Oid      int64   `yaml:"oid,omitempty" toml:"oid,omitempty"`
	Type     string  `yaml:"type" toml:"type"`
	Geometry []int64 `yaml:"geometry" toml:"geometry"`

	Translation [3]float32 `yaml:"translation,omitempty" toml:"translation,omitempty"`
	Rotation    *Rotation  `yaml:"rotation,omitempty" toml:"rotation,omitempty"`
	Scale       [3]float32 `yaml:"scale,omitempty" toml:"scale,omitempty"`
	// Matrix, when set, replaces translation, rotation and scale.
	Matrix      *[16]float32 `yaml:"matrix,omitempty" toml:"matrix,omitempty"`
	Transparent bool         `yaml:"transparent,omitempty" toml:"transparent,omitempty"`
}

// Rotation is either an axis and an angle in degrees, or a quaternion.
type Rotation struct {
	Axis       [3]float32  `yaml:"axis,omitempty" toml:"axis,omitempty"`
	Angle      float32     `yaml:"angle,omitempty" toml:"angle,omitempty"`
	Quaternion *[4]float32 `yaml:"quaternion,omitempty" toml:"quaternion,omitempty"` // x, y, z, w
}

// Load reads a scene file. Files ending in .toml are decoded as TOML,
// anything else as YAML. glTF references are imported relative to the
// file's directory.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scene file")
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}

	scene, err := Parse(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse scene %s", path)
	}
	if err := scene.importGLTF(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return scene, nil
}

// Parse decodes a scene in the given format, "yaml" or "toml".
func Parse(data []byte, format string) (*Scene, error) {
	scene := &Scene{}
	switch format {
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(scene); err != nil {
			return nil, errors.Wrap(err, "failed to decode toml")
		}
	case "yaml", "yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(scene); err != nil {
			return nil, errors.Wrap(err, "failed to decode yaml")
		}
	default:
		return nil, errors.Errorf("unknown scene format %q", format)
	}
	return scene, nil
}

// Save writes the scene as YAML.
func (s *Scene) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to marshal scene")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write scene file")
	}
	return nil
}

func (s *Scene) importGLTF(dir string) error {
	for _, sess := range s.Sessions {
		if sess.GLTF == "" {
			continue
		}
		path := sess.GLTF
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if err := ImportGLTF(path, sess); err != nil {
			return err
		}
		sess.GLTF = ""
	}
	return nil
}

// Counts returns the number of geometries and objects in the scene.
func (s *Scene) Counts() (geometries, objects int) {
	for _, sess := range s.Sessions {
		geometries += len(sess.Geometries)
		objects += len(sess.Objects)
	}
	return geometries, objects
}
