package scenefile

import "fmt"

// SyntheticOptions size a generated building.
type SyntheticOptions struct {
	Loaders          int // one session per loader, stacked vertically
	Storeys          int // per loader
	WallsPerStorey   int // unique geometry each
	ColumnsPerStorey int // all columns of a loader share one geometry
	Windows          bool
	Spaces           bool
}

// DefaultSynthetic is a small building useful for smoke tests.
var DefaultSynthetic = SyntheticOptions{
	Loaders:          1,
	Storeys:          3,
	WallsPerStorey:   8,
	ColumnsPerStorey: 6,
	Windows:          true,
	Spaces:           true,
}

var palette = [][4]float32{
	{0.85, 0.82, 0.75, 1},
	{0.60, 0.62, 0.65, 1},
	{0.75, 0.45, 0.35, 1},
}

const (
	storeyHeight  = 3
	wallLength    = 5
	wallThickness = 0.2
	columnSize    = 0.4
)

// Synthetic generates a building of walls, shared columns, transparent
// windows and hidden spaces.
func Synthetic(opts SyntheticOptions) *Scene {
	scene := &Scene{Name: fmt.Sprintf("synthetic-%dx%d", opts.Loaders, opts.Storeys)}

	for l := range opts.Loaders {
		sess := &Session{Loader: l + 1, Roid: int64(l + 1)}
		id := int64(0)
		next := func() int64 {
			id++
			return id
		}
		base := float32(l * opts.Storeys * storeyHeight)

		column := &Geometry{
			ID:    next(),
			Shape: "box",
			Size:  [3]float32{columnSize, storeyHeight, columnSize},
			Color: palette[1],
		}
		if opts.ColumnsPerStorey > 0 {
			sess.Geometries = append(sess.Geometries, column)
		}

		for s := range opts.Storeys {
			y := base + float32(s*storeyHeight)

			for w := range opts.WallsPerStorey {
				g := &Geometry{
					ID:    next(),
					Shape: "box",
					Size:  [3]float32{wallLength, storeyHeight, wallThickness},
					Color: palette[(s+w)%len(palette)],
				}
				sess.Geometries = append(sess.Geometries, g)
				sess.Objects = append(sess.Objects, &Object{
					ID:          next(),
					Type:        "IfcWall",
					Geometry:    []int64{g.ID},
					Translation: [3]float32{float32(w * wallLength), y, 0},
				})

				if opts.Windows && w%2 == 1 {
					win := &Geometry{
						ID:    next(),
						Shape: "plane",
						Size:  [3]float32{1.5, 1.2, 0},
						Color: [4]float32{0.5, 0.7, 0.9, 0.4},
					}
					sess.Geometries = append(sess.Geometries, win)
					sess.Objects = append(sess.Objects, &Object{
						ID:          next(),
						Type:        "IfcWindow",
						Geometry:    []int64{win.ID},
						Translation: [3]float32{float32(w*wallLength) + 1.75, y + 1, wallThickness + 0.01},
					})
				}
			}

			for c := range opts.ColumnsPerStorey {
				sess.Objects = append(sess.Objects, &Object{
					ID:          next(),
					Type:        "IfcColumn",
					Geometry:    []int64{column.ID},
					Translation: [3]float32{float32(c * wallLength), y, 2},
				})
			}

			if opts.Spaces && opts.WallsPerStorey > 0 {
				space := &Geometry{
					ID:    next(),
					Shape: "box",
					Size:  [3]float32{float32(opts.WallsPerStorey * wallLength), storeyHeight, 4},
					Color: [4]float32{0.2, 0.8, 0.2, 0.3},
				}
				sess.Geometries = append(sess.Geometries, space)
				sess.Objects = append(sess.Objects, &Object{
					ID:          next(),
					Type:        "IfcSpace",
					Geometry:    []int64{space.ID},
					Translation: [3]float32{0, y, wallThickness},
				})
			}
		}

		scene.Sessions = append(scene.Sessions, sess)
	}
	return scene
}
