// Package input turns SDL2 events into viewer controls.
package input

import (
	"github.com/veandco/go-sdl2/sdl"
)

// Frame is the input gathered since the previous Update.
type Frame struct {
	Quit    bool
	Resized bool
	Width   int
	Height  int

	// DragX and DragY are the pixels moved with the left button held.
	DragX, DragY float32
	// PanX and PanY are the pixels moved with the right or middle button held.
	PanX, PanY float32
	// Zoom is the sum of wheel steps; positive zooms in.
	Zoom float32

	// Reset asks to refit the camera to the scene.
	Reset bool
	// ToggleTransparent flips drawing of the transparent pass.
	ToggleTransparent bool
	Screenshot        bool
}

// Input polls SDL events into frames.
type Input struct {
	frame Frame
}

// New creates an input handler.
func New() *Input {
	return &Input{}
}

// Update drains the SDL event queue and returns what happened.
func (i *Input) Update() Frame {
	i.frame = Frame{}

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			i.frame.Quit = true

		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_RESIZED || e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
				i.frame.Resized = true
				i.frame.Width = int(e.Data1)
				i.frame.Height = int(e.Data2)
			}

		case *sdl.KeyboardEvent:
			if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
				continue
			}
			switch e.Keysym.Sym {
			case sdl.K_ESCAPE, sdl.K_q:
				i.frame.Quit = true
			case sdl.K_r:
				i.frame.Reset = true
			case sdl.K_t:
				i.frame.ToggleTransparent = true
			case sdl.K_p:
				i.frame.Screenshot = true
			}

		case *sdl.MouseMotionEvent:
			switch {
			case e.State&sdl.ButtonLMask() != 0:
				i.frame.DragX += float32(e.XRel)
				i.frame.DragY += float32(e.YRel)
			case e.State&(sdl.ButtonRMask()|sdl.ButtonMMask()) != 0:
				i.frame.PanX += float32(e.XRel)
				i.frame.PanY += float32(e.YRel)
			}

		case *sdl.MouseWheelEvent:
			i.frame.Zoom += float32(e.Y)
		}
	}

	return i.frame
}
