package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/config"
	"github.com/Faultbox/bimstream/internal/engine/camera"
	"github.com/Faultbox/bimstream/internal/engine/debug"
	"github.com/Faultbox/bimstream/internal/engine/gldevice"
	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/internal/engine/input"
	"github.com/Faultbox/bimstream/internal/engine/lighting"
	"github.com/Faultbox/bimstream/internal/engine/shader"
	"github.com/Faultbox/bimstream/internal/engine/window"
	"github.com/Faultbox/bimstream/internal/layer"
	"github.com/Faultbox/bimstream/internal/logger"
	"github.com/Faultbox/bimstream/internal/quantize"
	"github.com/Faultbox/bimstream/internal/stream"
	"github.com/Faultbox/bimstream/internal/telemetry"
)

// Time per frame spent applying streamed messages; the rest goes to drawing.
const ingestBudget = 8 * time.Millisecond

// view opens a window and renders the layer while messages stream in.
// Everything runs on the main thread, which owns the GL context.
func view(ctx context.Context, cfg *config.Config, msgs <-chan stream.Message, produced <-chan error) error {
	log := logger.Named("viewer")

	win, err := window.New("bimstream", cfg.Window)
	if err != nil {
		return err
	}
	defer win.Close()

	dev, err := gldevice.New()
	if err != nil {
		return err
	}
	shaders := shader.NewManager()
	defer shaders.Close()

	// The light is fixed relative to the camera, so its buffer never changes.
	lightBuffer, err := dev.CreateBuffer(gpu.UniformBuffer, lighting.Default().Std140())
	if err != nil {
		return errors.Wrap(err, "failed to create light buffer")
	}
	defer dev.DeleteBuffers(lightBuffer)

	stats := telemetry.NewStats()
	table := quantize.NewTable()
	l := layer.New(layer.SettingsFromConfig(cfg), layer.Deps{
		Device:   dev,
		Programs: shaders,
		Basis:    table,
		Stats:    stats,
		Logger:   logger.Named("layer"),
	})
	defer l.Close()

	progress := 0
	l.SetProgressListener(func(processed int) { progress = processed })

	d := &stream.Dispatcher{Layer: l, Table: table}
	cam := camera.NewOrbitCamera()
	var sceneBounds *quantize.Bounds
	in := input.New()
	shots := debug.NewScreenshotCapture("screenshots", "bimstream")

	width, height := win.Size()
	dev.Resize(width, height)

	showTransparent := true
	loading := true
	lastTitle := time.Now()

	for ctx.Err() == nil {
		frame := in.Update()
		if frame.Quit {
			break
		}
		if frame.Resized {
			width, height = win.Size()
			dev.Resize(width, height)
		}
		if frame.ToggleTransparent {
			showTransparent = !showTransparent
		}
		if frame.Reset && sceneBounds != nil {
			cam.FitToBounds(sceneBounds.Min, sceneBounds.Max)
		}
		cam.HandleDrag(frame.DragX, frame.DragY)
		cam.HandlePan(frame.PanX, frame.PanY)
		if frame.Zoom != 0 {
			cam.HandleZoom(frame.Zoom)
		}

		if loading {
			deadline := time.Now().Add(ingestBudget)
		ingest:
			for time.Now().Before(deadline) {
				select {
				case m, ok := <-msgs:
					if !ok {
						loading = false
						if err := <-produced; err != nil {
							return err
						}
						log.Info("loading finished")
						stats.Log(logger.Named("stats"))
						break ingest
					}
					if m.Kind == stream.KindSession && m.Session.Global != nil && sceneBounds == nil {
						b := *m.Session.Global
						sceneBounds = &b
						cam.FitToBounds(b.Min, b.Max)
					}
					if err := d.Apply(m); err != nil {
						return err
					}
				default:
					break ingest
				}
			}
		}

		dev.Begin()
		aspect := float32(width) / float32(max(height, 1))
		v := layer.NewView(cam.ProjectionMatrix(aspect), cam.ViewMatrix(), lightBuffer)
		if err := l.Render(false, v); err != nil {
			return err
		}
		if showTransparent {
			dev.SetBlending(true)
			err := l.Render(true, v)
			dev.SetBlending(false)
			if err != nil {
				return err
			}
		}
		if frame.Screenshot {
			name, err := shots.CaptureFromPixels(dev.ReadPixels(width, height), width, height)
			if err != nil {
				log.Warn("screenshot failed", zap.Error(err))
			} else {
				log.Info("screenshot saved", zap.String("file", name))
			}
		}
		win.SwapBuffers()

		if time.Since(lastTitle) > time.Second {
			lastTitle = time.Now()
			state := "loaded"
			if loading {
				state = "loading"
			}
			win.SetTitle(fmt.Sprintf("bimstream - %s %d primitives, %d buffers",
				state, progress, len(l.Buffers())+len(l.ReusedBuffers())))
		}
	}

	log.Info("viewer closed", zap.Int("primitives", progress))
	return nil
}
