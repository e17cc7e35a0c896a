package main

import (
	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/config"
	"github.com/Faultbox/bimstream/internal/engine/gpu"
	"github.com/Faultbox/bimstream/internal/layer"
	"github.com/Faultbox/bimstream/internal/logger"
	"github.com/Faultbox/bimstream/internal/quantize"
	"github.com/Faultbox/bimstream/internal/stream"
	"github.com/Faultbox/bimstream/internal/telemetry"
	"github.com/Faultbox/bimstream/pkg/math"
)

// headless loads into a recording device, draws one frame and logs the
// resulting statistics.
func headless(cfg *config.Config, msgs <-chan stream.Message, produced <-chan error) error {
	log := logger.Named("headless")

	rec := gpu.NewRecorder()
	stats := telemetry.NewStats()
	table := quantize.NewTable()
	l := layer.New(layer.SettingsFromConfig(cfg), layer.Deps{
		Device:   rec,
		Programs: gpu.StaticPrograms{},
		Basis:    table,
		Stats:    stats,
		Logger:   logger.Named("layer"),
	})
	defer l.Close()

	l.SetProgressListener(func(processed int) {
		log.Debug("progress", zap.Int("primitives", processed))
	})

	d := &stream.Dispatcher{Layer: l, Table: table}
	var applyErr error
	for m := range msgs {
		if applyErr != nil {
			continue // drain so the producer can finish
		}
		applyErr = d.Apply(m)
	}
	if err := <-produced; err != nil {
		return err
	}
	if applyErr != nil {
		return applyErr
	}

	view := layer.NewView(math.Identity(), math.Identity(), 0)
	for _, transparent := range []bool{false, true} {
		if err := l.Render(transparent, view); err != nil {
			return err
		}
	}

	log.Info("frame recorded",
		zap.Int("buffers", len(l.Buffers())),
		zap.Int("reused_buffers", len(l.ReusedBuffers())),
		zap.Int("draws", len(rec.CallsOf(gpu.OpDrawElements))),
		zap.Int("instanced_draws", len(rec.CallsOf(gpu.OpDrawElementsInstanced))),
		zap.Int("live_buffers", rec.LiveBuffers()),
	)
	stats.Log(logger.Named("stats"))
	return nil
}
