package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/config"
	"github.com/Faultbox/bimstream/internal/logger"
	"github.com/Faultbox/bimstream/internal/scenefile"
	"github.com/Faultbox/bimstream/internal/stream"
)

func sceneOptions(cfg *config.Config) scenefile.Options {
	return scenefile.Options{
		GeometryLast:     cfg.Stream.GeometryLast,
		QuantizeVertices: cfg.Loader.QuantizeVertices,
		QuantizeNormals:  cfg.Loader.QuantizeNormals,
	}
}

func synthetic() *scenefile.Scene {
	opts := scenefile.DefaultSynthetic
	if n := config.SyntheticStoreys(); n > 0 {
		opts.Storeys = n
	}
	return scenefile.Synthetic(opts)
}

// loadScene returns the messages of the --scene file, or of a synthetic
// building when no file is given.
func loadScene(cfg *config.Config) ([]stream.Message, error) {
	scene := synthetic()
	if path := config.ScenePath(); path != "" {
		var err error
		if scene, err = scenefile.Load(path); err != nil {
			return nil, err
		}
	}
	return scene.Messages(sceneOptions(cfg))
}

// produce feeds out from the configured stream URL or from a local scene and
// closes it when the source is exhausted.
func produce(ctx context.Context, cfg *config.Config, out chan<- stream.Message) error {
	defer close(out)

	if cfg.Stream.URL != "" {
		return stream.NewClient(cfg.Stream).Run(ctx, out)
	}

	msgs, err := loadScene(cfg)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		select {
		case out <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// serve replays the scene to every client. A scene file is watched and
// reloaded on change.
func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("serve")

	var source stream.Source
	if path := config.ScenePath(); path != "" {
		w, err := scenefile.NewWatcher(path, sceneOptions(cfg))
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Warn("scene watcher stopped", zap.Error(err))
			}
		}()
		source = w
	} else {
		msgs, err := synthetic().Messages(sceneOptions(cfg))
		if err != nil {
			return err
		}
		source = stream.SourceFunc(func() ([]stream.Message, error) { return msgs, nil })
	}

	return stream.NewServer(source).ListenAndServe(ctx, cfg.Stream.Listen)
}
