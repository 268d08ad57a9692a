/*
This is an example of application that will use the
engine packages to test the visibility culling out
*/
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spaghettifunk/astra/engine/core"
	"github.com/spaghettifunk/astra/engine/math"
	"github.com/spaghettifunk/astra/engine/renderer/components"
	"github.com/spaghettifunk/astra/engine/renderer/soft"
	"github.com/spaghettifunk/astra/engine/systems"
	"github.com/spaghettifunk/astra/testbed"
)

func main() {
	backend := soft.New()

	scene, err := testbed.NewScene(backend, &testbed.SceneConfig{
		ObjectCount:  512,
		Passes:       []uint32{0, 1, 2},
		CorruptEvery: 64,
		LeafSize:     8,
	})
	if err != nil {
		panic(err)
	}
	defer scene.Destroy()

	settings, err := systems.NewSettingsSystem("assets/culling.toml")
	if err != nil {
		panic(err)
	}
	if err := settings.Initialize(); err != nil {
		panic(err)
	}
	defer settings.Shutdown()

	cullSystem, err := systems.NewCullSystem(&systems.CullSystemConfig{MaxPassCount: 8}, backend, scene)
	if err != nil {
		panic(err)
	}
	defer cullSystem.Shutdown()

	settings.Subscribe(cullSystem.ApplySettings)

	for _, pass := range []uint32{0, 1, 2} {
		if _, err := cullSystem.RegisterPass(pass); err != nil {
			panic(err)
		}
	}

	camera := components.NewCamera()
	camera.Position = math.Vec3{X: 0, Y: 12, Z: 40}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			core.LogInfo("shutting down")
			return
		case <-ticker.C:
			// Slowly orbit so pass visibility changes frame to frame.
			camera.Yaw(0.01)

			stats := cullSystem.CullAll(camera)
			for pass, stat := range stats {
				pipeline, _ := cullSystem.Pipeline(pass)
				if reason, skipped := pipeline.WasSubmissionSkipped(); skipped {
					core.LogWarn("pass %d skipped: %s", pass, reason)
					continue
				}
				core.LogDebug("pass %d: %s, %d/%d visible (%d instances, %d overflow) in %s",
					pass, stat.Strategy, stat.Visible, stat.Candidates, stat.VisibleInstances, stat.Overflow, stat.Duration)
			}
		}
	}
}
