// Command collide steps a scene of convex bodies and prints the contacts
// found at every step.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/akmonengine/collide"
	"github.com/akmonengine/collide/actor"
	"github.com/akmonengine/collide/bvh"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	// Flags.
	flagScene   = "scene"
	flagFile    = "file"
	flagSteps   = "steps"
	flagWorkers = "workers"
	flagInsert  = "insert"
	flagDebug   = "debug"
	flagTrace   = "trace"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	var logger *zap.Logger

	return &cli.App{
		Name:  "collide",
		Usage: "run collision detection over a scene of convex bodies",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagScene,
				Value: "stack",
				Usage: "built-in scene: " + strings.Join(presetNames(), ", "),
			},
			&cli.StringFlag{
				Name:    flagFile,
				Aliases: []string{"f"},
				Usage:   "load the scene from a YAML `FILE` instead of a built-in one",
			},
			&cli.IntFlag{
				Name:  flagSteps,
				Value: 1,
				Usage: "number of steps to run",
			},
			&cli.IntFlag{
				Name:  flagWorkers,
				Usage: "narrowphase workers, overrides the scene config",
			},
			&cli.StringFlag{
				Name:  flagInsert,
				Usage: "tree insert mode (deep or shallow), overrides the scene config",
			},
			&cli.BoolFlag{
				Name:  flagTrace,
				Usage: "log the tree, candidate pairs and contacts of every step",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				logger = l
			} else {
				logger = zap.NewNop()
			}

			return nil
		},
		After: func(c *cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return run(c, logger)
		},
	}
}

func presetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func loadScene(c *cli.Context) (SceneFile, error) {
	if path := c.String(flagFile); path != "" {
		return loadSceneFile(path)
	}

	preset, ok := presets[c.String(flagScene)]
	if !ok {
		return SceneFile{}, errors.Errorf("unknown scene %q, expected one of %s", c.String(flagScene), strings.Join(presetNames(), ", "))
	}

	return SceneFile{Config: collide.DefaultConfig(), Bodies: preset()}, nil
}

func run(c *cli.Context, logger *zap.Logger) error {
	file, err := loadScene(c)
	if err != nil {
		return err
	}

	cfg := file.Config
	if c.IsSet(flagWorkers) {
		cfg.Workers = c.Int(flagWorkers)
	}
	if c.IsSet(flagInsert) {
		cfg.Tree.Mode = bvh.InsertMode(c.String(flagInsert))
	}

	opts := []collide.Option{collide.WithLogger(logger)}
	if c.Bool(flagTrace) {
		opts = append(opts, collide.WithDebugger(collide.LogDebugger{Logger: logger}))
	}
	scene, err := collide.NewScene(cfg, opts...)
	if err != nil {
		return err
	}

	bodies, err := buildBodies(file.Bodies)
	if err != nil {
		return err
	}
	names := make(map[*actor.Body]string, len(bodies))
	for _, b := range bodies {
		if err := scene.AddBody(b.body); err != nil {
			return err
		}
		names[b.body] = b.name
	}

	scene.Events.Subscribe(collide.CONTACT_EXIT, func(event collide.Event) {
		exit := event.(collide.ContactExitEvent)
		logger.Info("contact ended", zap.String("bodyA", names[exit.BodyA]), zap.String("bodyB", names[exit.BodyB]))
	})

	steps := c.Int(flagSteps)
	failures := 0
	for step := 0; step < steps; step++ {
		if step > 0 {
			advance(bodies)
		}

		collisions, err := scene.Step()
		if err != nil {
			// Failed pairs are already logged by the scene.
			failures++
		}
		writeContacts(c.App.Writer, step, collisions, names)
	}

	fmt.Fprintf(c.App.Writer, "%d bodies, %d steps, tree height %d\n", len(bodies), steps, scene.Tree().Height())
	if failures > 0 {
		return errors.Errorf("%d steps had failed pairs", failures)
	}

	return nil
}

// advance moves every body with a velocity by one step.
func advance(bodies []namedBody) {
	for _, b := range bodies {
		if b.velocity.Len() == 0 || b.body.BodyType == actor.BodyTypeStatic {
			continue
		}
		b.body.SetPosition(b.body.Transform.Position.Add(b.velocity))
	}
}

func writeContacts(w io.Writer, step int, collisions []collide.Collision, names map[*actor.Body]string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("step %d: %d contacts", step, len(collisions)))
	t.AppendHeader(table.Row{"#", "Body A", "Body B", "Depth", "Normal", "Point A", "Point B"})
	for i, c := range collisions {
		t.AppendRow(table.Row{
			i,
			names[c.BodyA],
			names[c.BodyB],
			fmt.Sprintf("%.4f", c.Depth),
			formatVec(c.Normal),
			formatVec(c.PointA),
			formatVec(c.PointB),
		})
	}
	t.Render()
}

func formatVec(v mgl64.Vec3) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X(), v.Y(), v.Z())
}
