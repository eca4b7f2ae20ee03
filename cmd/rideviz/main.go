package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/mehlleniumfalke/rideviz/app"
	"github.com/mehlleniumfalke/rideviz/pipeline"
)

func main() {
	cmd := &cli.Command{
		Name:  "rideviz",
		Usage: "Turn activity files into stylized 3D route visualizations",
		Commands: []*cli.Command{
			serveCommand(),
			renderCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP service",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			server := app.NewServer()
			server.RunForever()
			return nil
		},
	}
}

func renderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Render a GPX/FIT file to a PNG without running the service",
		ArgsUsage: "<activity file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Value: "route.png", Usage: "output PNG path"},
			&cli.StringFlag{Name: "gradient", Value: "fire", Usage: "gradient name"},
			&cli.IntFlag{Name: "width", Value: 1080, Usage: "output width"},
			&cli.IntFlag{Name: "height", Value: 1080, Usage: "output height"},
			&cli.IntFlag{Name: "smoothing", Value: 30, Usage: "smoothing level (0-100)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			inputPath := cmd.Args().First()
			if inputPath == "" {
				return fmt.Errorf("an activity file argument is required")
			}

			format, ok := pipeline.FormatFromFilename(inputPath)
			if !ok {
				return fmt.Errorf("unsupported file format: %s", inputPath)
			}

			data, err := os.ReadFile(inputPath)
			if err != nil {
				return err
			}

			parsed, err := pipeline.Parse(data, format)
			if err != nil {
				return err
			}
			processed, err := pipeline.Process(parsed)
			if err != nil {
				return err
			}

			options := pipeline.Route3DDefaults()
			options.Width = int(cmd.Int("width"))
			options.Height = int(cmd.Int("height"))
			options.Smoothing = int(cmd.Int("smoothing"))
			options.Simplify, options.CurveTension = pipeline.SmoothingToRouteParams(options.Smoothing)
			if gradient, ok := pipeline.GradientByName(cmd.String("gradient")); ok {
				options.Gradient = gradient
			}

			vizData, err := pipeline.Prepare(processed, &options)
			if err != nil {
				return err
			}

			svgText, err := pipeline.RenderSVGFrame(vizData, &options, 1.0, nil)
			if err != nil {
				return err
			}

			pipeline.InitFonts(nil)
			output := pipeline.OutputConfig{Width: options.Width, Height: options.Height}
			pngBytes, err := pipeline.Rasterize(svgText, &output)
			if err != nil {
				return err
			}

			outPath := cmd.String("out")
			if err := os.WriteFile(outPath, pngBytes, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d bytes, %.2f km)\n", outPath, len(pngBytes), processed.Metrics.DistanceKm)
			return nil
		},
	}
}
