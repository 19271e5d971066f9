// Command watershed segments an image into watershed basins and writes the
// recolored result.
package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/disintegration/imaging"
	"github.com/spf13/pflag"
	_ "golang.org/x/image/webp"

	"github.com/soypat/watershed"
	"github.com/soypat/watershed/automaton"
	"github.com/soypat/watershed/colorize"
	"github.com/soypat/watershed/filters"
	"github.com/soypat/watershed/internal/ppm"
	"github.com/soypat/watershed/internal/storage"
	"github.com/soypat/watershed/pipeline"
)

type flags struct {
	input, output string
	gradientOut   string
	strategy      string
	tileSize      int
	profiling     bool
	maxIterations int
	workers       int
	rule          string
	gradient      string
	luma          string
	color         string
	seedThreshold uint32
	gpu           bool
	upload        bool
	verbose       bool
}

func main() {
	var f flags
	fs := pflag.NewFlagSet("watershed", pflag.ContinueOnError)
	fs.StringVarP(&f.input, "input", "i", "", "input image (ppm, png, jpeg, gif, bmp, tiff, webp)")
	fs.StringVarP(&f.output, "output", "o", "out.ppm", "output image, format from extension")
	fs.StringVar(&f.gradientOut, "gradient-out", "", "also write the gradient surface to this file")
	fs.StringVarP(&f.strategy, "automaton", "a", "global", "access strategy: global, tiled (local) or surface (image)")
	fs.IntVarP(&f.tileSize, "localworksize", "l", 0, "tile size of the tiled strategy, 0 for default")
	fs.BoolVarP(&f.profiling, "profiling", "p", false, "log per-pass timing")
	fs.IntVar(&f.maxIterations, "max-iterations", 0, "relaxation pass budget, 0 for max(width, height)")
	fs.IntVar(&f.workers, "workers", 0, "worker goroutines, 0 for GOMAXPROCS")
	fs.StringVar(&f.rule, "rule", automaton.RuleMin.String(), "relaxation rule: min or minimax")
	fs.StringVar(&f.gradient, "gradient", filters.GradientSobel.String(), "gradient operator: sobel, central or morphological")
	fs.StringVar(&f.luma, "luma", filters.LumaBT709.String(), "luma mode: bt709, bt601, average or lightness")
	fs.StringVar(&f.color, "color", colorize.ModeMean.String(), "basin color: mean, luma or seed")
	fs.Uint32Var(&f.seedThreshold, "seed-threshold", 255, "highest gradient a local minimum may have to seed a basin")
	fs.BoolVar(&f.gpu, "gpu", false, "compute the gradient with WebGPU when available")
	fs.BoolVar(&f.upload, "upload", false, "upload the output to the WATERSHED_S3_* bucket")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	watershed.SetLogger(log)

	if err := run(f); err != nil {
		log.Error("watershed failed", "err", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	if f.input == "" {
		return fmt.Errorf("missing --input: %w", watershed.ErrInvalidConfig)
	}
	cfg, err := configFromFlags(f)
	if err != nil {
		return err
	}
	log := watershed.Logger()

	img, err := imaging.Open(f.input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	seg, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	defer seg.Close()
	if f.gpu {
		if g, err := newGradientGPU(cfg); err != nil {
			log.Warn("gpu unavailable, using cpu", "err", err)
		} else {
			seg.UseGPU(g)
		}
	}

	start := time.Now()
	out, err := seg.Segment(pipeline.FromImage(img))
	if err != nil {
		return err
	}
	for _, w := range out.Warnings {
		log.Warn("segmentation warning", "warning", w)
	}
	log.Info("segmentation done",
		"seeds", out.Seeds, "basins", out.Basins, "passes", out.Engine.Passes,
		"converged", out.Engine.Converged, "elapsed", time.Since(start))
	if p := out.Engine.Profile; p != nil {
		log.Info("automaton profile", "passes", len(p.Passes), "total", p.Total(), "mean", p.Mean())
	}

	rgba, err := out.Image.RGBA()
	if err != nil {
		return err
	}
	if err := save(rgba, f.output); err != nil {
		return fmt.Errorf("save output: %w", err)
	}
	log.Info("wrote output", "path", f.output)

	if f.gradientOut != "" {
		if err := save(grayImage(out.Gradient), f.gradientOut); err != nil {
			return fmt.Errorf("save gradient: %w", err)
		}
	}
	if f.upload {
		return upload(f.output)
	}
	return nil
}

func configFromFlags(f flags) (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	var err error
	if cfg.Strategy, err = automaton.ParseStrategy(f.strategy); err != nil {
		return cfg, err
	}
	if cfg.Rule, err = automaton.ParseRule(f.rule); err != nil {
		return cfg, err
	}
	if cfg.Gradient, err = filters.ParseGradientOperator(f.gradient); err != nil {
		return cfg, err
	}
	if cfg.Luma, err = filters.ParseLumaMode(f.luma); err != nil {
		return cfg, err
	}
	if cfg.ColorMode, err = colorize.ParseMode(f.color); err != nil {
		return cfg, err
	}
	if f.tileSize != 0 {
		cfg.TileSize = f.tileSize
	}
	cfg.MaxIterations = f.maxIterations
	cfg.Profiling = f.profiling
	cfg.Workers = f.workers
	cfg.SeedThreshold = f.seedThreshold
	return cfg, cfg.Validate()
}

func newGradientGPU(cfg pipeline.Config) (*filters.GradientGPU, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, errors.New("webgpu not available")
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceLowPower,
	})
	if err != nil {
		return nil, fmt.Errorf("adapter: %w", err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	return filters.NewGradientGPU(device, device.GetQueue(), cfg.Luma, cfg.Gradient)
}

func upload(filename string) error {
	s3cfg, ok := storage.ConfigFromEnv()
	if !ok {
		return fmt.Errorf("--upload needs WATERSHED_S3_BUCKET: %w", watershed.ErrInvalidConfig)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	up, err := storage.NewUploader(ctx, s3cfg)
	if err != nil {
		return err
	}
	if err := up.EnsureBucket(ctx); err != nil {
		return err
	}
	_, err = up.UploadFile(ctx, filename, contentType(filename))
	return err
}

// save writes img in the format named by the file extension.
func save(img image.Image, filename string) error {
	if strings.ToLower(filepath.Ext(filename)) != ".ppm" {
		return imaging.Save(img, filename)
	}
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := ppm.Encode(fp, img); err != nil {
		fp.Close()
		return err
	}
	return fp.Close()
}

func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".ppm":
		return "image/x-portable-pixmap"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	}
	return "application/octet-stream"
}

func grayImage(b *watershed.Buffer) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, b.D.Width, b.D.Height))
	for y := 0; y < b.D.Height; y++ {
		copy(img.Pix[y*img.Stride:(y+1)*img.Stride], b.Pix[y*b.D.Stride:])
	}
	return img
}
