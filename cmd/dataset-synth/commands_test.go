package main

import (
	"context"
	"flag"
	"testing"
	"time"

	"github.com/ironsheep/dataset-synth/internal/config"
	"github.com/ironsheep/dataset-synth/internal/geometry"
	"github.com/ironsheep/dataset-synth/internal/imaging"
	"github.com/ironsheep/dataset-synth/internal/placement"
)

func testEnv() *config.Config {
	return &config.Config{
		LogLevel:    "info",
		Workers:     2,
		Format:      "png",
		JPEGQuality: 80,
		TimeBudget:  3 * time.Second,
	}
}

func TestParseROI(t *testing.T) {
	tests := []struct {
		in      string
		want    geometry.Rect
		wantErr bool
	}{
		{"10,20,30,40", geometry.Rect{X: 10, Y: 20, W: 30, H: 40}, false},
		{" 0, 0, 5, 5 ", geometry.Rect{W: 5, H: 5}, false},
		{"1,2,3", geometry.Rect{}, true},
		{"a,b,c,d", geometry.Rect{}, true},
		{"0,0,0,10", geometry.Rect{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseROI(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error: got %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompositeFlags(t *testing.T) {
	fs := flag.NewFlagSet("composite", flag.ContinueOnError)
	flags := newCompositeFlags(fs, testEnv())

	err := fs.Parse([]string{
		"-backgrounds", "bg", "-foregrounds", "fg", "-output", "out",
		"-roi", "0,0,100,100", "-roi", "50,50,20,20",
		"-mode", "inside", "-no-rotation", "-no-augment", "-labels",
	})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cfg, err := flags.config()
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}

	if len(cfg.ROIs) != 2 || cfg.ROIFor(1) != (geometry.Rect{X: 50, Y: 50, W: 20, H: 20}) {
		t.Errorf("rois: got %v", cfg.ROIs)
	}
	if cfg.Mode != placement.ModeInside {
		t.Errorf("mode: got %v, want inside", cfg.Mode)
	}
	if cfg.RotationEnabled || cfg.Augment {
		t.Error("-no-rotation and -no-augment were ignored")
	}
	if !cfg.EmitLabels {
		t.Error("-labels was ignored")
	}
	if cfg.Format != imaging.FormatPNG || cfg.Quality != 80 || cfg.Workers != 2 || cfg.TimeBudget != 3*time.Second {
		t.Errorf("environment defaults not applied: %+v", cfg)
	}
	if cfg.MinScale != 0.3 || cfg.MaxScale != 1.7 || cfg.MinVisible != 0.6 || cfg.NumAugments != 3 {
		t.Errorf("batch defaults not applied: %+v", cfg)
	}
}

func TestCompositeFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing dirs", nil},
		{"bad mode", []string{"-backgrounds", "a", "-foregrounds", "b", "-output", "c", "-mode", "sideways"}},
		{"bad format", []string{"-backgrounds", "a", "-foregrounds", "b", "-output", "c", "-format", "gif"}},
		{"bad scale", []string{"-backgrounds", "a", "-foregrounds", "b", "-output", "c", "-min-scale", "2", "-max-scale", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("composite", flag.ContinueOnError)
			flags := newCompositeFlags(fs, testEnv())
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if _, err := flags.config(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	if err := run(context.Background(), testEnv(), "frobnicate", nil); err == nil {
		t.Error("unknown command should fail")
	}
}
