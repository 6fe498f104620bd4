package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/dataset-synth/internal/config"
	"github.com/ironsheep/dataset-synth/internal/ocr"
	"github.com/ironsheep/dataset-synth/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const usage = `dataset-synth - synthetic detection dataset toolkit

Usage: dataset-synth [command] [flags]

Commands:
  serve         Run the MCP server on stdin/stdout (default)
  composite     Composite foregrounds onto backgrounds
  watch         Composite foregrounds as they appear
  augment       Write augmented copies of a dataset split
  split         Split a labeled dataset into train and val
  digits        Render digit glyphs from fonts
  pairs         Build two-digit images from digit folders
  backgrounds   Generate synthetic backgrounds
  resize        Resize an image tree
  version       Print version information
  help          Print this help message

Run "dataset-synth <command> -h" for the flags of a command.

Environment variables:
  DATASET_SYNTH_LOG_LEVEL=debug     Enable debug logging
  DATASET_SYNTH_WORKERS             Default worker count (CPU count)
  DATASET_SYNTH_FORMAT              Default output format, jpg or png (jpg)
  DATASET_SYNTH_JPEG_QUALITY        JPEG quality (95)
  DATASET_SYNTH_TIME_BUDGET         Placement time budget per pair (10s)
  DATASET_SYNTH_S3_BUCKET           Write generated files to this bucket
  DATASET_SYNTH_S3_PREFIX           Key prefix inside the bucket
  AWS_REGION                        Bucket region (us-east-1)
  TESSDATA_PREFIX                   Tesseract language data directory
`

func main() {
	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "--version", "-v", "version":
		fmt.Printf("dataset-synth %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		if info := ocr.GetOCRInfo(os.Getenv("TESSDATA_PREFIX")); info.Available {
			fmt.Printf("  OCR:        %s %s\n", info.Backend, info.Version)
		} else {
			fmt.Printf("  OCR:        unavailable (%s)\n", info.Error)
		}
		return
	case "--help", "-h", "help":
		fmt.Print(usage)
		return
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Debug() {
		log.Printf("dataset-synth v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, command, args); err != nil {
		stop()
		log.Fatalf("%s: %v", command, err)
	}
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	switch command {
	case "serve":
		return server.New(cfg).Run(ctx)
	case "composite":
		return runComposite(ctx, cfg, args)
	case "watch":
		return runWatch(ctx, cfg, args)
	case "augment":
		return runAugment(ctx, cfg, args)
	case "split":
		return runSplit(args)
	case "digits":
		return runDigits(ctx, cfg, args)
	case "pairs":
		return runPairs(ctx, args)
	case "backgrounds":
		return runBackgrounds(ctx, cfg, args)
	case "resize":
		return runResize(args)
	default:
		return fmt.Errorf("unknown command %q (run \"dataset-synth help\")", command)
	}
}
