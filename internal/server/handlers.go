package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ironsheep/dataset-synth/internal/augment"
	"github.com/ironsheep/dataset-synth/internal/background"
	"github.com/ironsheep/dataset-synth/internal/dataset"
	"github.com/ironsheep/dataset-synth/internal/geometry"
	"github.com/ironsheep/dataset-synth/internal/glyph"
	"github.com/ironsheep/dataset-synth/internal/imaging"
	"github.com/ironsheep/dataset-synth/internal/ocr"
	"github.com/ironsheep/dataset-synth/internal/placement"
	"github.com/ironsheep/dataset-synth/internal/storage"
	"github.com/ironsheep/dataset-synth/internal/synth"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "synth_composite").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Opens the output sink or loads images from cache as needed
//  4. Calls the appropriate synth/glyph/dataset/imaging function
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Compositing
	case "synth_composite":
		return s.handleComposite(ctx, args)
	case "synth_composite_preview":
		return s.handleCompositePreview(ctx, args)
	case "synth_visible_fraction":
		return s.handleVisibleFraction(args)

	// Generators
	case "synth_generate_backgrounds":
		return s.handleGenerateBackgrounds(ctx, args)
	case "synth_generate_digits":
		return s.handleGenerateDigits(ctx, args)
	case "synth_generate_pairs":
		return s.handleGeneratePairs(ctx, args)

	// Dataset Operations
	case "synth_split_dataset":
		return s.handleSplitDataset(args)
	case "synth_augment_dataset":
		return s.handleAugmentDataset(ctx, args)
	case "synth_resize":
		return s.handleResize(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// seedOrRandom returns seed, or a random seed when it is zero.
func seedOrRandom(seed uint64) uint64 {
	if seed == 0 {
		return rand.Uint64()
	}
	return seed
}

// rectArg is the JSON form of a geometry.Rect.
type rectArg struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (r rectArg) rect() geometry.Rect {
	return geometry.Rect{X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// synthDefaults returns the composer defaults with the environment
// configuration applied.
func (s *Server) synthDefaults() synth.Config {
	cfg := synth.DefaultConfig()
	if s.cfg == nil {
		return cfg
	}
	cfg.Workers = s.cfg.Workers
	cfg.Quality = s.cfg.JPEGQuality
	cfg.TimeBudget = s.cfg.TimeBudget
	if f, err := imaging.ParseFormat(s.cfg.Format); err == nil {
		cfg.Format = f
	}
	return cfg
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Compositing Handlers ===

// placementArgs are the composer parameters shared by the composite tools.
// Zero values select the defaults.
type placementArgs struct {
	MinScale          float64 `json:"min_scale"`
	MaxScale          float64 `json:"max_scale"`
	MinVisible        float64 `json:"min_visible"`
	ClampToBackground bool    `json:"clamp_to_background"`
	ClampToArea       bool    `json:"clamp_to_area"`
	Rotation          *bool   `json:"rotation"`
	Center            bool    `json:"center"`
	Mode              string  `json:"mode"`
	Margin            float64 `json:"margin"`
	Attempts          int     `json:"attempts"`
	ShrinkFactor      float64 `json:"shrink_factor"`
	MaxShrinkRounds   int     `json:"max_shrink_rounds"`
	TimeBudgetMS      int     `json:"time_budget_ms"`
	Seed              uint64  `json:"seed"`
}

func (p *placementArgs) apply(cfg *synth.Config) error {
	if p.MinScale != 0 {
		cfg.MinScale = p.MinScale
	}
	if p.MaxScale != 0 {
		cfg.MaxScale = p.MaxScale
	}
	if p.MinVisible != 0 {
		cfg.MinVisible = p.MinVisible
	}
	cfg.ClampToBackground = p.ClampToBackground
	cfg.ClampToArea = p.ClampToArea
	if p.Rotation != nil {
		cfg.RotationEnabled = *p.Rotation
	}
	cfg.CenterMode = p.Center

	mode, err := placement.ParseMode(p.Mode)
	if err != nil {
		return err
	}
	cfg.Mode = mode

	if p.Margin != 0 {
		cfg.Margin = p.Margin
	}
	if p.Attempts != 0 {
		cfg.AttemptBudget = p.Attempts
	}
	if p.ShrinkFactor != 0 {
		cfg.ShrinkFactor = p.ShrinkFactor
	}
	if p.MaxShrinkRounds != 0 {
		cfg.MaxShrinkRounds = p.MaxShrinkRounds
	}
	if p.TimeBudgetMS > 0 {
		cfg.TimeBudget = time.Duration(p.TimeBudgetMS) * time.Millisecond
	}
	cfg.Seed = p.Seed
	return nil
}

type compositeArgs struct {
	placementArgs
	BackgroundsDir string    `json:"backgrounds_dir"`
	ForegroundsDir string    `json:"foregrounds_dir"`
	OutputDir      string    `json:"output_dir"`
	NumAugments    int       `json:"num_augments"`
	ROIs           []rectArg `json:"rois"`
	Augment        *bool     `json:"augment"`
	Labels         bool      `json:"labels"`
	ClassFromDir   bool      `json:"class_from_dir"`
	Class          int       `json:"class"`
	Workers        int       `json:"workers"`
	Format         string    `json:"format"`
	Quality        int       `json:"quality"`
}

// CompositeResult reports a finished synth_composite run.
type CompositeResult struct {
	Generated int     `json:"generated"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	ElapsedMS int64   `json:"elapsed_ms"`
	Seed      uint64  `json:"seed"`
	Output    string  `json:"output"`
	Summary   string  `json:"summary"`
	Rate      float64 `json:"images_per_second"`
}

func (s *Server) handleComposite(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a compositeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	cfg := s.synthDefaults()
	if err := a.placementArgs.apply(&cfg); err != nil {
		return nil, err
	}
	cfg.BackgroundsDir = a.BackgroundsDir
	cfg.ForegroundsDir = a.ForegroundsDir
	cfg.OutputDir = a.OutputDir
	if a.NumAugments != 0 {
		cfg.NumAugments = a.NumAugments
	}
	for _, r := range a.ROIs {
		cfg.ROIs = append(cfg.ROIs, r.rect())
	}
	if a.Augment != nil {
		cfg.Augment = *a.Augment
	}
	cfg.EmitLabels = a.Labels
	cfg.ClassFromDir = a.ClassFromDir
	cfg.Class = a.Class
	if a.Workers != 0 {
		cfg.Workers = a.Workers
	}
	if a.Format != "" {
		format, err := imaging.ParseFormat(a.Format)
		if err != nil {
			return nil, err
		}
		cfg.Format = format
	}
	if a.Quality != 0 {
		cfg.Quality = a.Quality
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sink, err := storage.Open(ctx, s.cfg, cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	batch, err := synth.NewBatch(cfg, sink)
	if err != nil {
		return nil, err
	}

	summary, err := batch.Run(ctx)
	if err != nil {
		return nil, err
	}

	result := &CompositeResult{
		Generated: summary.Generated,
		Skipped:   summary.Skipped,
		Failed:    summary.Failed,
		ElapsedMS: summary.Elapsed.Milliseconds(),
		Seed:      batch.Seed(),
		Output:    sink.Location(""),
		Summary:   summary.String(),
	}
	if secs := summary.Elapsed.Seconds(); secs > 0 {
		result.Rate = float64(summary.Generated) / secs
	}
	return result, nil
}

type compositePreviewArgs struct {
	placementArgs
	Background string   `json:"background"`
	Foreground string   `json:"foreground"`
	ROI        *rectArg `json:"roi"`
	MaxSide    int      `json:"max_side"`
	BoxColor   string   `json:"box_color"`
}

// CompositePreviewResult is one annotated composite. When Placed is false
// Reason explains why and no image is returned.
type CompositePreviewResult struct {
	*imaging.PreviewResult
	Placed   bool          `json:"placed"`
	Reason   string        `json:"reason,omitempty"`
	Seed     uint64        `json:"seed"`
	Target   geometry.Rect `json:"target"`
	Rect     geometry.Rect `json:"rect"`
	Object   geometry.Rect `json:"object"`
	Visible  float64       `json:"visible_fraction"`
	Scale    float64       `json:"scale"`
	Angle    float64       `json:"angle"`
	Rounds   int           `json:"rounds"`
	Attempts int           `json:"attempts"`
}

func (s *Server) handleCompositePreview(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a compositePreviewArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.MaxSide == 0 {
		a.MaxSide = 1024
	}
	if a.BoxColor == "" {
		a.BoxColor = "#FF0000"
	}

	cfg := s.synthDefaults()
	if err := a.placementArgs.apply(&cfg); err != nil {
		return nil, err
	}
	seed := seedOrRandom(cfg.Seed)

	bg, err := s.cache.Load(a.Background)
	if err != nil {
		return nil, err
	}
	fg, err := s.cache.Load(a.Foreground)
	if err != nil {
		return nil, err
	}

	var roi geometry.Rect
	if a.ROI != nil {
		roi = a.ROI.rect()
	}
	b := bg.Bounds()
	target := geometry.ClampROI(roi, b.Dx(), b.Dy())

	rng := rand.New(rand.NewPCG(seed, 0))
	res, err := cfg.Composer().Place(ctx, rng, bg, fg, roi)
	if errors.Is(err, synth.ErrNoPlacement) || errors.Is(err, synth.ErrInfeasibleScale) {
		return &CompositePreviewResult{Reason: err.Error(), Seed: seed, Target: target}, nil
	}
	if err != nil {
		return nil, err
	}

	annotated := imaging.DrawBoxes(res.Image, []imaging.Annotation{{Rect: target}}, "#00FF00", 1)
	annotated = imaging.DrawBoxes(annotated, []imaging.Annotation{
		{Rect: res.Object, Label: imaging.FormatVisible(res.Visible)},
	}, a.BoxColor, 2)

	preview, err := imaging.Preview(annotated, a.MaxSide)
	if err != nil {
		return nil, err
	}

	return &CompositePreviewResult{
		PreviewResult: preview,
		Placed:        true,
		Seed:          seed,
		Target:        target,
		Rect:          res.Rect,
		Object:        res.Object,
		Visible:       res.Visible,
		Scale:         res.Scale,
		Angle:         res.Angle,
		Rounds:        res.Rounds,
		Attempts:      res.Attempts,
	}, nil
}

type visibleFractionArgs struct {
	SpriteWidth  int     `json:"sprite_width"`
	SpriteHeight int     `json:"sprite_height"`
	X            int     `json:"x"`
	Y            int     `json:"y"`
	Target       rectArg `json:"target"`
}

// VisibleFractionResult reports how much of a placed sprite is inside a target.
type VisibleFractionResult struct {
	VisibleFraction float64       `json:"visible_fraction"`
	VisibleRect     geometry.Rect `json:"visible_rect"`
}

func (s *Server) handleVisibleFraction(args json.RawMessage) (interface{}, error) {
	var a visibleFractionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.SpriteWidth <= 0 || a.SpriteHeight <= 0 {
		return nil, fmt.Errorf("invalid sprite size %dx%d", a.SpriteWidth, a.SpriteHeight)
	}

	target := a.Target.rect()
	return &VisibleFractionResult{
		VisibleFraction: geometry.VisibleFraction(a.SpriteWidth, a.SpriteHeight, a.X, a.Y, target),
		VisibleRect:     geometry.VisibleRect(a.SpriteWidth, a.SpriteHeight, a.X, a.Y, target),
	}, nil
}

// === Generator Handlers ===

type generateBackgroundsArgs struct {
	OutputDir    string  `json:"output_dir"`
	Count        int     `json:"count"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Kind         string  `json:"kind"`
	Density      float64 `json:"density"`
	SpeckleColor string  `json:"speckle_color"`
	Seed         uint64  `json:"seed"`
}

// GenerateBackgroundsResult lists the written backgrounds.
type GenerateBackgroundsResult struct {
	Count     int      `json:"count"`
	Seed      uint64   `json:"seed"`
	Locations []string `json:"locations"`
}

func (s *Server) handleGenerateBackgrounds(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a generateBackgroundsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.OutputDir == "" {
		return nil, errors.New("output_dir is required")
	}
	if a.Count == 0 {
		a.Count = 10
	}
	if a.Width == 0 {
		a.Width = background.DefaultSize
	}
	if a.Height == 0 {
		a.Height = background.DefaultSize
	}
	if a.Density == 0 {
		a.Density = background.DefaultDensity
	}

	kind, err := background.ParseKind(a.Kind)
	if err != nil {
		return nil, err
	}
	opts := background.Options{Kind: kind, Density: a.Density}
	if a.SpeckleColor != "" {
		if opts.Speckle, err = background.ParseSpeckle(a.SpeckleColor); err != nil {
			return nil, err
		}
	}

	sink, err := storage.Open(ctx, s.cfg, a.OutputDir)
	if err != nil {
		return nil, err
	}

	seed := seedOrRandom(a.Seed)
	locations, err := background.GenerateSet(ctx, sink, a.Count, a.Width, a.Height, opts, seed)
	if err != nil {
		return nil, err
	}
	return &GenerateBackgroundsResult{Count: len(locations), Seed: seed, Locations: locations}, nil
}

type generateDigitsArgs struct {
	FontsDir   string  `json:"fonts_dir"`
	OutputDir  string  `json:"output_dir"`
	FirstDigit *int    `json:"first_digit"`
	LastDigit  *int    `json:"last_digit"`
	Total      int     `json:"total"`
	Padding    *int    `json:"padding"`
	Underlined *bool   `json:"underlined"`
	Erode      float64 `json:"erode"`
	Dilate     float64 `json:"dilate"`
	Verify     bool    `json:"verify"`
	Language   string  `json:"language"`
	Seed       uint64  `json:"seed"`
}

// GenerateDigitsResult reports a synth_generate_digits run.
type GenerateDigitsResult struct {
	*glyph.GenerateSummary
	Seed   uint64 `json:"seed"`
	Output string `json:"output"`
}

func (s *Server) handleGenerateDigits(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a generateDigitsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.OutputDir == "" {
		return nil, errors.New("output_dir is required")
	}

	cfg := glyph.DefaultConfig()
	if a.FirstDigit != nil {
		cfg.FirstDigit = *a.FirstDigit
	}
	if a.LastDigit != nil {
		cfg.LastDigit = *a.LastDigit
	}
	if a.Total != 0 {
		cfg.Total = a.Total
	}
	if a.Padding != nil {
		cfg.Padding = *a.Padding
	}
	if a.Underlined != nil {
		cfg.Underlined = *a.Underlined
	}
	cfg.Erode = a.Erode
	cfg.Dilate = a.Dilate
	cfg.Seed = seedOrRandom(a.Seed)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fonts, err := glyph.LoadFonts(a.FontsDir)
	if err != nil {
		return nil, err
	}

	if a.Verify {
		tessdata := ""
		if s.cfg != nil {
			tessdata = s.cfg.TessdataPrefix
		}
		verifier, err := ocr.NewDigitVerifier(a.Language, tessdata)
		if err != nil {
			return nil, err
		}
		defer verifier.Close()
		cfg.Verifier = verifier
	}

	sink, err := storage.Open(ctx, s.cfg, a.OutputDir)
	if err != nil {
		return nil, err
	}

	summary, err := glyph.Generate(ctx, cfg, fonts, sink)
	if err != nil {
		return nil, err
	}
	return &GenerateDigitsResult{GenerateSummary: summary, Seed: cfg.Seed, Output: sink.Location("")}, nil
}

type generatePairsArgs struct {
	DigitsDir string `json:"digits_dir"`
	OutputDir string `json:"output_dir"`
	Count     int    `json:"count"`
	Seed      uint64 `json:"seed"`
}

// GeneratePairsResult reports a synth_generate_pairs run.
type GeneratePairsResult struct {
	*glyph.PairsSummary
	Seed uint64 `json:"seed"`
}

func (s *Server) handleGeneratePairs(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a generatePairsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.DigitsDir == "" || a.OutputDir == "" {
		return nil, errors.New("digits_dir and output_dir are required")
	}
	if a.Count == 0 {
		a.Count = 100
	}

	seed := seedOrRandom(a.Seed)
	summary, err := glyph.GeneratePairs(ctx, a.DigitsDir, a.OutputDir, a.Count, seed)
	if err != nil {
		return nil, err
	}
	return &GeneratePairsResult{PairsSummary: summary, Seed: seed}, nil
}

// === Dataset Handlers ===

type splitDatasetArgs struct {
	Root       string  `json:"root"`
	TrainRatio float64 `json:"train_ratio"`
	CopyFiles  bool    `json:"copy_files"`
	Seed       uint64  `json:"seed"`
}

// SplitDatasetResult reports a synth_split_dataset run.
type SplitDatasetResult struct {
	*dataset.SplitResult
	Seed uint64 `json:"seed"`
}

func (s *Server) handleSplitDataset(args json.RawMessage) (interface{}, error) {
	var a splitDatasetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.TrainRatio == 0 {
		a.TrainRatio = 0.8
	}

	seed := seedOrRandom(a.Seed)
	result, err := dataset.Split(a.Root, a.TrainRatio, a.CopyFiles, seed)
	if err != nil {
		return nil, err
	}
	return &SplitDatasetResult{SplitResult: result, Seed: seed}, nil
}

type augmentDatasetArgs struct {
	Root      string `json:"root"`
	OutputDir string `json:"output_dir"`
	Split     string `json:"split"`
	Copies    *int   `json:"copies"`
	Workers   int    `json:"workers"`
	Seed      uint64 `json:"seed"`
	Pipeline  string `json:"pipeline"`
}

// AugmentDatasetResult reports a synth_augment_dataset run.
type AugmentDatasetResult struct {
	*dataset.AugmentSummary
	Seed   uint64 `json:"seed"`
	Output string `json:"output"`
}

func (s *Server) handleAugmentDataset(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a augmentDatasetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Root == "" {
		return nil, errors.New("root is required")
	}
	if a.OutputDir == "" {
		a.OutputDir = a.Root
	}
	if a.Split == "" {
		a.Split = "train"
	}
	copies := 3
	if a.Copies != nil {
		copies = *a.Copies
	}
	workers := a.Workers
	if workers == 0 {
		workers = s.synthDefaults().Workers
	}
	pipeline, err := augment.PipelineByName(a.Pipeline)
	if err != nil {
		return nil, err
	}

	sink, err := storage.Open(ctx, s.cfg, a.OutputDir)
	if err != nil {
		return nil, err
	}

	seed := seedOrRandom(a.Seed)
	summary, err := dataset.AugmentSplit(ctx, dataset.AugmentConfig{
		Root:     a.Root,
		Split:    a.Split,
		Copies:   copies,
		Workers:  workers,
		Seed:     seed,
		Pipeline: pipeline,
	}, sink)
	if err != nil {
		return nil, err
	}
	return &AugmentDatasetResult{AugmentSummary: summary, Seed: seed, Output: sink.Location("")}, nil
}

type resizeArgs struct {
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func (s *Server) handleResize(args json.RawMessage) (interface{}, error) {
	var a resizeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.InputDir == "" {
		return nil, errors.New("input_dir is required")
	}
	if a.OutputDir == "" {
		a.OutputDir = a.InputDir
	}
	if a.Width == 0 {
		a.Width = 96
	}
	if a.Height == 0 {
		a.Height = 96
	}
	return imaging.ResizeTree(a.InputDir, a.OutputDir, a.Width, a.Height)
}
