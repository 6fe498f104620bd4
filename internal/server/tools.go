package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// rectSchema describes a {x, y, w, h} rectangle argument.
func rectSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"x": map[string]interface{}{"type": "integer", "description": "Left edge (0-based)"},
			"y": map[string]interface{}{"type": "integer", "description": "Top edge (0-based)"},
			"w": map[string]interface{}{"type": "integer", "description": "Width in pixels"},
			"h": map[string]interface{}{"type": "integer", "description": "Height in pixels"},
		},
		"required": []string{"x", "y", "w", "h"},
	}
}

// placementProperties are the composer parameters shared by synth_composite
// and synth_composite_preview.
func placementProperties() map[string]interface{} {
	return map[string]interface{}{
		"min_scale": map[string]interface{}{
			"type":        "number",
			"description": "Smallest scale factor applied to the foreground. Default 0.3",
			"default":     0.3,
		},
		"max_scale": map[string]interface{}{
			"type":        "number",
			"description": "Largest scale factor applied to the foreground. Default 1.7",
			"default":     1.7,
		},
		"min_visible": map[string]interface{}{
			"type":        "number",
			"description": "Minimum fraction of the transformed foreground that must lie inside the target area (0-1]. Default 0.6",
			"default":     0.6,
		},
		"clamp_to_background": map[string]interface{}{
			"type":        "boolean",
			"description": "Cap the scale so the foreground fits the background",
			"default":     false,
		},
		"clamp_to_area": map[string]interface{}{
			"type":        "boolean",
			"description": "Cap the scale so min_visible of the foreground can fit at all",
			"default":     false,
		},
		"rotation": map[string]interface{}{
			"type":        "boolean",
			"description": "Rotate the foreground by a random angle in [0, 360). Default true",
			"default":     true,
		},
		"center": map[string]interface{}{
			"type":        "boolean",
			"description": "Paste the scaled foreground unrotated at the center of the target instead of searching",
			"default":     false,
		},
		"mode": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"envelope", "center", "inside"},
			"description": "Position sampling mode. Default envelope",
			"default":     "envelope",
		},
		"margin": map[string]interface{}{
			"type":        "number",
			"description": "Envelope margin as a fraction of the foreground size. Default 0.3",
			"default":     0.3,
		},
		"attempts": map[string]interface{}{
			"type":        "integer",
			"description": "Position attempts in the first round. Default 100",
			"default":     100,
		},
		"shrink_factor": map[string]interface{}{
			"type":        "number",
			"description": "Scale multiplier applied between rounds (0-1). Default 0.9",
			"default":     0.9,
		},
		"max_shrink_rounds": map[string]interface{}{
			"type":        "integer",
			"description": "Shrink rounds after the first. Default 5",
			"default":     5,
		},
		"time_budget_ms": map[string]interface{}{
			"type":        "integer",
			"description": "Time budget for one pair in milliseconds. Default from DATASET_SYNTH_TIME_BUDGET",
		},
		"seed": map[string]interface{}{
			"type":        "integer",
			"description": "Random seed. 0 picks one and reports it",
			"default":     0,
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	compositeProps := placementProperties()
	compositeProps["backgrounds_dir"] = map[string]interface{}{
		"type":        "string",
		"description": "Directory tree of background images",
	}
	compositeProps["foregrounds_dir"] = map[string]interface{}{
		"type":        "string",
		"description": "Directory tree of foreground sprites; subfolder names are kept in the output",
	}
	compositeProps["output_dir"] = map[string]interface{}{
		"type":        "string",
		"description": "Output directory (or key prefix when S3 output is configured)",
	}
	compositeProps["num_augments"] = map[string]interface{}{
		"type":        "integer",
		"description": "Outputs per background/foreground pair. Default 3",
		"default":     3,
	}
	compositeProps["rois"] = map[string]interface{}{
		"type":        "array",
		"description": "Regions of interest; task i uses rois[i % len]. Empty means the full background",
		"items":       rectSchema("Region of interest"),
	}
	compositeProps["augment"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Run the composite augmentation pipeline on every output. Default true",
		"default":     true,
	}
	compositeProps["labels"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Write a YOLO label file next to every output",
		"default":     false,
	}
	compositeProps["class_from_dir"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Use the numeric name of the foreground's folder as the label class",
		"default":     false,
	}
	compositeProps["class"] = map[string]interface{}{
		"type":        "integer",
		"description": "Label class when class_from_dir does not apply. Default 0",
		"default":     0,
	}
	compositeProps["workers"] = map[string]interface{}{
		"type":        "integer",
		"description": "Worker goroutines. Default from DATASET_SYNTH_WORKERS",
	}
	compositeProps["format"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"jpg", "png"},
		"description": "Output format. Default from DATASET_SYNTH_FORMAT",
	}
	compositeProps["quality"] = map[string]interface{}{
		"type":        "integer",
		"description": "JPEG quality 1-100. Default from DATASET_SYNTH_JPEG_QUALITY",
	}

	previewProps := placementProperties()
	previewProps["background"] = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the background image",
	}
	previewProps["foreground"] = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the foreground sprite",
	}
	previewProps["roi"] = rectSchema("Optional region of interest; omitted means the full background")
	previewProps["max_side"] = map[string]interface{}{
		"type":        "integer",
		"description": "Downscale the preview to fit this size. Default 1024",
		"default":     1024,
	}
	previewProps["box_color"] = map[string]interface{}{
		"type":        "string",
		"description": "Hex color of the object box. Default #FF0000",
		"default":     "#FF0000",
	}

	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format, alpha and file size.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},

		// Compositing
		{
			Name:        "synth_composite",
			Description: "Composite every foreground onto every background num_augments times, keeping at least min_visible of each foreground inside the target area. Pairs with no acceptable placement are skipped.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": compositeProps,
				"required":   []string{"backgrounds_dir", "foregrounds_dir", "output_dir"},
			},
		},
		{
			Name:        "synth_composite_preview",
			Description: "Composite one foreground onto one background and return the result as base64 PNG with the target area and object box outlined and the visible fraction labeled.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": previewProps,
				"required":   []string{"background", "foreground"},
			},
		},
		{
			Name:        "synth_visible_fraction",
			Description: "Compute the fraction of a sprite placed at (x, y) that lies inside a target rectangle, and the visible rectangle itself.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"sprite_width": map[string]interface{}{
						"type":        "integer",
						"description": "Sprite width in pixels",
					},
					"sprite_height": map[string]interface{}{
						"type":        "integer",
						"description": "Sprite height in pixels",
					},
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "Sprite top-left X, may be negative",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Sprite top-left Y, may be negative",
					},
					"target": rectSchema("Target area"),
				},
				"required": []string{"sprite_width", "sprite_height", "x", "y", "target"},
			},
		},

		// Generators
		{
			Name:        "synth_generate_backgrounds",
			Description: "Generate synthetic background PNGs: uniform RGB noise, smoothed Gaussian noise, or white with speckles.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Output directory",
					},
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of backgrounds. Default 10",
						"default":     10,
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Width in pixels. Default 224",
						"default":     224,
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Height in pixels. Default 224",
						"default":     224,
					},
					"kind": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"noise", "gaussian", "white"},
						"description": "Generator. Default noise",
						"default":     "noise",
					},
					"density": map[string]interface{}{
						"type":        "number",
						"description": "Speckle density for white backgrounds (0-1). Default 0.05",
						"default":     0.05,
					},
					"speckle_color": map[string]interface{}{
						"type":        "string",
						"description": "Hex speckle color. Default #000000",
						"default":     "#000000",
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Random seed. 0 picks one and reports it",
						"default":     0,
					},
				},
				"required": []string{"output_dir"},
			},
		},
		{
			Name:        "synth_generate_digits",
			Description: "Render digit glyphs from a font folder into normal/{d}/ and underlined/{d}/ trees, optionally rejecting renders that OCR does not read back as the digit.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"fonts_dir": map[string]interface{}{
						"type":        "string",
						"description": "Folder of .ttf/.otf fonts",
					},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Output directory",
					},
					"first_digit": map[string]interface{}{
						"type":        "integer",
						"description": "First digit, inclusive. Default 0",
						"default":     0,
					},
					"last_digit": map[string]interface{}{
						"type":        "integer",
						"description": "Last digit, inclusive. Default 9",
						"default":     9,
					},
					"total": map[string]interface{}{
						"type":        "integer",
						"description": "Samples per tree, split evenly across digits. Default 100",
						"default":     100,
					},
					"padding": map[string]interface{}{
						"type":        "integer",
						"description": "Padding around the glyph in pixels. Default 2",
						"default":     2,
					},
					"underlined": map[string]interface{}{
						"type":        "boolean",
						"description": "Also write the underlined tree. Default true",
						"default":     true,
					},
					"erode": map[string]interface{}{
						"type":        "number",
						"description": "Erode radius applied before dilate. Default 0",
						"default":     0,
					},
					"dilate": map[string]interface{}{
						"type":        "number",
						"description": "Dilate radius applied after erode. Default 0",
						"default":     0,
					},
					"verify": map[string]interface{}{
						"type":        "boolean",
						"description": "Reject renders that Tesseract does not read as the digit",
						"default":     false,
					},
					"language": map[string]interface{}{
						"type":        "string",
						"description": "Tesseract language for verification. Default eng",
						"default":     "eng",
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Random seed. 0 picks one and reports it",
						"default":     0,
					},
				},
				"required": []string{"fonts_dir", "output_dir"},
			},
		},
		{
			Name:        "synth_generate_pairs",
			Description: "Build random two-digit images from digit folders 0..9 and write them to {NN}/{NN}_{k}.jpg, continuing existing numbering.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"digits_dir": map[string]interface{}{
						"type":        "string",
						"description": "Folder containing digit folders 0 through 9",
					},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Output directory",
					},
					"count": map[string]interface{}{
						"type":        "integer",
						"description": "Number of pairs. Default 100",
						"default":     100,
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Random seed. 0 picks one and reports it",
						"default":     0,
					},
				},
				"required": []string{"digits_dir", "output_dir"},
			},
		},

		// Dataset Operations
		{
			Name:        "synth_split_dataset",
			Description: "Shuffle the labeled samples under root/images and root/labels into train and validation subsets and write train.txt and val.txt.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"root": map[string]interface{}{
						"type":        "string",
						"description": "Dataset root holding images/ and labels/",
					},
					"train_ratio": map[string]interface{}{
						"type":        "number",
						"description": "Share of samples assigned to train (0-1). Default 0.8",
						"default":     0.8,
					},
					"copy_files": map[string]interface{}{
						"type":        "boolean",
						"description": "Copy samples into train/ and val/ folders",
						"default":     false,
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Shuffle seed. 0 picks one and reports it",
						"default":     0,
					},
				},
				"required": []string{"root"},
			},
		},
		{
			Name:        "synth_augment_dataset",
			Description: "Write augmented copies of every image in root/images/{split} with boxes transformed alongside, dropping boxes that leave the frame.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"root": map[string]interface{}{
						"type":        "string",
						"description": "Dataset root holding images/{split} and labels/{split}",
					},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Output root. Default root",
					},
					"split": map[string]interface{}{
						"type":        "string",
						"description": "Split folder name. Default train",
						"default":     "train",
					},
					"copies": map[string]interface{}{
						"type":        "integer",
						"description": "Augmented copies per image in addition to copy 0. Default 3",
						"default":     3,
					},
					"pipeline": map[string]interface{}{
						"type":        "string",
						"description": "Augmentation pipeline: detection (geometry and color), composite (color only) or image (flips, rotation, noise). Default detection",
						"enum":        []string{"detection", "composite", "image"},
						"default":     "detection",
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Worker goroutines. Default from DATASET_SYNTH_WORKERS",
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Random seed. 0 picks one and reports it",
						"default":     0,
					},
				},
				"required": []string{"root"},
			},
		},
		{
			Name:        "synth_resize",
			Description: "Resize every image under input_dir to width x height and write {name}_resized{ext} to the mirrored location under output_dir.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"input_dir": map[string]interface{}{
						"type":        "string",
						"description": "Input directory tree",
					},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Output directory. Default input_dir",
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Target width. Default 96",
						"default":     96,
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Target height. Default 96",
						"default":     96,
					},
				},
				"required": []string{"input_dir"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
