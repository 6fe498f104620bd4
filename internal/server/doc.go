// Package server implements the MCP (Model Context Protocol) server for the
// dataset synthesis tools.
//
// This package provides a JSON-RPC 2.0 server that exposes the batch
// operations of this module as MCP tools, so an MCP client can build,
// preview and reorganize detection datasets.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// Compositing:
//   - synth_composite: Composite every foreground onto every background
//   - synth_composite_preview: Composite one pair and return an annotated preview
//   - synth_visible_fraction: Visible share of a sprite placed over a target
//
// Generators:
//   - synth_generate_backgrounds: Noise, Gaussian and speckled white backgrounds
//   - synth_generate_digits: Render digit glyphs from fonts
//   - synth_generate_pairs: Build two-digit images from digit folders
//
// Dataset Operations:
//   - synth_split_dataset: Train/validation split with index files
//   - synth_augment_dataset: Augmented copies of a split with boxes, using
//     the detection, composite or image pipeline
//   - synth_resize: Resize an image tree
//
// Every tool that draws random numbers takes a seed; zero picks one, which is
// reported in the result so the run can be repeated.
//
// # Output
//
// Generated files go to the output directory given in the arguments, or
// below DATASET_SYNTH_S3_PREFIX in DATASET_SYNTH_S3_BUCKET when a bucket is
// configured. Pairs and splits always write locally.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A pair that cannot be placed is not an error: synth_composite counts it as
// skipped and synth_composite_preview reports placed=false with the reason.
//
// # Usage
//
//	srv := server.New(cfg)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
