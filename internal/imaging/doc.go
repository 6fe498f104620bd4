// Package imaging provides the pixel-level operations used to build synthetic
// datasets: decoding and caching images, walking image trees, scaling and
// rotating sprites, alpha compositing, encoding output, and drawing preview
// annotations.
//
// All operations work with standard Go image.Image types and use a coordinate
// system where (0,0) is at the top-left corner, X increases rightward, and Y
// increases downward. Pixel work is delegated to github.com/disintegration/imaging.
//
// # Transform and Composite
//
// Transform scales a sprite and rotates it with an expanding canvas. The
// returned image's bounds are the transformed size, which is what placement
// and visibility must be computed with. Composite blends a sprite onto a copy
// of a background; the result always has the background's size.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Every other function is
// stateless, never mutates its inputs, and can be called concurrently.
//
// # Performance Considerations
//
// For batch runs, use ImageCache so each background is decoded once rather
// than once per foreground. Use Evict() or Clear() to release memory in
// long-running processes.
package imaging
