// Package ocr verifies rendered digit glyphs with the Tesseract OCR engine.
//
// Glyph generation can produce unreadable samples: decorative fonts, missing
// digit glyphs rendered as boxes, or strokes thinned away by erosion. A
// DigitVerifier recognizes a single character per image with a digits-only
// whitelist and reports whether the result matches the digit that was drawn.
//
// # Prerequisites
//
// Tesseract and its English language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Set TESSDATA_PREFIX when the language data lives outside the default path.
//
// # Thread Safety
//
// A gosseract client is not safe for concurrent use. DigitVerifier serializes
// calls with a mutex, so one verifier may be shared between goroutines.
package ocr
