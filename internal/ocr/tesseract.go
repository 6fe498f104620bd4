package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// DigitWhitelist restricts recognition to decimal digits.
const DigitWhitelist = "0123456789"

// minSide is the height small glyphs are upscaled to before recognition.
// Tesseract is unreliable on characters only a few pixels tall.
const minSide = 48

// Verification is the outcome of checking one glyph.
type Verification struct {
	// Expected is the digit that was rendered.
	Expected int `json:"expected"`

	// Recognized is the trimmed OCR output, empty when nothing was read.
	Recognized string `json:"recognized"`

	// Match is true when Recognized equals Expected.
	Match bool `json:"match"`
}

// DigitVerifier checks that rendered glyphs are read back as the digit they
// depict.
type DigitVerifier struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewDigitVerifier creates a verifier using the given Tesseract language
// ("eng" when empty). tessdataPrefix overrides the language data directory
// when non-empty. The caller must Close it.
//
// Tesseract initializes lazily, so a missing installation surfaces as an
// error from the first Verify call.
func NewDigitVerifier(language, tessdataPrefix string) (*DigitVerifier, error) {
	if language == "" {
		language = "eng"
	}

	client := gosseract.NewClient()
	if tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(tessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetWhitelist(DigitWhitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_CHAR); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	return &DigitVerifier{client: client}, nil
}

// Close releases the underlying Tesseract client.
func (v *DigitVerifier) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.client.Close()
}

// Verify recognizes img as a single character and compares it with digit.
//
// A recognition that returns nothing is a mismatch, not an error. Errors are
// reserved for encoding or Tesseract failures.
func (v *DigitVerifier) Verify(img image.Image, digit int) (*Verification, error) {
	if digit < 0 || digit > 9 {
		return nil, fmt.Errorf("digit out of range: %d", digit)
	}

	data, err := prepare(img)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	text, err := v.client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	recognized := strings.TrimSpace(text)
	return &Verification{
		Expected:   digit,
		Recognized: recognized,
		Match:      recognized == strconv.Itoa(digit),
	}, nil
}

// prepare upscales small glyphs and encodes the image as PNG.
func prepare(img image.Image) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if b.Dy() < minSide {
		img = imaging.Resize(img, 0, minSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// OCRInfo contains information about the OCR subsystem.
type OCRInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
	Backend   string `json:"backend"`
}

// GetOCRInfo reports whether Tesseract can be initialized for digit
// verification by running it once on a blank image.
func GetOCRInfo(tessdataPrefix string) OCRInfo {
	v, err := NewDigitVerifier("", tessdataPrefix)
	if err != nil {
		return OCRInfo{Available: false, Error: err.Error(), Backend: "gosseract"}
	}
	defer v.Close()

	if _, err := v.Verify(imaging.New(minSide, minSide, image.White), 0); err != nil {
		return OCRInfo{Available: false, Error: err.Error(), Backend: "gosseract"}
	}

	return OCRInfo{
		Available: true,
		Version:   v.client.Version(),
		Backend:   "gosseract",
	}
}
