// Package glyph renders synthetic digit images from TrueType/OpenType fonts
// and composes single digits into two-digit sequences.
package glyph

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// ErrNoFonts is returned when a font directory holds no usable font.
var ErrNoFonts = errors.New("no valid fonts found")

// Font is a parsed font file.
type Font struct {
	Name string
	font *opentype.Font
}

// ParseFont parses font data and checks that a face can be built from it.
func ParseFont(name string, data []byte) (*Font, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %s: %w", name, err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 10, DPI: 72, Hinting: font.HintingNone})
	if err != nil {
		return nil, fmt.Errorf("failed to load font %s: %w", name, err)
	}
	face.Close()

	return &Font{Name: name, font: f}, nil
}

// IsFontFile reports whether name has a .ttf or .otf extension.
func IsFontFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ttf", ".otf":
		return true
	}
	return false
}

// LoadFonts parses every font file directly inside dir. Files that fail to
// parse are logged and skipped; a directory without any valid font is an
// error.
func LoadFonts(dir string) ([]*Font, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read font directory: %w", err)
	}

	var fonts []*Font
	for _, e := range entries {
		if e.IsDir() || !IsFontFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Skipping font %s: %v", path, err)
			continue
		}
		f, err := ParseFont(e.Name(), data)
		if err != nil {
			log.Printf("Skipping font %s: %v", path, err)
			continue
		}
		fonts = append(fonts, f)
	}

	if len(fonts) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFonts, dir)
	}
	sort.Slice(fonts, func(i, j int) bool { return fonts[i].Name < fonts[j].Name })
	return fonts, nil
}
