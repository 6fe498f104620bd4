package synth

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/dataset-synth/internal/imaging"
)

// timestampLayout keeps milliseconds so names sort by creation time.
const timestampLayout = "20060102_150405.000"

// OutputName builds "{bg}_{fg}_{timestamp}_{token}_aug{n}{ext}". The token is
// the first 8 hex digits of a random UUID, so workers writing in the same
// millisecond never collide.
func OutputName(bgPath, fgPath string, now time.Time, augIdx int, format imaging.Format) string {
	token := uuid.NewString()[:8]
	return fmt.Sprintf("%s_%s_%s_%s_aug%d%s",
		imaging.BaseName(bgPath), imaging.BaseName(fgPath), now.Format(timestampLayout), token, augIdx, format.Ext())
}

// outputKey returns the sink key for an output: the sprite's directory
// relative to the foreground root, joined with name.
func outputKey(fgRoot, fgPath, name string) string {
	rel, err := filepath.Rel(fgRoot, filepath.Dir(fgPath))
	if err != nil || rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return name
	}
	return path.Join(filepath.ToSlash(rel), name)
}

// labelKey swaps the image extension of key for ".txt".
func labelKey(key string) string {
	return key[:len(key)-len(path.Ext(key))] + ".txt"
}

// classFor returns the numeric name of the sprite's directory, or fallback.
func classFor(fgPath string, fromDir bool, fallback int) int {
	if !fromDir {
		return fallback
	}
	n, err := strconv.Atoi(filepath.Base(filepath.Dir(fgPath)))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
