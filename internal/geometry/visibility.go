package geometry

// VisibleFraction returns the share of a spriteW x spriteH sprite placed with
// its top-left corner at (posX, posY) that overlaps target.
//
// The denominator is always the sprite's own area, so the result answers
// "how much of the sprite can be seen", never "how much of the target is
// covered". Callers must pass the transformed (scaled and rotated) sprite
// size. A degenerate sprite (zero or negative area) yields 0.
func VisibleFraction(spriteW, spriteH, posX, posY int, target Rect) float64 {
	if spriteW <= 0 || spriteH <= 0 {
		return 0
	}

	ox1 := max(posX, target.X)
	oy1 := max(posY, target.Y)
	ox2 := min(posX+spriteW, target.X+target.W)
	oy2 := min(posY+spriteH, target.Y+target.H)
	if ox2 <= ox1 || oy2 <= oy1 {
		return 0
	}

	overlap := float64(ox2-ox1) * float64(oy2-oy1)
	frac := overlap / (float64(spriteW) * float64(spriteH))
	if frac > 1 {
		return 1
	}
	return frac
}

// VisibleRect returns the part of the placed sprite that lies inside target.
func VisibleRect(spriteW, spriteH, posX, posY int, target Rect) Rect {
	return Rect{X: posX, Y: posY, W: spriteW, H: spriteH}.Intersect(target)
}
