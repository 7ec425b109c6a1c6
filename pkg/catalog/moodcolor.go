package catalog

// moodPalette is the fixed palette used when upstream data carries no mood
// color. Order matters: the hash below indexes into it.
var moodPalette = []string{
	"#4A6FA5", // rainy blue
	"#6B4A5A", // plum dusk
	"#2E3440", // midnight
	"#A3BE8C", // moss
	"#D08770", // ember
	"#B48EAD", // lilac
	"#8FBCBB", // sea glass
	"#EBCB8B", // lamplight
}

// MoodColor derives a deterministic mood color from a title via a character
// code hash, so the same title always colors the same way.
func MoodColor(title string) string {
	var sum int
	for _, r := range title {
		sum += int(r)
	}
	if sum < 0 {
		sum = -sum
	}
	return moodPalette[sum%len(moodPalette)]
}
