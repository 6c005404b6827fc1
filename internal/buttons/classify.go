// Package buttons decides whether a fetched image is an 88x31 webring
// button and produces its color analysis.
package buttons

import (
	"bytes"
	"fmt"
	"image"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// The de facto webring button standard. Exact match only.
const (
	buttonWidth  = 88
	buttonHeight = 31
)

type paletteEntry struct {
	name    string
	r, g, b int
}

// Reference palette for per-pixel nearest-color assignment. Order matters:
// ties in distance resolve to the earlier entry.
var palette = []paletteEntry{
	{"red", 255, 0, 0},
	{"blue", 0, 0, 255},
	{"green", 0, 128, 0},
	{"yellow", 255, 255, 0},
	{"purple", 128, 0, 128},
	{"orange", 255, 165, 0},
	{"black", 0, 0, 0},
	{"white", 255, 255, 255},
	{"gray", 128, 128, 128},
	{"pink", 255, 192, 203},
	{"brown", 165, 42, 42},
}

// Classify decodes image bytes and, if the image is exactly 88x31, returns
// its color tags and true average color as "#rrggbb". A decode failure or a
// wrong size means the candidate is not a button, not an error.
//
// Tags are decided in priority order: an image whose channels never differ
// by more than 10 on any pixel is "b&w"; an image with more distinct RGB
// values than 10% of its pixel count is "rainbow"; otherwise the three most
// frequent nearest-palette colors win.
func Classify(data []byte) (tags []string, hexAverage string, ok bool) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", false
	}
	bounds := img.Bounds()
	if bounds.Dx() != buttonWidth || bounds.Dy() != buttonHeight {
		return nil, "", false
	}

	counts := make(map[string]int, len(palette))
	distinct := make(map[uint32]struct{})
	var sumR, sumG, sumB int64
	grayscale := true

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r := int(pr >> 8)
			g := int(pg >> 8)
			b := int(pb >> 8)

			sumR += int64(r)
			sumG += int64(g)
			sumB += int64(b)
			distinct[uint32(r)<<16|uint32(g)<<8|uint32(b)] = struct{}{}

			if abs(r-g) > 10 || abs(r-b) > 10 {
				grayscale = false
			}

			counts[nearestPaletteColor(r, g, b)]++
		}
	}

	total := buttonWidth * buttonHeight
	hexAverage = fmt.Sprintf("#%02x%02x%02x",
		int(sumR/int64(total)), int(sumG/int64(total)), int(sumB/int64(total)))

	switch {
	case grayscale:
		tags = []string{"b&w"}
	case len(distinct)*10 > total:
		tags = []string{"rainbow"}
	default:
		tags = topColors(counts, 3)
	}
	return tags, hexAverage, true
}

func nearestPaletteColor(r, g, b int) string {
	best := palette[0].name
	bestDist := 1 << 30
	for _, p := range palette {
		dr, dg, db := r-p.r, g-p.g, b-p.b
		d := dr*dr + dg*dg + db*db
		if d < bestDist {
			bestDist = d
			best = p.name
		}
	}
	return best
}

// topColors returns the n most frequent palette names, count descending,
// name ascending on ties so the result is deterministic.
func topColors(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name, c := range counts {
		if c > 0 {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
