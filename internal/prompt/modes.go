package prompt

import (
	"fmt"
	"sort"
)

// Mode is a visual style with the parameters every prompt in it must carry.
type Mode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Keywords    string `json:"keywords"`
	AspectRatio string `json:"aspect_ratio"`
}

var modes = map[string]Mode{
	"1": {ID: "1", Name: "Isolated Object", Keywords: "white background, studio lighting, no shadow, isolated on white", AspectRatio: "1:1"},
	"2": {ID: "2", Name: "Copy Space", Keywords: "minimalist, wide shot, rule of thirds, negative space on the side", AspectRatio: "16:9"},
	"3": {ID: "3", Name: "Social Media Aesthetic", Keywords: "top down view, knolling, aesthetic lighting, instagram style, flatlay", AspectRatio: "4:5"},
	"4": {ID: "4", Name: "Doodle & Line Art", Keywords: "thick outline, black and white, coloring book style, sticker design, vector style", AspectRatio: "1:1"},
	"5": {ID: "5", Name: "Infographic & Isometric", Keywords: "isometric view, 3d vector render, gradient glass texture, tech startup vibe, --no text letters", AspectRatio: "16:9"},
}

// DefaultModeID is used when a request names no mode.
const DefaultModeID = "1"

// Modes returns the catalogue ordered by ID.
func Modes() []Mode {
	out := make([]Mode, 0, len(modes))
	for _, m := range modes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LookupMode finds a mode by ID or by exact name.
func LookupMode(key string) (Mode, error) {
	if key == "" {
		key = DefaultModeID
	}
	if m, ok := modes[key]; ok {
		return m, nil
	}
	for _, m := range modes {
		if m.Name == key {
			return m, nil
		}
	}
	return Mode{}, fmt.Errorf("%w: %q", ErrUnknownMode, key)
}
