package composite

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

type Mode string

const (
	ModeTransparent Mode = "transparent"
	ModeColor       Mode = "color"
	ModeImage       Mode = "image"

	DefaultColor = "#FFFFFF"
)

var (
	ErrInvalidColor = errors.New("invalid hex color")
	ErrInvalidMode  = errors.New("invalid background mode")
)

// PresetColors are offered as one-click background colors.
var PresetColors = []string{
	"#FFFFFF", "#000000", "#F3F4F6", "#EF4444", "#F59E0B",
	"#10B981", "#3B82F6", "#6366F1", "#8B5CF6", "#EC4899",
}

// PresetBackgrounds are stock photos usable as image backgrounds.
var PresetBackgrounds = []string{
	"https://images.unsplash.com/photo-1497215728101-856f4ea42174?w=800&auto=format&fit=crop&q=60",
	"https://images.unsplash.com/photo-1506744038136-46273834b3fb?w=800&auto=format&fit=crop&q=60",
	"https://images.unsplash.com/photo-1464822759023-fed622ff2c3b?w=800&auto=format&fit=crop&q=60",
}

// Background is what the subject gets composited over. Color is kept while
// another mode is active so switching back restores it.
type Background struct {
	Mode  Mode   `json:"mode"`
	Color string `json:"color"`
	// Image holds encoded raster bytes for ModeImage.
	Image []byte `json:"-"`
}

func DefaultBackground() Background {
	return Background{Mode: ModeTransparent, Color: DefaultColor}
}

func (b Background) Validate() error {
	switch b.Mode {
	case ModeTransparent, ModeColor, ModeImage:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, b.Mode)
	}
	_, err := ParseColor(b.Color)
	return err
}

// ParseColor parses "#RRGGBB" or "#RGB" (case-insensitive) into an opaque color.
func ParseColor(s string) (color.NRGBA, error) {
	hex, ok := strings.CutPrefix(strings.TrimSpace(s), "#")
	if !ok {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
