package theme

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// ColorWrap wraps the text with the element's color tag. The attributes
// default to bold.
func ColorWrap(element Context, text string, attributes ...string) string {
	attr := "::b"
	if len(attributes) > 0 {
		attr = attributes[0]
	}

	return fmt.Sprintf("[%s%s]%s[-:-:-]", ThemeConfig[element], attr, text)
}

// ContrastColor returns black or white, whichever is readable on top
// of the element's color.
func ContrastColor(element Context) tcell.Color {
	if isLightColor(GetColor(element)) {
		return tcell.ColorBlack
	}

	return tcell.ColorWhite
}

// GetColor returns the color of the element.
func GetColor(element Context) tcell.Color {
	color := ThemeConfig[element]
	if color == "black" {
		return tcell.Color16
	}

	return tcell.GetColor(color)
}

// isLightColor checks if the given color is a light color, using the
// perceived brightness of its RGB components.
func isLightColor(color tcell.Color) bool {
	r, g, b := color.RGB()

	return (r*299+g*587+b*114)/1000 > 130
}

// isValidElementColor reports whether the color name can be applied to an element.
func isValidElementColor(color string) bool {
	return color == "transparent" || color == "default" ||
		tcell.GetColor(color) != tcell.ColorDefault
}
