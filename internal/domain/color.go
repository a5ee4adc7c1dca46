package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Color is a 32-bit ARGB value. NoColor is the "not yet resolved" sentinel
// and never collides with a valid color. Fully transparent values are not
// concrete colors either, so the zero value reads as "no color".
type Color int64

// NoColor marks an unknown color.
const NoColor Color = -1

// RGB builds an opaque color.
func RGB(r, g, b uint8) Color {
	return ARGB(0xff, r, g, b)
}

// ARGB builds a color from its four channels.
func ARGB(a, r, g, b uint8) Color {
	return Color(int64(a)<<24 | int64(r)<<16 | int64(g)<<8 | int64(b))
}

// Valid reports whether c is a concrete color.
func (c Color) Valid() bool {
	return c > 0 && c <= 0xffffffff && c>>24 != 0
}

// Channels splits c into alpha, red, green and blue.
func (c Color) Channels() (a, r, g, b uint8) {
	v := uint32(c)
	return uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// Hex renders #RRGGBB for opaque colors and #AARRGGBB otherwise.
// NoColor renders as the empty string.
func (c Color) Hex() string {
	if !c.Valid() {
		return ""
	}
	a, r, g, b := c.Channels()
	if a == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", r, g, b)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", a, r, g, b)
}

func (c Color) String() string {
	if !c.Valid() {
		return "none"
	}
	return c.Hex()
}

// ParseColor parses the CSS hex notations #RGB, #RRGGBB and #RRGGBBAA.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		return NoColor, fmt.Errorf("unsupported color %q", s)
	}
	hex := strings.ToLower(s[1:])

	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		fallthrough
	case 6:
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return NoColor, fmt.Errorf("invalid color %q: %w", s, err)
		}
		return Color(0xff000000 | int64(v)), nil
	case 8:
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return NoColor, fmt.Errorf("invalid color %q: %w", s, err)
		}
		// CSS puts alpha last.
		rgb := int64(v >> 8)
		alpha := int64(v & 0xff)
		return Color(alpha<<24 | rgb), nil
	default:
		return NoColor, fmt.Errorf("invalid color length %q", s)
	}
}

// MarshalJSON encodes NoColor as null and valid colors as hex strings.
func (c Color) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(c.Hex())
}

// UnmarshalJSON accepts null, hex strings and raw integers.
func (c *Color) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*c = NoColor
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := parseStoredHex(s)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid color %s: %w", raw, err)
	}
	*c = Color(v)
	if !c.Valid() {
		*c = NoColor
	}
	return nil
}

// parseStoredHex reads what Hex writes: #RRGGBB or #AARRGGBB (alpha first).
func parseStoredHex(s string) (Color, error) {
	if len(s) == 9 && strings.HasPrefix(s, "#") {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return NoColor, fmt.Errorf("invalid color %q: %w", s, err)
		}
		return Color(v), nil
	}
	return ParseColor(s)
}

// WebColor pairs a host with its resolved accent color.
type WebColor struct {
	Host  string `json:"host"`
	Color Color  `json:"color"`
}

// NoWebColor is returned when no color could be resolved.
var NoWebColor = WebColor{Host: "", Color: NoColor}
