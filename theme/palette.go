package theme

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type RGB [3]uint8

// Palette is an ordered color ramp. Roles look colors up by a
// normalized position, so the same role names work for a ramp of any
// length.
type Palette struct {
	Name   string
	Colors []RGB
}

// Default is the built-in ramp, deep blue through cyan into warm
// highlights. It keeps the looper usable when no palette file exists.
func Default() *Palette {
	return &Palette{
		Name: "builtin",
		Colors: []RGB{
			{13, 17, 23},    // near black
			{22, 33, 62},    // deep blue
			{58, 80, 107},   // slate
			{91, 192, 190},  // teal
			{111, 255, 233}, // cyan
			{255, 211, 105}, // amber
			{255, 107, 107}, // coral
			{255, 230, 109}, // bright yellow
		},
	}
}

// LoadGPL reads a GIMP palette file. Only the color table matters;
// headers and comments are skipped.
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p := &Palette{Name: strings.TrimSuffix(filepath.Base(path), ".gpl")}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || line[0] == '#':
			continue
		case strings.HasPrefix(line, "Name:"):
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			continue
		case strings.HasPrefix(line, "GIMP") || strings.HasPrefix(line, "Columns"):
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		r, err1 := strconv.Atoi(fields[0])
		g, err2 := strconv.Atoi(fields[1])
		b, err3 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		p.Colors = append(p.Colors, RGB{uint8(r), uint8(g), uint8(b)})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(p.Colors) == 0 {
		return nil, fmt.Errorf("no colors in palette %s", path)
	}
	return p, nil
}

// Lookup interpolates the ramp at a normalized position in [0, 1].
func (p *Palette) Lookup(norm float64) RGB {
	if norm <= 0 || len(p.Colors) == 1 {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[len(p.Colors)-1]
	}
	pos := norm * float64(len(p.Colors)-1)
	i := int(pos)
	frac := pos - float64(i)
	lo, hi := p.Colors[i], p.Colors[i+1]
	return RGB{
		lerp(lo[0], hi[0], frac),
		lerp(lo[1], hi[1], frac),
		lerp(lo[2], hi[2], frac),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}
