package simulate

import (
	"strings"

	"agent-arena/internal/arena"
)

const ansiReset = "\x1b[0m"

var ansiColors = []string{
	"\x1b[31m", // red
	"\x1b[32m", // green
	"\x1b[33m", // yellow
	"\x1b[34m", // blue
	"\x1b[35m", // magenta
	"\x1b[36m", // cyan
	"\x1b[91m",
	"\x1b[92m",
	"\x1b[93m",
	"\x1b[94m",
	"\x1b[95m",
	"\x1b[96m",
}

const gameMasterColor = "\x1b[1;97m"

// palette assigns each handle a colour the first time it is seen. It lives
// for one run and is not shared.
type palette struct {
	enabled bool
	colors  map[string]string
	next    int
}

func newPalette(enabled bool) *palette {
	return &palette{enabled: enabled, colors: make(map[string]string)}
}

func (p *palette) colorFor(handle string) string {
	key := strings.ToLower(handle)
	if c, ok := p.colors[key]; ok {
		return c
	}
	c := gameMasterColor
	if !strings.EqualFold(handle, arena.GameMasterHandle) {
		c = ansiColors[p.next%len(ansiColors)]
		p.next++
	}
	p.colors[key] = c
	return c
}

func (p *palette) paint(handle, text string) string {
	if !p.enabled {
		return text
	}
	return p.colorFor(handle) + text + ansiReset
}

// highlight colours every @mention of a handle already seen in this run.
func (p *palette) highlight(text string) string {
	if !p.enabled || len(p.colors) == 0 {
		return text
	}
	known := make([]string, 0, len(p.colors))
	for k := range p.colors {
		known = append(known, k)
	}
	for _, handle := range arena.Mentions(text, known) {
		text = replaceFold(text, "@"+handle, func(match string) string {
			return p.paint(handle, match)
		})
	}
	return text
}

// replaceFold replaces case-insensitive occurrences of old in s.
func replaceFold(s, old string, repl func(string) string) string {
	var b strings.Builder
	start := 0
	for i := 0; i+len(old) <= len(s); {
		if strings.EqualFold(s[i:i+len(old)], old) {
			b.WriteString(s[start:i])
			b.WriteString(repl(s[i : i+len(old)]))
			i += len(old)
			start = i
			continue
		}
		i++
	}
	b.WriteString(s[start:])
	return b.String()
}
