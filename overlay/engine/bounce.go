package engine

import "github.com/gosuda/portal-overlay/overlay/command"

func (e *Engine) spawn(kind command.Kind, url string) {
	b := Bouncer{
		Kind: kind,
		URL:  url,
		X:    e.rng.Float64() * max(e.width-MediaSize, 0),
		Y:    e.rng.Float64() * max(e.height-MediaSize, 0),
		DX:   e.rng.Float64()*2*maxSpeed - maxSpeed,
		DY:   e.rng.Float64()*2*maxSpeed - maxSpeed,
	}
	e.state.Media = append(e.state.Media, b)
}

// Tick advances every bouncer one step, reflecting off the viewport edges.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	maxX := max(e.width-MediaSize, 0)
	maxY := max(e.height-MediaSize, 0)
	for i := range e.state.Media {
		b := &e.state.Media[i]
		if nx := b.X + b.DX; nx < 0 || nx > maxX {
			b.DX = -b.DX
		}
		if ny := b.Y + b.DY; ny < 0 || ny > maxY {
			b.DY = -b.DY
		}
		b.X = clamp(b.X+b.DX, 0, maxX)
		b.Y = clamp(b.Y+b.DY, 0, maxY)
	}
}

// SetViewport resizes the area bouncers move in.
func (e *Engine) SetViewport(w, h float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.width, e.height = w, h
	maxX := max(w-MediaSize, 0)
	maxY := max(h-MediaSize, 0)
	for i := range e.state.Media {
		e.state.Media[i].X = clamp(e.state.Media[i].X, 0, maxX)
		e.state.Media[i].Y = clamp(e.state.Media[i].Y, 0, maxY)
	}
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
