// Package cue plays short synthesized sounds for shared game facts
package cue

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
)

// Wave selects an oscillator shape
type Wave uint8

const (
	WaveSine Wave = iota
	WaveSquare
	WaveSaw
	WaveNoise
)

// sample returns the wave value at phase in [0,1)
func (w Wave) sample(phase float64, noise *rand.Rand) float64 {
	switch w {
	case WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case WaveSaw:
		return 2*phase - 1
	case WaveNoise:
		return noise.Float64()*2 - 1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

// Note is one shaped tone
// Attack and Release are fractions of Dur; a rest has Freq 0 and a non-noise wave
type Note struct {
	Freq    float64
	Dur     time.Duration
	Wave    Wave
	Attack  float64
	Release float64
}

// gain is the linear attack/release envelope at sample pos of n
func (nt Note) gain(pos, n int) float64 {
	attack := int(nt.Attack * float64(n))
	release := int(nt.Release * float64(n))
	g := 1.0
	if pos < attack {
		g = float64(pos) / float64(attack)
	}
	if tail := n - pos; release > 0 && tail <= release {
		g = min(g, float64(tail)/float64(release))
	}
	return g
}

// Voice renders its notes back to back, then ends
type Voice struct {
	notes []Note
	rate  beep.SampleRate
	noise *rand.Rand

	idx   int
	pos   int
	n     int
	phase float64
}

// NewVoice streams notes at rate; noise notes draw from a fixed-seed source so cues repeat exactly
func NewVoice(rate beep.SampleRate, notes ...Note) *Voice {
	v := &Voice{notes: notes, rate: rate, noise: rand.New(rand.NewPCG(0x6275, 0x6e)), idx: -1}
	v.advance()
	return v
}

func (v *Voice) advance() {
	v.idx++
	v.pos, v.phase = 0, 0
	if v.idx < len(v.notes) {
		v.n = v.rate.N(v.notes[v.idx].Dur)
	}
}

// Len returns the total sample count
func (v *Voice) Len() int {
	total := 0
	for _, nt := range v.notes {
		total += v.rate.N(nt.Dur)
	}
	return total
}

func (v *Voice) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		for v.idx < len(v.notes) && v.pos >= v.n {
			v.advance()
		}
		if v.idx >= len(v.notes) {
			return i, i > 0
		}
		nt := v.notes[v.idx]
		val := nt.Wave.sample(v.phase, v.noise) * nt.gain(v.pos, v.n)
		if nt.Freq == 0 && nt.Wave != WaveNoise {
			val = 0
		}
		samples[i][0], samples[i][1] = val, val

		v.phase += nt.Freq / float64(v.rate)
		v.phase -= math.Floor(v.phase)
		v.pos++
	}
	return len(samples), true
}

func (v *Voice) Err() error { return nil }

// layer is one voice of a patch with its mix level
type layer struct {
	level float64
	notes []Note
}

// patches is the sound of every cue; layers of one patch sound together
var patches = map[Cue][]layer{
	CueReady: {{1, []Note{{660, 80 * time.Millisecond, WaveSine, 0.1, 0.5}}}},
	CueTaken: {{1, []Note{
		{523.25, 60 * time.Millisecond, WaveSquare, 0.1, 0.5},
		{783.99, 90 * time.Millisecond, WaveSquare, 0.1, 0.5},
	}}},
	CueStolen: {{1, []Note{
		{783.99, 60 * time.Millisecond, WaveSaw, 0.1, 0.5},
		{523.25, 90 * time.Millisecond, WaveSaw, 0.1, 0.5},
	}}},
	CueLost: {{1, []Note{{110, 200 * time.Millisecond, WaveSaw, 0.1, 0.5}}}},
	CueWon: {
		{0.7, []Note{{880, 250 * time.Millisecond, WaveSine, 0.1, 0.5}}},
		{0.3, []Note{{1760, 250 * time.Millisecond, WaveSine, 0.1, 0.5}}},
	},
	CueSpawn: {{1, []Note{{0, 120 * time.Millisecond, WaveNoise, 0.08, 0.8}}}},
	CueReset: {{1, []Note{
		{440, 80 * time.Millisecond, WaveSquare, 0.1, 0.5},
		{330, 80 * time.Millisecond, WaveSquare, 0.1, 0.5},
		{220, 120 * time.Millisecond, WaveSquare, 0.1, 0.5},
	}}},
}

// newVolume scales linearly; zero or less is silent since Log2(0) is -Inf
func newVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol)}
}

// Streamer builds the sound for c, nil for CueNone or an unknown cue
func Streamer(c Cue, rate beep.SampleRate, volume float64) beep.Streamer {
	layers, ok := patches[c]
	if !ok {
		return nil
	}
	voices := make([]beep.Streamer, 0, len(layers))
	for _, l := range layers {
		voices = append(voices, newVolume(NewVoice(rate, l.notes...), l.level))
	}
	s := voices[0]
	if len(voices) > 1 {
		s = beep.Mix(voices...)
	}
	return newVolume(s, volume)
}
