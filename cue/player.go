package cue

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep"
)

// Cue names a game event with a sound
type Cue uint8

const (
	CueNone Cue = iota
	CueReady
	CueTaken
	CueStolen
	CueLost
	CueWon
	CueSpawn
	CueReset
)

var cueNames = [...]string{"none", "ready", "taken", "stolen", "lost", "won", "spawn", "reset"}

func (c Cue) String() string {
	if int(c) < len(cueNames) {
		return cueNames[c]
	}
	return fmt.Sprintf("cue(%d)", uint8(c))
}

// Player plays cues without blocking the caller
type Player interface {
	Play(Cue) bool
}

// Null discards cues, counting them
type Null struct {
	played atomic.Uint64
}

func (n *Null) Play(c Cue) bool {
	if c == CueNone {
		return false
	}
	n.played.Add(1)
	return true
}

func (n *Null) Played() uint64 { return n.played.Load() }

// Config controls the cue engine
type Config struct {
	Enabled    bool
	SampleRate int
	Volume     float64 // 0..1
}

func DefaultConfig() Config {
	return Config{Enabled: false, SampleRate: 44100, Volume: 0.5}
}

// LoadConfig applies BUILDRUN_AUDIO_* environment overrides to DefaultConfig
func LoadConfig() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("BUILDRUN_AUDIO_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Enabled = b
		}
	}
	if v := os.Getenv("BUILDRUN_AUDIO_VOLUME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Volume = min(1, max(0, float64(n)/100))
		}
	}
	if v := os.Getenv("BUILDRUN_AUDIO_SAMPLE_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SampleRate = n
		}
	}
	return cfg
}

// Engine mixes cues into one stream; the caller hands it to an output device as a beep.Streamer
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	rate   beep.SampleRate
	mixer  *beep.Mixer
	muted  atomic.Bool
	played atomic.Uint64
}

func NewEngine(cfg Config) *Engine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultConfig().SampleRate
	}
	e := &Engine{cfg: cfg, rate: beep.SampleRate(cfg.SampleRate), mixer: &beep.Mixer{}}
	e.muted.Store(!cfg.Enabled)
	return e
}

// SampleRate is the rate every cue is rendered at
func (e *Engine) SampleRate() beep.SampleRate { return e.rate }

// Stop silences everything queued
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mixer.Clear()
}

func (e *Engine) Play(c Cue) bool {
	if e.muted.Load() {
		return false
	}
	s := Streamer(c, e.rate, e.cfg.Volume)
	if s == nil {
		return false
	}
	e.mu.Lock()
	e.mixer.Add(s)
	e.mu.Unlock()
	e.played.Add(1)
	return true
}

// ToggleMute flips mute and returns the new state
func (e *Engine) ToggleMute() bool {
	for {
		old := e.muted.Load()
		if e.muted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (e *Engine) IsMuted() bool { return e.muted.Load() }

func (e *Engine) Played() uint64 { return e.played.Load() }

// Active returns the number of cues still sounding
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mixer.Len()
}

// Stream pulls mixed samples; the output device calls it from its own goroutine
func (e *Engine) Stream(samples [][2]float64) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mixer.Stream(samples)
}

func (e *Engine) Err() error { return nil }
