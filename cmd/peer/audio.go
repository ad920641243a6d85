package main

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/speaker"

	"github.com/lixenwraith/buildrun/cue"
)

// openSpeaker plays the engine's mix on the system audio device
// Without an audio backend it returns the error and the engine stays silent
func openSpeaker(e *cue.Engine) (func(), error) {
	rate := e.SampleRate()
	if err := speaker.Init(rate, rate.N(100*time.Millisecond)); err != nil {
		return nil, fmt.Errorf("opening speaker: %w", err)
	}
	speaker.Play(e)
	return func() {
		e.Stop()
		speaker.Clear()
	}, nil
}
