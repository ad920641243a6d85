package cue

import "github.com/lixenwraith/buildrun/message"

// Observer turns applied fact messages into cues
type Observer struct {
	Player Player
}

func NewObserver(p Player) *Observer {
	if p == nil {
		p = &Null{}
	}
	return &Observer{Player: p}
}

func (o *Observer) Observe(_ string, msg message.Message) {
	if c := CueFor(msg); c != CueNone {
		o.Player.Play(c)
	}
}

// CueFor maps a message to its cue
func CueFor(msg message.Message) Cue {
	switch msg.Tag() {
	case message.TagBuildReady:
		return CueReady
	case message.TagTreasureTaken:
		return CueTaken
	case message.TagTreasureStolen:
		return CueStolen
	case message.TagTreasureLost:
		return CueLost
	case message.TagTreasureWon:
		return CueWon
	case message.TagTreasureSpawn:
		return CueSpawn
	case message.TagResetLevel:
		return CueReset
	}
	return CueNone
}
