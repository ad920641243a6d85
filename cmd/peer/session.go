package main

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/lixenwraith/buildrun/config"
	"github.com/lixenwraith/buildrun/controller"
	"github.com/lixenwraith/buildrun/grid"
	"github.com/lixenwraith/buildrun/message"
	"github.com/lixenwraith/buildrun/network"
	"github.com/lixenwraith/buildrun/obstacle"
	"github.com/lixenwraith/buildrun/visual"
)

// session drives the controller through the scheduler and starts play once everyone has joined
type session struct {
	*controller.Controller
	link    network.Session
	cfg     config.Session
	color   message.Color
	logger  *zap.Logger
	started bool
	view    *visual.Renderer
}

func newSession(c *controller.Controller, link network.Session, cfg config.Session, color message.Color, logger *zap.Logger) *session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &session{Controller: c, link: link, cfg: cfg, color: color, logger: logger}
}

func (s *session) FixedUpdate(step time.Duration) {
	s.Controller.FixedUpdate(step)
	if !s.started && s.link.PlayerCount() >= s.cfg.ExpectedPlayers {
		s.started = true
		s.start()
	}
}

func (s *session) PostUpdate(alpha float64) {
	s.Controller.PostUpdate(alpha)
	if s.view == nil {
		return
	}
	f := s.Facts()
	s.view.SetStatus(fmt.Sprintf(" %s  players %d/%d  ready %d  taken %v  treasure %s ",
		s.link.LocalID(), s.link.PlayerCount(), s.cfg.ExpectedPlayers, f.ReadyCount, f.TreasureTaken, f.TreasurePos))
	s.view.Draw(s.Items())
}

// start shares this peer's avatar; the authoritative peer also lays out the level
func (s *session) start() {
	id := s.link.LocalID()
	if err := s.AssignColor(id, s.color); err != nil {
		s.logger.Warn("color assignment failed", zap.Error(err))
	}
	if _, err := s.CreatePlayerNetworked(obstacle.PlayerParams{
		X: 2 * float32(s.color), Y: 1.75, Scale: 1, Color: s.color,
	}); err != nil {
		s.logger.Warn("avatar create failed", zap.Error(err))
	}
	if !s.link.IsAuthoritative() {
		return
	}
	if err := s.buildLevel(); err != nil {
		s.logger.Warn("level build failed", zap.Error(err))
	}
	if err := s.Signal(message.TagHostStart); err != nil {
		s.logger.Warn("host start failed", zap.Error(err))
	}
}

func (s *session) buildLevel() error {
	first := s.cfg.Spawns[0]
	steps := []func() error{
		func() error {
			_, err := s.CreatePlatformNetworked(obstacle.PlatformParams{X: 10, Y: 0.5, W: 20, H: 1, Scale: 1})
			return err
		},
		func() error {
			_, err := s.CreatePlatformNetworked(obstacle.PlatformParams{X: 6, Y: 4.5, W: 4, H: 1, Scale: 1})
			return err
		},
		func() error {
			_, err := s.CreatePlatformNetworked(obstacle.PlatformParams{X: 3, Y: 3.5, W: 1, H: 1, Tag: obstacle.PlatformArt, Scale: 1})
			return err
		},
		func() error {
			_, err := s.CreateMovingPlatformNetworked(obstacle.MovingPlatformParams{
				X: 12.5, Y: 6.5, W: 3, H: 1, EndX: 16.5, EndY: 6.5, Speed: 2, Scale: 1,
			})
			return err
		},
		func() error {
			_, err := s.CreateHazardNetworked(obstacle.HazardParams{X: 9.5, Y: 1.5, W: 1, H: 1})
			return err
		},
		func() error {
			_, err := s.CreateBoostNetworked(obstacle.BoostParams{X: 15.5, Y: 1.5, W: 1, H: 1, Scale: 1})
			return err
		},
		func() error {
			_, err := s.CreateTreasureNetworked(obstacle.TreasureParams{X: first.X, Y: first.Y, W: 1, H: 1, Scale: 1})
			return err
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// pollInput turns keys into submitted actions until the screen is finalized
func (s *session) pollInput(screen tcell.Screen, quit func()) {
	cursor := grid.Cell{X: 1, Y: 2}
	for {
		ev := screen.PollEvent()
		if ev == nil {
			return
		}
		key, ok := ev.(*tcell.EventKey)
		if !ok {
			continue
		}
		switch key.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			quit()
			return
		case tcell.KeyLeft:
			cursor.X--
		case tcell.KeyRight:
			cursor.X++
		case tcell.KeyUp:
			cursor.Y++
		case tcell.KeyDown:
			cursor.Y--
		case tcell.KeyEnter:
			s.submit("build ready", func(c *controller.Controller) error { return c.BuildReady() })
		case tcell.KeyRune:
			s.onRune(key.Rune(), cursor, quit)
		}
	}
}

func (s *session) onRune(r rune, at grid.Cell, quit func()) {
	cx := float32(at.X) + 0.5
	cy := float32(at.Y) + 0.5
	switch r {
	case 'q':
		quit()
	case 'p':
		s.submit("place platform", func(c *controller.Controller) error {
			_, err := c.PlaceObject(obstacle.PlatformParams{X: cx, Y: cy, W: 1, H: 1, Scale: 1})
			return err
		})
	case 'h':
		s.submit("place hazard", func(c *controller.Controller) error {
			_, err := c.PlaceObject(obstacle.HazardParams{X: cx, Y: cy, W: 1, H: 1})
			return err
		})
	case 'm':
		s.submit("lift placement", func(c *controller.Controller) error {
			_, err := c.MoveObject(at)
			return err
		})
	case 'x':
		s.submit("remove", func(c *controller.Controller) error {
			if _, ok := c.RemoveWorldObject(at); !ok {
				return fmt.Errorf("nothing at %s", at)
			}
			return nil
		})
	case 't':
		s.signal(message.TagTreasureTaken)
	case 's':
		s.signal(message.TagTreasureStolen)
	case 'l':
		s.signal(message.TagTreasureLost)
	case 'w':
		s.signal(message.TagTreasureWon)
	case 'u':
		s.signal(message.TagMakeUnstealable)
	case 'e':
		s.signal(message.TagMovementEnd)
	case 'R':
		s.signal(message.TagResetLevel)
	}
}

func (s *session) signal(tag message.Tag) {
	s.submit(tag.String(), func(c *controller.Controller) error { return c.Signal(tag) })
}

func (s *session) submit(action string, fn func(*controller.Controller) error) {
	ok := s.Submit(func(c *controller.Controller) {
		if err := fn(c); err != nil {
			s.logger.Info("action rejected", zap.String("action", action), zap.Error(err))
		}
	})
	if !ok {
		s.logger.Warn("command queue full", zap.String("action", action))
	}
}
