// Command peer runs one game instance: it joins a session, keeps shared obstacles and facts in step,
// and optionally shows a terminal view with audio cues
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lixenwraith/buildrun/config"
	"github.com/lixenwraith/buildrun/controller"
	"github.com/lixenwraith/buildrun/cue"
	"github.com/lixenwraith/buildrun/logging"
	"github.com/lixenwraith/buildrun/message"
	"github.com/lixenwraith/buildrun/network"
	"github.com/lixenwraith/buildrun/scheduler"
	"github.com/lixenwraith/buildrun/visual"
)

var errLinkClosed = errors.New("session link closed")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "peer: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	var (
		envFile  = flag.String("env", ".env", "dotenv file, skipped when missing")
		role     = flag.String("role", "", "network role: none, host, peer, relay")
		addr     = flag.String("addr", "", "host listen/connect address or relay websocket URL")
		id       = flag.String("id", "", "peer id, generated when empty")
		sessFile = flag.String("session", "", "TOML session file")
		color    = flag.String("color", "red", "avatar color: red, blue, green, yellow")
		dbg      = flag.Bool("debug", false, "write JSON logs")
		render   = flag.Bool("render", false, "show the terminal view")
		audio    = flag.Bool("audio", false, "play audio cues")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, *role, *addr, *id, *sessFile, *dbg, *render, *audio); err != nil {
		return err
	}
	avatar, err := parseColor(*color)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{Debug: cfg.Debug, Dir: cfg.LogDir, Console: !cfg.Render})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeLog()) }()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("peer crashed", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	link, err := network.Open(ctx, cfg.Network, logger)
	if err != nil {
		return fmt.Errorf("joining session: %w", err)
	}
	defer func() { err = multierr.Append(err, link.Close()) }()
	logger.Info("joined session",
		zap.Stringer("role", cfg.Network.Role),
		zap.String("id", link.LocalID()),
		zap.String("authority", link.AuthorityID()),
	)

	selector, err := cfg.Session.Selector()
	if err != nil {
		return err
	}
	ctrl := controller.New(controller.Config{
		ExpectedPlayers: cfg.Session.ExpectedPlayers,
		CellSize:        cfg.Session.CellSize,
		CommandQueue:    256,
	}, link, selector, visual.DefaultCatalog(), logger)

	sounds := cue.NewEngine(cfg.Audio)
	if cfg.Audio.Enabled {
		if closeAudio, err := openSpeaker(sounds); err != nil {
			logger.Warn("audio unavailable, continuing without", zap.Error(err))
		} else {
			defer closeAudio()
		}
	}
	ctrl.SetObserver(cue.NewObserver(sounds))

	sess := newSession(ctrl, link, cfg.Session, avatar, logger)

	var screen tcell.Screen
	if cfg.Render {
		if screen, err = tcell.NewScreen(); err != nil {
			return fmt.Errorf("terminal: %w", err)
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("terminal: %w", err)
		}
		defer screen.Fini()
		sess.view = visual.NewRenderer(screen, 2)
	}

	loop := scheduler.New(scheduler.Config{
		Step:             cfg.Session.Step(),
		MaxStepsPerFrame: cfg.Session.MaxStepsPerFrame,
	}, sess, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := loop.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if d, ok := link.(interface{ Done() <-chan struct{} }); ok {
		g.Go(func() error {
			select {
			case <-d.Done():
				return errLinkClosed
			case <-gctx.Done():
				return nil
			}
		})
	}

	if screen != nil {
		logging.Go(logger, "input", func() { sess.pollInput(screen, cancel) })
	} else {
		g.Go(func() error { return reportStatus(gctx, ctrl, logger) })
	}

	err = g.Wait()
	logger.Info("session ended",
		zap.Uint64("frames", loop.Frames()),
		zap.Uint64("steps", loop.Steps()),
		zap.Duration("dropped", loop.Dropped()),
		zap.Error(err),
	)
	return err
}

// applyFlags lets explicitly set flags win over environment and files
func applyFlags(cfg *config.Config, role, addr, id, session string, dbg, render, audio bool) error {
	if role != "" {
		r, err := network.ParseRole(role)
		if err != nil {
			return err
		}
		cfg.Network.Role = r
	}
	if addr != "" {
		cfg.Network.Address = addr
	}
	if id != "" {
		cfg.Network.LocalID = id
	}
	if session != "" {
		s, err := config.LoadSession(session)
		if err != nil {
			return err
		}
		cfg.Session = s
	}
	cfg.Debug = cfg.Debug || dbg
	cfg.Render = cfg.Render || render
	cfg.Audio.Enabled = cfg.Audio.Enabled || audio
	if cfg.Network.Role == network.RoleNone {
		cfg.Session.ExpectedPlayers = 1
	}
	return cfg.Validate()
}

func parseColor(s string) (message.Color, error) {
	for c := message.ColorRed; c <= message.ColorYellow; c++ {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return message.ColorNone, fmt.Errorf("unknown color %q", s)
}

// reportStatus logs controller counters from inside the update loop
func reportStatus(ctx context.Context, ctrl *controller.Controller, logger *zap.Logger) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ctrl.Submit(func(c *controller.Controller) {
				st, f := c.Stats(), c.Facts()
				logger.Info("status",
					zap.Uint64("steps", st.Steps),
					zap.Uint64("received", st.Received),
					zap.Uint64("duplicates", st.Duplicates),
					zap.Uint64("unknown", st.Unknown),
					zap.Int("objects", len(c.Objects())),
					zap.Int("ready", f.ReadyCount),
					zap.Bool("treasure_taken", f.TreasureTaken),
					zap.Stringer("treasure", f.TreasurePos),
					zap.Binary("digest", digest(c)),
				)
			})
		}
	}
}

func digest(c *controller.Controller) []byte {
	d := c.World().Digest()
	return d[:8]
}
