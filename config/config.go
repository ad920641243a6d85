// Package config assembles peer settings from defaults, .env files, BUILDRUN_* variables and a TOML session file
//
// Precedence, lowest first: DefaultConfig, session file, environment; command-line flags are applied by the binaries
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/lixenwraith/buildrun/cue"
	"github.com/lixenwraith/buildrun/network"
	"github.com/lixenwraith/buildrun/spawn"
)

const envPrefix = "BUILDRUN_"

// ErrInvalid reports a setting outside its allowed range
var ErrInvalid = errors.New("invalid configuration")

// Spawn is one treasure spawn candidate
type Spawn struct {
	X float32 `toml:"x"`
	Y float32 `toml:"y"`
}

// Session is the shared layout every peer of a session must agree on
type Session struct {
	ExpectedPlayers  int     `toml:"expected_players"`
	CellSize         float64 `toml:"cell_size"`
	TickRate         int     `toml:"tick_rate"`
	MaxStepsPerFrame int     `toml:"max_steps_per_frame"`
	Seed             uint64  `toml:"seed"`
	Spawns           []Spawn `toml:"spawn"`
}

// Config is the complete peer configuration
type Config struct {
	Debug  bool
	LogDir string

	// SessionFile is an optional TOML file overriding Session
	SessionFile string
	Session     Session

	Network *network.Config
	Audio   cue.Config

	// Render enables the terminal view
	Render bool
}

func DefaultSession() Session {
	return Session{
		ExpectedPlayers:  2,
		CellSize:         1,
		TickRate:         60,
		MaxStepsPerFrame: 5,
		Seed:             1,
		Spawns: []Spawn{
			{X: 2, Y: 8},
			{X: 10, Y: 8},
			{X: 18, Y: 8},
		},
	}
}

func DefaultConfig() *Config {
	return &Config{
		LogDir:  "logs",
		Session: DefaultSession(),
		Network: network.DefaultConfig(),
		Audio:   cue.DefaultConfig(),
	}
}

// Load reads envFiles (missing files are skipped), then the environment, then the session file it names
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := DefaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.SessionFile != "" {
		s, err := LoadSession(cfg.SessionFile)
		if err != nil {
			return nil, err
		}
		cfg.Session = s
		// environment still wins over the file
		if err := cfg.applySessionEnv(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSession decodes a session file; keys it omits keep their defaults
func LoadSession(path string) (Session, error) {
	s := DefaultSession()
	defaults := s.Spawns
	s.Spawns = nil
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Session{}, fmt.Errorf("reading session %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Session{}, fmt.Errorf("%w: unknown session keys %v in %s", ErrInvalid, undecoded, path)
	}
	if !md.IsDefined("spawn") {
		s.Spawns = defaults
	}
	return s, nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookup("DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("DEBUG", v, err)
		}
		c.Debug = b
	}
	if v, ok := lookup("LOG_DIR"); ok {
		c.LogDir = v
	}
	if v, ok := lookup("RENDER"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("RENDER", v, err)
		}
		c.Render = b
	}
	if v, ok := lookup("SESSION"); ok {
		c.SessionFile = v
	}
	if v, ok := lookup("ROLE"); ok {
		r, err := network.ParseRole(v)
		if err != nil {
			return envError("ROLE", v, err)
		}
		c.Network.Role = r
	}
	if v, ok := lookup("ADDR"); ok {
		c.Network.Address = v
	}
	if v, ok := lookup("PEER_ID"); ok {
		c.Network.LocalID = v
	}
	if v, ok := lookup("MAX_PEERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("MAX_PEERS", v, err)
		}
		c.Network.MaxPeers = n
	}
	c.Audio = cue.LoadConfig()
	return c.applySessionEnv()
}

func (c *Config) applySessionEnv() error {
	if v, ok := lookup("PLAYERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("PLAYERS", v, err)
		}
		c.Session.ExpectedPlayers = n
	}
	if v, ok := lookup("SEED"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return envError("SEED", v, err)
		}
		c.Session.Seed = n
	}
	if v, ok := lookup("TICK_RATE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("TICK_RATE", v, err)
		}
		c.Session.TickRate = n
	}
	return nil
}

// Validate checks ranges the rest of the program assumes
func (c *Config) Validate() error {
	s := c.Session
	switch {
	case s.ExpectedPlayers < 1:
		return fmt.Errorf("%w: expected_players %d", ErrInvalid, s.ExpectedPlayers)
	case s.CellSize <= 0:
		return fmt.Errorf("%w: cell_size %v", ErrInvalid, s.CellSize)
	case s.TickRate < 1 || s.TickRate > 1000:
		return fmt.Errorf("%w: tick_rate %d", ErrInvalid, s.TickRate)
	case s.MaxStepsPerFrame < 1:
		return fmt.Errorf("%w: max_steps_per_frame %d", ErrInvalid, s.MaxStepsPerFrame)
	case len(s.Spawns) == 0:
		return fmt.Errorf("%w: %w", ErrInvalid, spawn.ErrEmptyPool)
	case c.Network.MaxPeers < 1:
		return fmt.Errorf("%w: max peers %d", ErrInvalid, c.Network.MaxPeers)
	}
	return nil
}

// Step is the fixed simulation step for TickRate
func (s Session) Step() time.Duration {
	return time.Second / time.Duration(s.TickRate)
}

// Pool returns the spawn candidates in file order
func (s Session) Pool() []spawn.Position {
	pool := make([]spawn.Position, len(s.Spawns))
	for i, sp := range s.Spawns {
		pool[i] = spawn.Position{X: sp.X, Y: sp.Y}
	}
	return pool
}

// Selector builds the seeded spawn selector for this session
func (s Session) Selector() (*spawn.Selector, error) {
	return spawn.NewSelector(s.Pool(), spawn.NewRand(s.Seed))
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	return v, ok && v != ""
}

func envError(key, val string, err error) error {
	return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalid, envPrefix, key, val, err)
}
