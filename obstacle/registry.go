package obstacle

import (
	"errors"
	"fmt"

	"github.com/lixenwraith/buildrun/codec"
	"github.com/lixenwraith/buildrun/physics"
	"github.com/lixenwraith/buildrun/visual"
)

var (
	// ErrUnregistered reports a type id with no factory, a configuration error
	ErrUnregistered = errors.New("unregistered obstacle type")

	// ErrKindMismatch reports params of a different kind than the factory builds
	ErrKindMismatch = errors.New("obstacle kind mismatch")

	// ErrRegistration reports an out-of-order or duplicate registration
	ErrRegistration = errors.New("invalid factory registration")
)

// Factory constructs one obstacle kind
type Factory interface {
	Kind() Kind
	Decode(r *codec.Reader) Params
	Build(p Params, assets visual.Factory) (*Obstacle, error)
}

// kindFactory adapts a typed decode/build pair to Factory
type kindFactory[P Params] struct {
	kind   Kind
	decode func(*codec.Reader) P
	build  func(P) (*physics.Body, string)
}

func (f kindFactory[P]) Kind() Kind { return f.kind }

func (f kindFactory[P]) Decode(r *codec.Reader) Params { return f.decode(r) }

func (f kindFactory[P]) Build(p Params, assets visual.Factory) (*Obstacle, error) {
	typed, ok := p.(P)
	if !ok {
		return nil, fmt.Errorf("%w: factory builds %s, got %T", ErrKindMismatch, f.kind, p)
	}
	body, asset := f.build(typed)
	ph, err := assets.New(asset)
	if err != nil {
		return nil, err
	}
	ph.RenderX = physics.ToFloat(body.X)
	ph.RenderY = physics.ToFloat(body.Y)
	return &Obstacle{Kind: f.kind, Body: body, Visual: ph, Params: typed}, nil
}

// Registry maps type ids to factories and attaches every product to the world
type Registry struct {
	world     World
	assets    visual.Factory
	factories []Factory
}

// NewRegistry creates an empty registry bound to a world and asset source
func NewRegistry(world World, assets visual.Factory) *Registry {
	return &Registry{world: world, assets: assets}
}

// Register binds the next type id; ids must be registered densely from zero
func (r *Registry) Register(id TypeID, f Factory) error {
	if int(id) != len(r.factories) {
		return fmt.Errorf("%w: id %d registered after %d factories", ErrRegistration, id, len(r.factories))
	}
	r.factories = append(r.factories, f)
	return nil
}

// MustRegister panics on registration errors; registration happens once at session setup
func (r *Registry) MustRegister(id TypeID, f Factory) {
	if err := r.Register(id, f); err != nil {
		panic(err)
	}
}

// Len returns the number of registered factories
func (r *Registry) Len() int { return len(r.factories) }

// TypeOf returns the id registered for a kind
func (r *Registry) TypeOf(k Kind) (TypeID, bool) {
	for i, f := range r.factories {
		if f.Kind() == k {
			return TypeID(i), true
		}
	}
	return 0, false
}

func (r *Registry) factory(id TypeID) (Factory, error) {
	if int(id) >= len(r.factories) {
		return nil, fmt.Errorf("%w: %d", ErrUnregistered, id)
	}
	return r.factories[id], nil
}

// Create builds an obstacle from explicit params and attaches it to the world
func (r *Registry) Create(id TypeID, p Params) (*Obstacle, error) {
	f, err := r.factory(id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.Kind() != f.Kind() {
		return nil, fmt.Errorf("%w: type %d builds %s", ErrKindMismatch, id, f.Kind())
	}
	o, err := f.Build(p, r.assets)
	if err != nil {
		return nil, err
	}
	o.Type = id
	r.world.AddObstacle(o.Body)
	return o, nil
}

// CreateFromBytes decodes params with the id's field order, then behaves as Create
// Short payloads and trailing bytes are both rejected as malformed
func (r *Registry) CreateFromBytes(id TypeID, b []byte) (*Obstacle, error) {
	f, err := r.factory(id)
	if err != nil {
		return nil, err
	}
	rd := codec.NewReader(b)
	p := f.Decode(rd)
	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("decoding %s params: %w", f.Kind(), err)
	}
	if n := rd.Remaining(); n != 0 {
		return nil, fmt.Errorf("decoding %s params: %w: %d trailing bytes", f.Kind(), codec.ErrMalformed, n)
	}
	return r.Create(id, p)
}

// Remove detaches an obstacle's body from the world
func (r *Registry) Remove(o *Obstacle) bool {
	if o == nil {
		return false
	}
	return r.world.RemoveObstacle(o.Body)
}
