package obstacle

import (
	"github.com/lixenwraith/buildrun/physics"
)

// RegisterDefaults registers the built-in kinds in their fixed session order
func RegisterDefaults(r *Registry) {
	r.MustRegister(TypePlatform, PlatformFactory())
	r.MustRegister(TypeMovingPlatform, MovingPlatformFactory())
	r.MustRegister(TypeTreasure, TreasureFactory())
	r.MustRegister(TypeHazard, HazardFactory())
	r.MustRegister(TypeBoost, BoostFactory())
	r.MustRegister(TypePlayer, PlayerFactory())
}

func PlatformFactory() Factory {
	return kindFactory[PlatformParams]{
		kind:   KindPlatform,
		decode: decodePlatform,
		build: func(p PlatformParams) (*physics.Body, string) {
			switch p.Tag {
			case PlatformArt:
				b := physics.NewBody(physics.ModeSensor, p.X, p.Y, p.W, p.H)
				b.Category, b.Mask = 0, 0
				return b, "platform.art"
			case PlatformKinematic:
				return physics.NewBody(physics.ModeKinematic, p.X, p.Y, p.W, p.H), "platform.kinematic"
			default:
				return physics.NewBody(physics.ModeStatic, p.X, p.Y, p.W, p.H), "platform"
			}
		},
	}
}

func MovingPlatformFactory() Factory {
	return kindFactory[MovingPlatformParams]{
		kind:   KindMovingPlatform,
		decode: decodeMovingPlatform,
		build: func(p MovingPlatformParams) (*physics.Body, string) {
			b := physics.NewBody(physics.ModeKinematic, p.X, p.Y, p.W, p.H)
			b.SetPath(p.EndX, p.EndY, p.Speed)
			return b, "platform.moving"
		},
	}
}

func TreasureFactory() Factory {
	return kindFactory[TreasureParams]{
		kind:   KindTreasure,
		decode: decodeTreasure,
		build: func(p TreasureParams) (*physics.Body, string) {
			b := physics.NewBody(physics.ModeSensor, p.X, p.Y, p.W, p.H)
			b.Category = physics.CategoryPickup
			if p.Taken {
				return b, "treasure.taken"
			}
			return b, "treasure"
		},
	}
}

func HazardFactory() Factory {
	return kindFactory[HazardParams]{
		kind:   KindHazard,
		decode: decodeHazard,
		build: func(p HazardParams) (*physics.Body, string) {
			b := physics.NewBody(physics.ModeSensor, p.X, p.Y, p.W, p.H)
			b.Category = physics.CategoryHazard
			return b, "hazard"
		},
	}
}

func BoostFactory() Factory {
	return kindFactory[BoostParams]{
		kind:   KindBoost,
		decode: decodeBoost,
		build: func(p BoostParams) (*physics.Body, string) {
			b := physics.NewBody(physics.ModeSensor, p.X, p.Y, p.W, p.H)
			b.Category = physics.CategoryPickup
			return b, "boost"
		},
	}
}

func PlayerFactory() Factory {
	return kindFactory[PlayerParams]{
		kind:   KindPlayer,
		decode: decodePlayer,
		build: func(p PlayerParams) (*physics.Body, string) {
			b := physics.NewBody(physics.ModeDynamic, p.X, p.Y, PlayerWidth, PlayerHeight)
			b.Category = physics.CategoryPlayer
			return b, "player." + p.Color.String()
		},
	}
}
