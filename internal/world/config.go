package world

import "time"

// PhysicsSettings is the tuning replicated to clients so they integrate
// exactly like the server. Zero TickDt, Substeps, DistanceScale or
// ProjectileSpeed mean "keep the local value".
type PhysicsSettings struct {
	Substeps    uint32
	ZeroGravity bool
	TickDt      time.Duration // fixed integration step per tick

	G                float64
	DistanceScale    float64
	ProjectileSpeed  float64
	ProjectileRadius float64
	ImpactImpulse    float64
	Retarget         bool // flights follow the absorbing body on target loss
}

// GameConfig is the replicated session snapshot sent to clients.
type GameConfig struct {
	ClientMassMap map[ClientID]MassID
	Physics       PhysicsSettings
	Init          InitData
}
