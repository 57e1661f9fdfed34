package protocol

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/world"
	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	configRaw byte = 0
	configLZ4 byte = 1

	// compressAbove is the msgpack size from which the body is lz4 framed.
	compressAbove = 512
	// maxConfigSize bounds the decompressed body.
	maxConfigSize = 8 << 20
)

type wireRecord struct {
	Inhabitable bool       `msgpack:"inhabitable"`
	Position    [3]float32 `msgpack:"position"`
	Velocity    [3]float32 `msgpack:"velocity"`
	Color       [4]float32 `msgpack:"color"`
	Mass        float32    `msgpack:"mass"`
}

type wirePhysics struct {
	Substeps         uint32  `msgpack:"substeps"`
	ZeroG            bool    `msgpack:"zerog"`
	TickNanos        int64   `msgpack:"tick_ns"`
	G                float64 `msgpack:"g"`
	DistanceScale    float64 `msgpack:"distance_scale"`
	ProjectileSpeed  float64 `msgpack:"projectile_speed"`
	ProjectileRadius float64 `msgpack:"projectile_radius"`
	ImpactImpulse    float64 `msgpack:"impact_impulse"`
	Retarget         bool    `msgpack:"retarget"`
}

type wireConfig struct {
	ClientMassMap map[uint64]uint64     `msgpack:"client_mass_map"`
	Physics       wirePhysics           `msgpack:"physics_config"`
	InitData      map[uint64]wireRecord `msgpack:"init_data"`
}

// SetGameConfig replicates the session snapshot.
type SetGameConfig struct {
	Config world.GameConfig
}

func (SetGameConfig) Opcode() byte { return S_SET_GAME_CONFIG }

func (m SetGameConfig) encode(w *packet.Writer) error {
	body, err := marshalConfig(m.Config)
	if err != nil {
		return err
	}
	if len(body) <= compressAbove {
		w.WriteC(configRaw)
		w.WriteBytes(body)
		return nil
	}
	packed, err := compressLZ4(body)
	if err != nil {
		return err
	}
	w.WriteC(configLZ4)
	w.WriteBytes(packed)
	return nil
}

func DecodeSetGameConfig(r *packet.Reader) (SetGameConfig, error) {
	flag := r.ReadC()
	body := r.ReadRest()
	if err := finish(r); err != nil {
		return SetGameConfig{}, err
	}
	switch flag {
	case configRaw:
	case configLZ4:
		var err error
		if body, err = decompressLZ4(body); err != nil {
			return SetGameConfig{}, fmt.Errorf("%w: game config: %v", ErrMalformed, err)
		}
	default:
		return SetGameConfig{}, fmt.Errorf("%w: game config flag %d", ErrMalformed, flag)
	}
	cfg, err := unmarshalConfig(body)
	if err != nil {
		return SetGameConfig{}, fmt.Errorf("%w: game config: %v", ErrMalformed, err)
	}
	return SetGameConfig{Config: cfg}, nil
}

func marshalConfig(cfg world.GameConfig) ([]byte, error) {
	wc := wireConfig{
		ClientMassMap: make(map[uint64]uint64, len(cfg.ClientMassMap)),
		Physics:       toWirePhysics(cfg.Physics),
		InitData:      make(map[uint64]wireRecord, len(cfg.Init)),
	}
	for c, m := range cfg.ClientMassMap {
		wc.ClientMassMap[uint64(c)] = uint64(m)
	}
	for id, rec := range cfg.Init {
		wc.InitData[uint64(id)] = toWireRecord(rec)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&wc); err != nil {
		return nil, fmt.Errorf("msgpack game config: %w", err)
	}
	return buf.Bytes(), nil
}

func unmarshalConfig(body []byte) (world.GameConfig, error) {
	var wc wireConfig
	if err := msgpack.Unmarshal(body, &wc); err != nil {
		return world.GameConfig{}, err
	}
	cfg := world.GameConfig{
		ClientMassMap: make(map[world.ClientID]world.MassID, len(wc.ClientMassMap)),
		Physics:       fromWirePhysics(wc.Physics),
		Init:          make(world.InitData, len(wc.InitData)),
	}
	for c, m := range wc.ClientMassMap {
		cfg.ClientMassMap[world.ClientID(c)] = world.MassID(m)
	}
	for id, rec := range wc.InitData {
		cfg.Init[world.MassID(id)] = fromWireRecord(rec)
	}
	return cfg, nil
}

// WirePrecision returns data rounded exactly as SetGameConfig carries it.
// The server loads this copy so its masses match every client bit for bit.
func WirePrecision(data world.InitData) world.InitData {
	out := make(world.InitData, len(data))
	for id, rec := range data {
		out[id] = fromWireRecord(toWireRecord(rec))
	}
	return out
}

func toWireRecord(rec world.InitRecord) wireRecord {
	return wireRecord{
		Inhabitable: rec.Inhabitable,
		Position:    vec32(rec.Position),
		Velocity:    vec32(rec.Velocity),
		Color:       rec.Color,
		Mass:        float32(rec.Mass),
	}
}

func fromWireRecord(rec wireRecord) world.InitRecord {
	return world.InitRecord{
		Inhabitable: rec.Inhabitable,
		Position:    vec64(rec.Position),
		Velocity:    vec64(rec.Velocity),
		Color:       rec.Color,
		Mass:        float64(rec.Mass),
	}
}

func toWirePhysics(p world.PhysicsSettings) wirePhysics {
	return wirePhysics{
		Substeps:         p.Substeps,
		ZeroG:            p.ZeroGravity,
		TickNanos:        int64(p.TickDt),
		G:                p.G,
		DistanceScale:    p.DistanceScale,
		ProjectileSpeed:  p.ProjectileSpeed,
		ProjectileRadius: p.ProjectileRadius,
		ImpactImpulse:    p.ImpactImpulse,
		Retarget:         p.Retarget,
	}
}

func fromWirePhysics(p wirePhysics) world.PhysicsSettings {
	return world.PhysicsSettings{
		Substeps:         p.Substeps,
		ZeroGravity:      p.ZeroG,
		TickDt:           time.Duration(p.TickNanos),
		G:                p.G,
		DistanceScale:    p.DistanceScale,
		ProjectileSpeed:  p.ProjectileSpeed,
		ProjectileRadius: p.ProjectileRadius,
		ImpactImpulse:    p.ImpactImpulse,
		Retarget:         p.Retarget,
	}
}

func vec32(v mgl64.Vec3) [3]float32 {
	return [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
}

func vec64(v [3]float32) mgl64.Vec3 {
	return mgl64.Vec3{float64(v[0]), float64(v[1]), float64(v[2])}
}

func compressLZ4(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		return nil, fmt.Errorf("lz4 write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressLZ4(src []byte) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(src))
	out, err := io.ReadAll(io.LimitReader(zr, maxConfigSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxConfigSize {
		return nil, fmt.Errorf("decompressed config exceeds %d bytes", maxConfigSize)
	}
	return out, nil
}
