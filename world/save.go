package world

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pthm-cable/bastion/components"
	"github.com/pthm-cable/bastion/entity"
)

// ErrIncompatibleSave is returned when a save does not fit this world.
var ErrIncompatibleSave = errors.New("world: incompatible save")

const saveVersion = 1

type saveHeader struct {
	Version int    `msgpack:"v"`
	Width   int    `msgpack:"w"`
	Height  int    `msgpack:"h"`
	Tick    uint64 `msgpack:"t"`
}

// tileRecord is one placed block. State holds whatever the tile entity wrote.
type tileRecord struct {
	X     int32           `msgpack:"x"`
	Y     int32           `msgpack:"y"`
	Block string          `msgpack:"b"`
	Team  components.Team `msgpack:"team"`
	State []byte          `msgpack:"s,omitempty"`
}

// Save writes placed blocks, their persistable state and all units as an
// lz4-compressed msgpack stream.
func (w *World) Save(out io.Writer) error {
	zw := lz4.NewWriter(out)
	enc := msgpack.NewEncoder(zw)

	tiles := make([]tileRecord, 0, len(w.placed))
	for _, t := range w.placed {
		rec := tileRecord{X: t.X, Y: t.Y, Block: t.Block.Name(), Team: t.Team}
		if t.Entity != nil {
			state, err := EncodeState(t.Entity)
			if err != nil {
				return fmt.Errorf("saving %s: %w", t, err)
			}
			rec.State = state
		}
		tiles = append(tiles, rec)
	}

	units := make([]entity.Spec, 0, w.units.Count())
	for e := range w.units.All() {
		units = append(units, w.units.Spec(e))
	}

	header := saveHeader{Version: saveVersion, Width: w.width, Height: w.height, Tick: w.tick}
	for _, v := range []any{header, tiles, units} {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding save: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing save: %w", err)
	}
	return nil
}

// Load replaces the world's contents with a stream written by Save.
// Blocks are placed in saved order before any tile state is restored, so
// state that refers to other tiles resolves. The layout is checked before
// the world is cleared, so a malformed save leaves the world untouched; a
// tile state that fails to decode leaves it empty.
func (w *World) Load(in io.Reader) error {
	dec := msgpack.NewDecoder(lz4.NewReader(in))

	var header saveHeader
	if err := dec.Decode(&header); err != nil {
		return fmt.Errorf("decoding save header: %w", err)
	}
	if header.Version != saveVersion {
		return fmt.Errorf("%w: version %d", ErrIncompatibleSave, header.Version)
	}
	if header.Width != w.width || header.Height != w.height {
		return fmt.Errorf("%w: size %dx%d, world is %dx%d", ErrIncompatibleSave, header.Width, header.Height, w.width, w.height)
	}

	var tiles []tileRecord
	if err := dec.Decode(&tiles); err != nil {
		return fmt.Errorf("decoding tiles: %w", err)
	}
	var units []entity.Spec
	if err := dec.Decode(&units); err != nil {
		return fmt.Errorf("decoding units: %w", err)
	}

	if err := w.checkLayout(tiles, units); err != nil {
		return err
	}

	w.Clear()
	w.tick = header.Tick
	if err := w.restore(tiles, units); err != nil {
		w.Clear()
		return err
	}
	w.log.Info("world_loaded", "tick", w.tick, "blocks", len(tiles), "units", len(units))
	return nil
}

// EncodeState serializes one tile entity's persistable fields.
func EncodeState(te TileEntity) ([]byte, error) {
	var buf bytes.Buffer
	if err := te.WriteState(msgpack.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeState restores a tile entity from EncodeState output.
func DecodeState(te TileEntity, state []byte) error {
	return te.ReadState(msgpack.NewDecoder(bytes.NewReader(state)))
}

// checkLayout verifies that every saved block resolves and fits an empty
// grid and that unit IDs are unique.
func (w *World) checkLayout(tiles []tileRecord, units []entity.Spec) error {
	covered := make(map[[2]int32]string)
	for _, rec := range tiles {
		b, ok := w.blocks[rec.Block]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownBlock, rec.Block)
		}
		footprint, err := w.covered(rec.X, rec.Y, b.Size())
		if err != nil {
			return fmt.Errorf("restoring %s: %w", rec.Block, err)
		}
		for _, t := range footprint {
			key := [2]int32{t.X, t.Y}
			if other, taken := covered[key]; taken {
				return fmt.Errorf("restoring %s: %w: %s at %d,%d", rec.Block, ErrOccupied, other, t.X, t.Y)
			}
			covered[key] = rec.Block
		}
	}

	ids := make(map[uint32]struct{}, len(units))
	for _, spec := range units {
		if spec.ID == 0 {
			continue
		}
		if _, dup := ids[spec.ID]; dup {
			return fmt.Errorf("restoring unit %d: %w", spec.ID, entity.ErrDuplicateID)
		}
		ids[spec.ID] = struct{}{}
	}
	return nil
}

func (w *World) restore(tiles []tileRecord, units []entity.Spec) error {
	placed := make([]*Tile, len(tiles))
	for i, rec := range tiles {
		t, err := w.Place(w.blocks[rec.Block], rec.X, rec.Y, rec.Team)
		if err != nil {
			return fmt.Errorf("restoring %s: %w", rec.Block, err)
		}
		placed[i] = t
	}
	for i, rec := range tiles {
		t := placed[i]
		if t.Entity == nil || len(rec.State) == 0 {
			continue
		}
		if err := DecodeState(t.Entity, rec.State); err != nil {
			return fmt.Errorf("restoring %s state: %w", t, err)
		}
	}

	for _, spec := range units {
		if _, err := w.units.Add(spec); err != nil {
			return fmt.Errorf("restoring unit %d: %w", spec.ID, err)
		}
	}
	return nil
}
