// Package records defines the entity and world metadata records written as
// gzipped NBT next to the region files.
package records

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"voxelsave.ai/internal/persistence/nbt"
)

const DataVersion int32 = 3955

var ErrMissingField = errors.New("records: missing required field")

type ItemStack struct {
	Slot  int8
	ID    string
	Count int8
}

// EntityRecord is one tracked entity's save file.
type EntityRecord struct {
	ID           uuid.UUID
	Pos          [3]float64
	Yaw, Pitch   float32
	OnGround     bool
	Health       float32
	FallDistance float32
	FoodLevel    int32
	Saturation   float32
	Exhaustion   float32
	Inventory    []ItemStack
	SelectedSlot int32
	GameType     int32
	Dimension    string
	XpLevel      int32
	XpProgress   float32
	XpTotal      int32
	// Metadata holds free-form string attributes.
	Metadata map[string]string
}

func NewEntity(id uuid.UUID) EntityRecord {
	return EntityRecord{
		ID:         id,
		Health:     20,
		FoodLevel:  20,
		Saturation: 5,
		Dimension:  "minecraft:overworld",
	}
}

func boolByte(b bool) nbt.Byte {
	if b {
		return 1
	}
	return 0
}

// uuidInts packs a UUID as four big-endian int32s, most significant first.
func uuidInts(id uuid.UUID) nbt.IntArray {
	out := make(nbt.IntArray, 4)
	for i := 0; i < 4; i++ {
		out[i] = int32(uint32(id[i*4])<<24 | uint32(id[i*4+1])<<16 | uint32(id[i*4+2])<<8 | uint32(id[i*4+3]))
	}
	return out
}

func uuidFromInts(a []int32) (uuid.UUID, bool) {
	var id uuid.UUID
	if len(a) != 4 {
		return id, false
	}
	for i, v := range a {
		u := uint32(v)
		id[i*4], id[i*4+1], id[i*4+2], id[i*4+3] = byte(u>>24), byte(u>>16), byte(u>>8), byte(u)
	}
	return id, true
}

func (e EntityRecord) Compound() *nbt.Compound {
	inv := &nbt.List{Elem: nbt.TagCompound}
	for _, it := range e.Inventory {
		if it.ID == "" || it.Count <= 0 {
			continue
		}
		inv.Append(nbt.NewCompound().
			Set("Slot", nbt.Byte(it.Slot)).
			Set("id", nbt.String(qualify(it.ID))).
			Set("count", nbt.Byte(it.Count)))
	}
	c := nbt.NewCompound().
		Set("DataVersion", nbt.Int(DataVersion)).
		Set("UUID", uuidInts(e.ID)).
		Set("Pos", nbt.NewList(nbt.Double(e.Pos[0]), nbt.Double(e.Pos[1]), nbt.Double(e.Pos[2]))).
		Set("Rotation", nbt.NewList(nbt.Float(e.Yaw), nbt.Float(e.Pitch))).
		Set("OnGround", boolByte(e.OnGround)).
		Set("Health", nbt.Float(e.Health)).
		Set("FallDistance", nbt.Float(e.FallDistance)).
		Set("foodLevel", nbt.Int(e.FoodLevel)).
		Set("foodSaturationLevel", nbt.Float(e.Saturation)).
		Set("foodExhaustionLevel", nbt.Float(e.Exhaustion)).
		Set("Inventory", inv).
		Set("SelectedItemSlot", nbt.Int(e.SelectedSlot)).
		Set("playerGameType", nbt.Int(e.GameType)).
		Set("Dimension", nbt.String(e.Dimension)).
		Set("XpLevel", nbt.Int(e.XpLevel)).
		Set("XpP", nbt.Float(e.XpProgress)).
		Set("XpTotal", nbt.Int(e.XpTotal))
	if len(e.Metadata) > 0 {
		meta := nbt.NewCompound()
		for _, k := range sortedKeys(e.Metadata) {
			meta.Set(k, nbt.String(e.Metadata[k]))
		}
		c.Set("Metadata", meta)
	}
	return c
}

// Marshal returns the uncompressed named-root bytes; the pipeline gzips them.
func (e EntityRecord) Marshal() ([]byte, error) {
	return nbt.Marshal("", e.Compound())
}

// UnmarshalEntity decodes an entity record. Pos, Rotation, Health, foodLevel
// and foodSaturationLevel are required; everything else has a default.
func UnmarshalEntity(data []byte) (EntityRecord, error) {
	_, root, err := nbt.Unmarshal(data)
	if err != nil {
		return EntityRecord{}, err
	}
	return EntityFromCompound(root)
}

func EntityFromCompound(root *nbt.Compound) (EntityRecord, error) {
	var e EntityRecord
	pos, ok := root.List("Pos")
	if !ok || pos.Len() < 3 {
		return e, fmt.Errorf("%w: Pos", ErrMissingField)
	}
	for i := 0; i < 3; i++ {
		it, _ := pos.At(i)
		v, ok := nbt.AsDouble(it)
		if !ok {
			return e, fmt.Errorf("%w: Pos[%d]", ErrMissingField, i)
		}
		e.Pos[i] = v
	}
	rot, ok := root.List("Rotation")
	if !ok || rot.Len() < 2 {
		return e, fmt.Errorf("%w: Rotation", ErrMissingField)
	}
	yaw, _ := rot.At(0)
	pitch, _ := rot.At(1)
	y, ok1 := yaw.(nbt.Float)
	p, ok2 := pitch.(nbt.Float)
	if !ok1 || !ok2 {
		return e, fmt.Errorf("%w: Rotation", ErrMissingField)
	}
	e.Yaw, e.Pitch = float32(y), float32(p)

	if e.Health, ok = root.Float("Health"); !ok {
		return e, fmt.Errorf("%w: Health", ErrMissingField)
	}
	if e.FoodLevel, ok = root.Int("foodLevel"); !ok {
		return e, fmt.Errorf("%w: foodLevel", ErrMissingField)
	}
	if e.Saturation, ok = root.Float("foodSaturationLevel"); !ok {
		return e, fmt.Errorf("%w: foodSaturationLevel", ErrMissingField)
	}

	if ints, ok := root.IntArray("UUID"); ok {
		e.ID, _ = uuidFromInts(ints)
	}
	og, _ := root.Number("OnGround")
	e.OnGround = og != 0
	e.FallDistance, _ = root.Float("FallDistance")
	e.Exhaustion, _ = root.Float("foodExhaustionLevel")
	e.SelectedSlot, _ = root.Int("SelectedItemSlot")
	e.GameType, _ = root.Int("playerGameType")
	if e.GameType < 0 || e.GameType > 3 {
		e.GameType = 0
	}
	e.Dimension = "minecraft:overworld"
	if d, ok := root.String("Dimension"); ok {
		e.Dimension = d
	}
	e.XpLevel, _ = root.Int("XpLevel")
	e.XpProgress, _ = root.Float("XpP")
	e.XpTotal, _ = root.Int("XpTotal")

	inv, _ := root.List("Inventory")
	for i := 0; i < inv.Len(); i++ {
		it, _ := inv.At(i)
		entry, ok := nbt.AsCompound(it)
		if !ok {
			continue
		}
		slot, ok1 := entry.Byte("Slot")
		id, ok2 := entry.String("id")
		if !ok1 || !ok2 {
			continue
		}
		count, ok := entry.Byte("count")
		if !ok {
			count = 1
		}
		e.Inventory = append(e.Inventory, ItemStack{Slot: slot, ID: id, Count: count})
	}

	if meta, ok := root.Compound("Metadata"); ok {
		e.Metadata = make(map[string]string, meta.Len())
		for _, ent := range meta.Entries() {
			if v, ok := nbt.AsString(ent.Value); ok {
				e.Metadata[ent.Name] = v
			}
		}
	}
	return e, nil
}

// Inventory slot numbering differs between the save file and the live
// 46-slot container: hotbar 0-8 is stored first, armor is 100-103 and the
// offhand is -106.
func SlotToIndex(slot int8) (int, bool) {
	switch {
	case slot >= 0 && slot <= 8:
		return int(slot) + 36, true
	case slot >= 9 && slot <= 35:
		return int(slot), true
	case slot >= 100 && slot <= 103:
		return int(slot-100) + 5, true
	case slot == -106:
		return 45, true
	}
	return 0, false
}

func IndexToSlot(idx int) (int8, bool) {
	switch {
	case idx >= 36 && idx <= 44:
		return int8(idx - 36), true
	case idx >= 9 && idx <= 35:
		return int8(idx), true
	case idx >= 5 && idx <= 8:
		return int8(100 + idx - 5), true
	case idx == 45:
		return -106, true
	}
	return 0, false
}
