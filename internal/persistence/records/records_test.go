package records

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"voxelsave.ai/internal/persistence/nbt"
)

func TestEntityRoundTrip(t *testing.T) {
	e := NewEntity(uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff"))
	e.Pos = [3]float64{1.5, -59, 2.25}
	e.Yaw, e.Pitch = 90, -12.5
	e.OnGround = true
	e.Exhaustion = 0.75
	e.SelectedSlot = 3
	e.GameType = 1
	e.XpLevel, e.XpProgress, e.XpTotal = 4, 0.5, 60
	e.Inventory = []ItemStack{
		{Slot: 0, ID: "stone", Count: 64},
		{Slot: 100, ID: "minecraft:iron_boots", Count: 1},
		{Slot: -106, ID: "minecraft:shield", Count: 1},
	}
	e.Metadata = map[string]string{"team": "red", "note": "hi"}

	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := UnmarshalEntity(data)
	if err != nil {
		t.Fatalf("UnmarshalEntity: %v", err)
	}
	e.Inventory[0].ID = "minecraft:stone"
	if !reflect.DeepEqual(got, e) {
		t.Fatalf("round trip:\n got=%+v\nwant=%+v", got, e)
	}
}

func TestEntityDefaultsAndRequired(t *testing.T) {
	root := nbt.NewCompound().
		Set("Pos", nbt.NewList(nbt.Double(0), nbt.Double(64), nbt.Double(0))).
		Set("Rotation", nbt.NewList(nbt.Float(0), nbt.Float(0))).
		Set("Health", nbt.Float(18)).
		Set("foodLevel", nbt.Int(17)).
		Set("foodSaturationLevel", nbt.Float(1)).
		Set("playerGameType", nbt.Int(9))
	e, err := EntityFromCompound(root)
	if err != nil {
		t.Fatalf("EntityFromCompound: %v", err)
	}
	if e.Dimension != "minecraft:overworld" || e.GameType != 0 || e.FallDistance != 0 {
		t.Fatalf("defaults: %+v", e)
	}

	root.Delete("Health")
	if _, err := EntityFromCompound(root); !errors.Is(err, ErrMissingField) {
		t.Fatalf("missing Health: got=%v", err)
	}
}

func TestSlotMapping(t *testing.T) {
	for _, slot := range []int8{0, 8, 9, 35, 100, 103, -106} {
		idx, ok := SlotToIndex(slot)
		if !ok {
			t.Fatalf("SlotToIndex(%d) rejected", slot)
		}
		back, ok := IndexToSlot(idx)
		if !ok || back != slot {
			t.Fatalf("slot %d -> %d -> %d", slot, idx, back)
		}
	}
	if _, ok := SlotToIndex(50); ok {
		t.Fatalf("slot 50 should not map")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	m := DefaultMetadata()
	m.LevelName = "test world"
	m.Time, m.DayTime = 123456, 6000
	m.Hardcore = true
	data, err := m.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalMetadata(data)
	if err != nil {
		t.Fatalf("UnmarshalMetadata: %v", err)
	}
	if got != m {
		t.Fatalf("got=%+v want=%+v", got, m)
	}

	partial, _ := nbt.Marshal("", nbt.NewCompound().Set("Data", nbt.NewCompound().
		Set("Time", nbt.Long(5)).Set("DayTime", nbt.Long(6))))
	got, err = UnmarshalMetadata(partial)
	if err != nil {
		t.Fatal(err)
	}
	if got.Time != 5 || got.SpawnY != -59 || got.VersionID != 767 {
		t.Fatalf("partial: %+v", got)
	}

	missing, _ := nbt.Marshal("", nbt.NewCompound().Set("Data", nbt.NewCompound()))
	if _, err := UnmarshalMetadata(missing); !errors.Is(err, ErrMissingField) {
		t.Fatalf("missing Time: got=%v", err)
	}
}
