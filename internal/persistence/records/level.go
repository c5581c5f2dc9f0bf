package records

import (
	"fmt"
	"sort"
	"strings"

	"voxelsave.ai/internal/persistence/nbt"
)

// WorldMetadata is the level.dat record.
type WorldMetadata struct {
	DataVersion   int32
	LevelName     string
	SpawnX        int32
	SpawnY        int32
	SpawnZ        int32
	Time          int64
	DayTime       int64
	GameType      int32
	Difficulty    int8
	Hardcore      bool
	AllowCommands bool
	VersionName   string
	VersionID     int32
}

func DefaultMetadata() WorldMetadata {
	return WorldMetadata{
		DataVersion:   DataVersion,
		LevelName:     "Voxel World",
		SpawnY:        -59,
		Difficulty:    2,
		AllowCommands: true,
		VersionName:   "1.21.1",
		VersionID:     767,
	}
}

func (m WorldMetadata) Compound() *nbt.Compound {
	data := nbt.NewCompound().
		Set("LevelName", nbt.String(m.LevelName)).
		Set("SpawnX", nbt.Int(m.SpawnX)).
		Set("SpawnY", nbt.Int(m.SpawnY)).
		Set("SpawnZ", nbt.Int(m.SpawnZ)).
		Set("Time", nbt.Long(m.Time)).
		Set("DayTime", nbt.Long(m.DayTime)).
		Set("GameType", nbt.Int(m.GameType)).
		Set("Difficulty", nbt.Byte(m.Difficulty)).
		Set("hardcore", boolByte(m.Hardcore)).
		Set("allowCommands", boolByte(m.AllowCommands)).
		Set("Version", nbt.NewCompound().
			Set("Name", nbt.String(m.VersionName)).
			Set("Id", nbt.Int(m.VersionID)))
	return nbt.NewCompound().
		Set("DataVersion", nbt.Int(m.DataVersion)).
		Set("Data", data)
}

func (m WorldMetadata) Marshal() ([]byte, error) {
	return nbt.Marshal("", m.Compound())
}

// UnmarshalMetadata requires Data.Time and Data.DayTime; other fields fall
// back to DefaultMetadata.
func UnmarshalMetadata(raw []byte) (WorldMetadata, error) {
	m := DefaultMetadata()
	_, root, err := nbt.Unmarshal(raw)
	if err != nil {
		return m, err
	}
	data, ok := root.Compound("Data")
	if !ok {
		return m, fmt.Errorf("%w: Data", ErrMissingField)
	}
	if m.Time, ok = data.Long("Time"); !ok {
		return m, fmt.Errorf("%w: Data.Time", ErrMissingField)
	}
	if m.DayTime, ok = data.Long("DayTime"); !ok {
		return m, fmt.Errorf("%w: Data.DayTime", ErrMissingField)
	}
	if v, ok := root.Int("DataVersion"); ok {
		m.DataVersion = v
	}
	if v, ok := data.String("LevelName"); ok {
		m.LevelName = v
	}
	if v, ok := data.Int("SpawnX"); ok {
		m.SpawnX = v
	}
	if v, ok := data.Int("SpawnY"); ok {
		m.SpawnY = v
	}
	if v, ok := data.Int("SpawnZ"); ok {
		m.SpawnZ = v
	}
	if v, ok := data.Int("GameType"); ok {
		m.GameType = v
	}
	if v, ok := data.Byte("Difficulty"); ok {
		m.Difficulty = v
	}
	if v, ok := data.Number("hardcore"); ok {
		m.Hardcore = v != 0
	}
	if v, ok := data.Number("allowCommands"); ok {
		m.AllowCommands = v != 0
	}
	if ver, ok := data.Compound("Version"); ok {
		if v, ok := ver.String("Name"); ok {
			m.VersionName = v
		}
		if v, ok := ver.Int("Id"); ok {
			m.VersionID = v
		}
	}
	return m, nil
}

func qualify(id string) string {
	if strings.Contains(id, ":") {
		return id
	}
	return "minecraft:" + id
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
