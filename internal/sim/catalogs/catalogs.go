package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Namespace prefixes every block name stored on disk.
const Namespace = "minecraft:"

// Block state ids of the built-in registry.
const (
	AirID         int32 = 0
	StoneID       int32 = 1
	GrassBlockID  int32 = 9
	DirtID        int32 = 10
	BedrockID     int32 = 79
	GoldOreID     int32 = 123
	IronOreID     int32 = 125
	CoalOreID     int32 = 127
	GravelID      int32 = 118
	LapisOreID    int32 = 520
	DiamondOreID  int32 = 4274
	RedstoneOreID int32 = 5735
	EmeraldOreID  int32 = 7511
	CopperOreID   int32 = 22942
)

type BlockState struct {
	ID         int32             `json:"id"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
	Default    bool              `json:"default,omitempty"`
}

// BlockRegistry maps block state ids to (name, properties) and back.
type BlockRegistry struct {
	States []BlockState
	ByID   map[int32]BlockState
	Digest string

	byKey     map[string]int32
	defaultOf map[string]int32
}

var blockSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["id", "name"],
    "additionalProperties": false,
    "properties": {
      "id": {"type": "integer", "minimum": 0},
      "name": {"type": "string", "minLength": 1},
      "default": {"type": "boolean"},
      "properties": {
        "type": "object",
        "additionalProperties": {"type": "string"}
      }
    }
  }
}`

// LoadBlocks reads a blocks.json registry and validates it against the
// embedded schema. Air (id 0) must be present.
func LoadBlocks(path string) (*BlockRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	schema, err := jsonschema.CompileString("blocks.schema.json", blockSchema)
	if err != nil {
		return nil, fmt.Errorf("blocks schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}

	var states []BlockState
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&states); err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}
	reg, err := NewBlockRegistry(states)
	if err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}
	reg.Digest = sha256Hex(raw)
	return reg, nil
}

// NewBlockRegistry indexes states. The first state of each block name is its
// default unless another state sets Default.
func NewBlockRegistry(states []BlockState) (*BlockRegistry, error) {
	r := &BlockRegistry{
		ByID:      make(map[int32]BlockState, len(states)),
		byKey:     make(map[string]int32, len(states)),
		defaultOf: map[string]int32{},
	}
	for _, s := range states {
		s.Name = QualifyName(s.Name)
		if _, dup := r.ByID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate state id %d", s.ID)
		}
		k := stateKey(s.Name, s.Properties)
		if _, dup := r.byKey[k]; dup {
			return nil, fmt.Errorf("duplicate state %s", k)
		}
		r.ByID[s.ID] = s
		r.byKey[k] = s.ID
		if _, ok := r.defaultOf[s.Name]; !ok || s.Default {
			r.defaultOf[s.Name] = s.ID
		}
		r.States = append(r.States, s)
	}
	air, ok := r.ByID[AirID]
	if !ok || air.Name != Namespace+"air" {
		return nil, fmt.Errorf("missing minecraft:air as state 0")
	}
	sort.Slice(r.States, func(i, j int) bool { return r.States[i].ID < r.States[j].ID })
	if r.Digest == "" {
		b, _ := json.Marshal(r.States)
		r.Digest = sha256Hex(b)
	}
	return r, nil
}

// DefaultBlocks is the registry of the states the flat generator places.
func DefaultBlocks() *BlockRegistry {
	r, err := NewBlockRegistry([]BlockState{
		{ID: AirID, Name: "minecraft:air"},
		{ID: StoneID, Name: "minecraft:stone"},
		{ID: 8, Name: "minecraft:grass_block", Properties: map[string]string{"snowy": "true"}},
		{ID: GrassBlockID, Name: "minecraft:grass_block", Properties: map[string]string{"snowy": "false"}, Default: true},
		{ID: DirtID, Name: "minecraft:dirt"},
		{ID: BedrockID, Name: "minecraft:bedrock"},
		{ID: GravelID, Name: "minecraft:gravel"},
		{ID: GoldOreID, Name: "minecraft:gold_ore"},
		{ID: IronOreID, Name: "minecraft:iron_ore"},
		{ID: CoalOreID, Name: "minecraft:coal_ore"},
		{ID: LapisOreID, Name: "minecraft:lapis_ore"},
		{ID: DiamondOreID, Name: "minecraft:diamond_ore"},
		{ID: 5734, Name: "minecraft:redstone_ore", Properties: map[string]string{"lit": "true"}},
		{ID: RedstoneOreID, Name: "minecraft:redstone_ore", Properties: map[string]string{"lit": "false"}, Default: true},
		{ID: EmeraldOreID, Name: "minecraft:emerald_ore"},
		{ID: CopperOreID, Name: "minecraft:copper_ore"},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the state for id.
func (r *BlockRegistry) Lookup(id int32) (BlockState, bool) {
	s, ok := r.ByID[id]
	return s, ok
}

// Resolve maps a name and property set to a state id: the exact state, else
// the block's default state, else air. Unprefixed names are qualified first.
func (r *BlockRegistry) Resolve(name string, props map[string]string) (int32, bool) {
	name = QualifyName(name)
	if id, ok := r.byKey[stateKey(name, props)]; ok {
		return id, true
	}
	if id, ok := r.defaultOf[name]; ok {
		return id, true
	}
	return AirID, false
}

func (r *BlockRegistry) Len() int { return len(r.States) }

// QualifyName adds the minecraft: namespace to a bare block name.
func QualifyName(name string) string {
	if strings.Contains(name, ":") {
		return name
	}
	return Namespace + name
}

func stateKey(name string, props map[string]string) string {
	if len(props) == 0 {
		return name
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(props[k])
	}
	b.WriteByte(']')
	return b.String()
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
