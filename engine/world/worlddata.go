package world

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gorealm/gorealm/engine/common"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// WorldType is the type of a map template
type WorldType int

const (
	// Open worlds have one global context shared by everyone
	Open WorldType = iota
	// Dungeon worlds are instanced per party
	Dungeon
	// QuestDungeon worlds are instanced per party and can not be left into another dungeon
	QuestDungeon
)

var worldTypeNames = [...]string{
	Open:         "open",
	Dungeon:      "dungeon",
	QuestDungeon: "quest_dungeon",
}

func (t WorldType) String() string {
	if int(t) >= 0 && int(t) < len(worldTypeNames) {
		return worldTypeNames[t]
	}
	return fmt.Sprintf("WorldType(%d)", int(t))
}

// IsDungeon returns if contexts of the type are party-scoped instances
func (t WorldType) IsDungeon() bool {
	return t == Dungeon || t == QuestDungeon
}

// UnmarshalYAML reads the type from its name
func (t *WorldType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	for i, name := range worldTypeNames {
		if strings.EqualFold(s, name) {
			*t = WorldType(i)
			return nil
		}
	}
	return errors.Errorf("line %d: unknown world type %q", value.Line, s)
}

// WorldData is the immutable template of a map, shared by all contexts instantiated from it
type WorldData struct {
	WorldIndex     uint8     `yaml:"index"`
	Type           WorldType `yaml:"type"`
	Capacity       int       `yaml:"capacity"`
	Name           string    `yaml:"name"`
	DungeonIndices []int     `yaml:"dungeons"`
}

// HasDungeon returns if the dungeon variant can be instantiated on this world; worlds without a dungeon list accept any
func (wd *WorldData) HasDungeon(dungeonIndex int) bool {
	if len(wd.DungeonIndices) == 0 {
		return dungeonIndex >= 0
	}
	for _, di := range wd.DungeonIndices {
		if di == dungeonIndex {
			return true
		}
	}
	return false
}

func (wd *WorldData) String() string {
	return fmt.Sprintf("WorldData<%d|%s|%s>", wd.WorldIndex, wd.Type, wd.Name)
}

type worldDataFile struct {
	Worlds []*WorldData `yaml:"worlds"`
}

// WorldTable holds all map templates by world index
type WorldTable struct {
	worlds map[uint8]*WorldData
}

// Get returns the template of the world index, nil if not found
func (t *WorldTable) Get(worldIndex uint8) *WorldData {
	return t.worlds[worldIndex]
}

// Count returns the number of templates
func (t *WorldTable) Count() int {
	return len(t.worlds)
}

// Indices returns all world indices in ascending order
func (t *WorldTable) Indices() []uint8 {
	res := make([]uint8, 0, len(t.worlds))
	for idx := range t.worlds {
		res = append(res, idx)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i] < res[j]
	})
	return res
}

// LoadWorldData loads the map templates from a YAML file
func LoadWorldData(path string) (*WorldTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(common.ErrExternalDependency, "read world data: %v", err)
	}
	return ParseWorldData(raw)
}

// ParseWorldData parses YAML map templates
func ParseWorldData(raw []byte) (*WorldTable, error) {
	var f worldDataFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse world data")
	}
	t := &WorldTable{worlds: make(map[uint8]*WorldData, len(f.Worlds))}
	for _, wd := range f.Worlds {
		if wd.WorldIndex == 0 {
			return nil, errors.Errorf("world %q has no index", wd.Name)
		}
		if _, ok := t.worlds[wd.WorldIndex]; ok {
			return nil, errors.Errorf("duplicate world index %d", wd.WorldIndex)
		}
		t.worlds[wd.WorldIndex] = wd
	}
	return t, nil
}
