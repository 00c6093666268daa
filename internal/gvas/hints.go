package gvas

import (
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
)

// TypeHints maps dotted property paths (".worldSaveData.X.Key") to the struct
// type used for ambiguous map keys, map values and set elements. The stream
// does not record these types itself.
type TypeHints struct {
	paths map[string]string
}

// NewTypeHints returns a hint table holding a copy of paths.
func NewTypeHints(paths map[string]string) *TypeHints {
	return &TypeHints{paths: maps.Clone(paths)}
}

// Lookup returns the struct type hinted for path.
func (h *TypeHints) Lookup(path string) (string, bool) {
	if h == nil {
		return "", false
	}
	t, ok := h.paths[path]
	return t, ok
}

// Len returns the number of hinted paths.
func (h *TypeHints) Len() int {
	if h == nil {
		return 0
	}
	return len(h.paths)
}

// Merge returns a new table with extra layered over h.
func (h *TypeHints) Merge(extra map[string]string) *TypeHints {
	out := NewTypeHints(nil)
	if out.paths == nil {
		out.paths = make(map[string]string)
	}
	if h != nil {
		maps.Copy(out.paths, h.paths)
	}
	maps.Copy(out.paths, extra)
	return out
}

type hintFile struct {
	Hints map[string]string `yaml:"hints"`
}

// LoadTypeHintsFile reads additional hints from a YAML file of the form
// "hints: {path: StructType}".
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns the parsed path map or a non-nil error.
func LoadTypeHintsFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading type hints %q: %w", path, err)
	}
	var hf hintFile
	if err := yaml.Unmarshal(data, &hf); err != nil {
		return nil, fmt.Errorf("parsing type hints %q: %w", path, err)
	}
	for p, t := range hf.Hints {
		if p == "" || t == "" {
			return nil, fmt.Errorf("type hints %q: empty path or type in entry %q=%q", path, p, t)
		}
	}
	return hf.Hints, nil
}

// PalworldTypeHints returns the hint table for Palworld Level.sav and
// Players/*.sav files.
func PalworldTypeHints() *TypeHints {
	return NewTypeHints(map[string]string{
		".worldSaveData.CharacterContainerSaveData.Key":                                                               "StructProperty",
		".worldSaveData.CharacterContainerSaveData.Value":                                                             "StructProperty",
		".worldSaveData.CharacterSaveParameterMap.Key":                                                                "StructProperty",
		".worldSaveData.CharacterSaveParameterMap.Value":                                                              "StructProperty",
		".worldSaveData.FoliageGridSaveDataMap.Key":                                                                   "StructProperty",
		".worldSaveData.FoliageGridSaveDataMap.Value":                                                                 "StructProperty",
		".worldSaveData.FoliageGridSaveDataMap.Value.ModelMap.Value":                                                  "StructProperty",
		".worldSaveData.FoliageGridSaveDataMap.Value.ModelMap.Value.InstanceDataMap.Key":                              "StructProperty",
		".worldSaveData.FoliageGridSaveDataMap.Value.ModelMap.Value.InstanceDataMap.Value":                            "StructProperty",
		".worldSaveData.ItemContainerSaveData.Key":                                                                    "StructProperty",
		".worldSaveData.ItemContainerSaveData.Value":                                                                  "StructProperty",
		".worldSaveData.DynamicItemSaveData.DynamicItemSaveData.ID":                                                   "StructProperty",
		".worldSaveData.MapObjectSaveData.MapObjectSaveData.ConcreteModel.ModuleMap.Value":                            "StructProperty",
		".worldSaveData.MapObjectSaveData.MapObjectSaveData.Model.EffectMap.Value":                                    "StructProperty",
		".worldSaveData.MapObjectSpawnerInStageSaveData.Key":                                                          "StructProperty",
		".worldSaveData.MapObjectSpawnerInStageSaveData.Value":                                                        "StructProperty",
		".worldSaveData.MapObjectSpawnerInStageSaveData.Value.SpawnerDataMapByLevelObjectInstanceId.Key":              "Guid",
		".worldSaveData.MapObjectSpawnerInStageSaveData.Value.SpawnerDataMapByLevelObjectInstanceId.Value":            "StructProperty",
		".worldSaveData.MapObjectSpawnerInStageSaveData.Value.SpawnerDataMapByLevelObjectInstanceId.Value.ItemMap.Value": "StructProperty",
		".worldSaveData.WorkSaveData.WorkSaveData.WorkAssignMap.Value":                                                "StructProperty",
		".worldSaveData.BaseCampSaveData.Key":                                                                         "Guid",
		".worldSaveData.BaseCampSaveData.Value":                                                                       "StructProperty",
		".worldSaveData.BaseCampSaveData.Value.ModuleMap.Value":                                                       "StructProperty",
		".worldSaveData.GroupSaveDataMap.Key":                                                                         "Guid",
		".worldSaveData.GroupSaveDataMap.Value":                                                                       "StructProperty",
		".worldSaveData.EnemyCampSaveData.EnemyCampStatusMap.Value":                                                   "StructProperty",
		".worldSaveData.DungeonSaveData.DungeonSaveData.MapObjectSaveData.MapObjectSaveData.Model.EffectMap.Value":    "StructProperty",
		".worldSaveData.DungeonSaveData.DungeonSaveData.MapObjectSaveData.MapObjectSaveData.ConcreteModel.ModuleMap.Value": "StructProperty",
		".worldSaveData.InvaderSaveData.Key":                                                                          "Guid",
		".worldSaveData.InvaderSaveData.Value":                                                                        "StructProperty",
		".worldSaveData.OilrigSaveData.OilrigMap.Value":                                                               "StructProperty",
		".worldSaveData.SupplySaveData.SupplyInfos.Key":                                                               "Guid",
		".worldSaveData.SupplySaveData.SupplyInfos.Value":                                                             "StructProperty",
		".worldSaveData.GuildExtraSaveDataMap.Key":                                                                    "Guid",
		".worldSaveData.GuildExtraSaveDataMap.Value":                                                                  "StructProperty",
	})
}
