package catalogs

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// The atlas config is an ordered yaml mapping:
//
//	grass:
//	  atlas: [0, 0]
//	  name: Grass
//	  size: [1, 1]   # optional
//
// Mapping order decides tile types, so it is read through yaml.Node.
const atlasSchema = `{
  "type": "object",
  "minProperties": 1,
  "propertyNames": {"pattern": "^[a-z][a-z0-9_]*$"},
  "additionalProperties": {
    "type": "object",
    "required": ["atlas", "name"],
    "additionalProperties": false,
    "properties": {
      "atlas": {
        "type": "array",
        "items": {"type": "integer", "minimum": 0},
        "minItems": 2,
        "maxItems": 2
      },
      "size": {
        "type": "array",
        "items": {"type": "integer", "minimum": 1},
        "minItems": 2,
        "maxItems": 2
      },
      "name": {"type": "string", "minLength": 1}
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func atlasValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("atlas.schema.json", atlasSchema)
	})
	return schema, schemaErr
}

type atlasEntry struct {
	Atlas []int  `yaml:"atlas"`
	Size  []int  `yaml:"size"`
	Name  string `yaml:"name"`
}

func parseAtlas(raw []byte) ([]Tile, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("atlas: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("atlas: empty document")
	}
	m := root.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("atlas: top level must be a mapping")
	}

	if err := validateAtlas(m); err != nil {
		return nil, err
	}

	tiles := make([]Tile, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		id := m.Content[i].Value
		var e atlasEntry
		if err := m.Content[i+1].Decode(&e); err != nil {
			return nil, fmt.Errorf("atlas: %s: %w", id, err)
		}
		t := Tile{
			AtlasOffset: Vec2i{X: e.Atlas[0], Y: e.Atlas[1]},
			Size:        Vec2i{X: 1, Y: 1},
			ID:          id,
			DisplayName: e.Name,
		}
		if len(e.Size) == 2 {
			t.Size = Vec2i{X: e.Size[0], Y: e.Size[1]}
		}
		tiles = append(tiles, t)
	}
	return tiles, nil
}

// validateAtlas checks the mapping against atlasSchema. The yaml tree is
// normalized through JSON so the validator only sees JSON value types.
func validateAtlas(m *yaml.Node) error {
	s, err := atlasValidator()
	if err != nil {
		return fmt.Errorf("atlas schema: %w", err)
	}
	var doc map[string]any
	if err := m.Decode(&doc); err != nil {
		return fmt.Errorf("atlas: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("atlas: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("atlas: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("atlas: %w", err)
	}
	return nil
}
