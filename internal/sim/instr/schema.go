package instr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaURL identifies the instruction document schema. Other schemas refer
// to its definitions, e.g. SchemaURL + "#/$defs/instrs".
const SchemaURL = "https://roomscene.ai/schemas/instrs.schema.json"

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "object": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"enum": ["key", "ball", "box", "door"]},
        "color": {"enum": ["red", "green", "blue", "purple", "yellow", "grey", "", null]},
        "loc": {"enum": ["north", "south", "east", "west", "left", "right", "front", "behind", "", null]},
        "state": {"enum": ["locked", "", null]}
      },
      "additionalProperties": false
    },
    "instr": {
      "type": "object",
      "required": ["action", "object"],
      "properties": {
        "action": {"type": "string", "minLength": 1},
        "object": {"$ref": "#/$defs/object"}
      },
      "additionalProperties": false
    },
    "instrs": {
      "type": "array",
      "items": {"$ref": "#/$defs/instr"}
    }
  },
  "oneOf": [
    {"$ref": "#/$defs/instrs"},
    {
      "type": "object",
      "required": ["instrs"],
      "properties": {"instrs": {"$ref": "#/$defs/instrs"}}
    }
  ]
}`

// AddSchemaResource registers the instruction schema on c so that other
// schemas compiled by c can reference it.
func AddSchemaResource(c *jsonschema.Compiler) error {
	return c.AddResource(SchemaURL, strings.NewReader(schemaJSON))
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := AddSchemaResource(c); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(SchemaURL)
	})
	return schema, schemaErr
}

// Decode parses an instruction document: either a bare JSON array of
// instructions or an object with an "instrs" array. The document is checked
// against the schema before decoding and the result against Validate.
func Decode(raw []byte) ([]Instr, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("instr schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("instrs: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("instrs: %w: %v", ErrInvalid, err)
	}

	var out []Instr
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("instrs: %w", err)
		}
	} else {
		var wrapped struct {
			Instrs []Instr `json:"instrs"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("instrs: %w", err)
		}
		out = wrapped.Instrs
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}
