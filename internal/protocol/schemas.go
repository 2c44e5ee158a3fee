package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"roomscene.ai/internal/sim/instr"
)

const (
	HelloSchemaURL    = "https://roomscene.ai/schemas/hello.schema.json"
	GenerateSchemaURL = "https://roomscene.ai/schemas/generate.schema.json"
)

const helloSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "protocol_version"],
  "properties": {
    "type": {"const": "HELLO"},
    "protocol_version": {"type": "string"},
    "client_name": {"type": "string", "maxLength": 64},
    "max_queue": {"type": "integer", "minimum": 0, "maximum": 64}
  }
}`

const generateSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "protocol_version", "id", "seed", "instrs"],
  "properties": {
    "type": {"const": "GENERATE"},
    "protocol_version": {"type": "string"},
    "id": {"type": "string", "minLength": 1, "maxLength": 128},
    "seed": {"type": "integer"},
    "max_steps": {"type": "integer", "minimum": 0},
    "distractors": {"type": "boolean"},
    "instrs": {"$ref": "` + instr.SchemaURL + `#/$defs/instrs"}
  },
  "additionalProperties": false
}`

type schemaSet struct {
	hello    *jsonschema.Schema
	generate *jsonschema.Schema
}

var (
	schemasOnce sync.Once
	schemas     schemaSet
	schemasErr  error
)

func compileSchemas() (schemaSet, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := instr.AddSchemaResource(c); err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(HelloSchemaURL, strings.NewReader(helloSchemaJSON)); err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(GenerateSchemaURL, strings.NewReader(generateSchemaJSON)); err != nil {
			schemasErr = err
			return
		}
		if schemas.hello, schemasErr = c.Compile(HelloSchemaURL); schemasErr != nil {
			return
		}
		schemas.generate, schemasErr = c.Compile(GenerateSchemaURL)
	})
	return schemas, schemasErr
}

func validate(s *jsonschema.Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

// DecodeHello validates raw against the HELLO schema and decodes it.
func DecodeHello(raw []byte) (HelloMsg, error) {
	var m HelloMsg
	set, err := compileSchemas()
	if err != nil {
		return m, fmt.Errorf("protocol schemas: %w", err)
	}
	if err := validate(set.hello, raw); err != nil {
		return m, fmt.Errorf("hello: %w", err)
	}
	err = json.Unmarshal(raw, &m)
	return m, err
}

// DecodeGenerate validates raw against the GENERATE schema and decodes it.
func DecodeGenerate(raw []byte) (GenerateMsg, error) {
	var m GenerateMsg
	set, err := compileSchemas()
	if err != nil {
		return m, fmt.Errorf("protocol schemas: %w", err)
	}
	if err := validate(set.generate, raw); err != nil {
		return m, fmt.Errorf("generate: %w", err)
	}
	err = json.Unmarshal(raw, &m)
	return m, err
}
