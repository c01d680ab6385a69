package llm

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaJSON reflects v into an indented JSON schema for inclusion in prompts.
func SchemaJSON(v any) string {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	raw, err := json.MarshalIndent(r.Reflect(v), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}
