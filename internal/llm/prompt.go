package llm

import (
	"fmt"
	"strings"
)

// OutputSchema describes the JSON object a prompt asks the model to return.
type OutputSchema struct {
	Name        string        // Schema name, e.g. "JobEvaluation"
	Description string        // Task description placed at the top of the prompt
	Fields      []SchemaField // Expected output fields
}

// SchemaField defines a single field in the output object.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint: "string", "number", "{\"key\": number}"
	Description string // Description for the model
	Required    bool
}

// Section is one labelled block of input text.
type Section struct {
	Label string
	Text  string
}

// BuildJSONPrompt constructs a prompt that asks for one JSON object shaped
// like schema, followed by the labelled input sections.
func BuildJSONPrompt(schema OutputSchema, sections ...Section) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "\"string\""
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")
	sb.WriteString("Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n")

	for _, s := range sections {
		sb.WriteString("\n")
		sb.WriteString(s.Label)
		sb.WriteString(":\n\"\"\"\n")
		sb.WriteString(strings.TrimSpace(s.Text))
		sb.WriteString("\n\"\"\"\n")
	}

	return sb.String()
}
