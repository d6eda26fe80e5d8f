package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() map[string]any {
	return map[string]any{
		"id":                    "app_3f2b8c1e-2a44-4d7e-9a51-0c6d1f7e9b10",
		"job_title":             "Go Developer",
		"company_name":          "ACME",
		"recipient_email":       "anna@acme.de",
		"recipient_name":        "Anna Schmidt",
		"subject_line":          "Bewerbung als Go Developer",
		"motivation_letter":     "<p>Hallo</p>",
		"application_url":       "https://acme.de/apply",
		"match_score":           8.5,
		"created_at":            "2025-03-01T10:00:00Z",
		"status":                "pending",
		"requires_manual_email": false,
	}
}

func encode(t *testing.T, m map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return b
}

func TestEmbeddedSchemaIsValidJSON(t *testing.T) {
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(QueueApplicationSchema()), &v))
	assert.Equal(t, "QueueApplication", v["title"])
}

func TestValidateQueueApplication(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m map[string]any)
		wantErr bool
		field   string
	}{
		{"valid", func(map[string]any) {}, false, ""},
		{"no email", func(m map[string]any) { delete(m, "recipient_email"); m["requires_manual_email"] = true }, false, ""},
		{"missing letter", func(m map[string]any) { delete(m, "motivation_letter") }, true, "(root)"},
		{"empty title", func(m map[string]any) { m["job_title"] = "" }, true, "job_title"},
		{"bad id prefix", func(m map[string]any) { m["id"] = "job_3f2b8c1e-2a44-4d7e-9a51-0c6d1f7e9b10" }, true, "id"},
		{"score too high", func(m map[string]any) { m["match_score"] = 11 }, true, "match_score"},
		{"unknown status", func(m map[string]any) { m["status"] = "queued" }, true, "status"},
		{"unexpected field", func(m map[string]any) { m["extra"] = 1 }, true, "(root)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(rec)
			err := ValidateQueueApplication(encode(t, rec))
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.NotEmpty(t, ve.Errors)
			assert.Equal(t, tt.field, ve.Errors[0].Field)
		})
	}
}

func TestValidateQueueApplication_NotJSON(t *testing.T) {
	err := ValidateQueueApplication([]byte("{not json"))
	assert.Error(t, err)
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"name":"x"}`))

	err := ValidateJSONString(schema, `{"name":1}`)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Error(), "name")

	err = ValidateJSONString(`{"type": 12}`, `{}`)
	var le *SchemaLoadError
	assert.ErrorAs(t, err, &le)
}
