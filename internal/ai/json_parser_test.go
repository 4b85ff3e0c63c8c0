package ai

import (
	"strings"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "direct", input: `{"displayName": "Anna"}`, want: `{"displayName": "Anna"}`},
		{name: "json fence", input: "```json\n{\"displayName\": \"Anna\"}\n```", want: `{"displayName": "Anna"}`},
		{name: "bare fence", input: "```{\"displayName\": \"Anna\"}```", want: `{"displayName": "Anna"}`},
		{name: "trailing comma", input: `{"beats": ["politics", "tech",],}`, want: `{"beats": ["politics", "tech"]}`},
		{name: "unquoted keys", input: `{displayName: "Anna"}`, want: `{"displayName": "Anna"}`},
		{name: "comment line", input: "{\n// merged\n\"displayName\": \"Anna\"\n}", want: "{\n\n\"displayName\": \"Anna\"\n}"},
		{name: "surrounded by prose", input: `Sure! {"displayName": "O'Neill"} Hope this helps.`, want: `{"displayName": "O'Neill"}`},
		{name: "url values survive", input: `{"website": "https://x.de/a"}`, want: `{"website": "https://x.de/a"}`},
		{name: "empty", input: "  ", wantErr: true},
		{name: "array is not an object", input: `[{"displayName": "Anna"}]`, want: `{"displayName": "Anna"}`},
		{name: "no json", input: "I cannot help with that.", wantErr: true},
		{name: "too large", input: "{" + strings.Repeat(" ", maxResponseSize) + "}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONObject(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("extractJSONObject() = %s, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSONObject() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("extractJSONObject() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeMergedRecord(t *testing.T) {
	data, err := decodeMergedRecord([]byte(`{"displayName": "Acme GmbH", "officialName": "Acme Medien GmbH", "hasMediaProfile": true}`))
	if err != nil {
		t.Fatalf("decodeMergedRecord() error = %v", err)
	}
	if data.OfficialName != "Acme Medien GmbH" || !data.HasMediaProfile {
		t.Errorf("decodeMergedRecord() = %+v", data)
	}

	for _, bad := range []string{`{}`, `{"displayName": 3}`, `{"phones": [{"type": "work"}], "displayName": "A"}`} {
		if _, err := decodeMergedRecord([]byte(bad)); err == nil {
			t.Errorf("decodeMergedRecord(%s) expected schema error", bad)
		}
	}
}
