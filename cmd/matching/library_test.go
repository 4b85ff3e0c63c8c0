package main

import (
	"reflect"
	"testing"
)

func TestParseOverrides(t *testing.T) {
	tests := []struct {
		name    string
		sets    []string
		want    map[string]string
		wantErr bool
	}{
		{name: "none", sets: nil, want: nil},
		{name: "value with equals sign", sets: []string{"website=https://a.de/?x=1"}, want: map[string]string{"website": "https://a.de/?x=1"}},
		{name: "trimmed field, empty value", sets: []string{" phone =", "position=Autorin"}, want: map[string]string{"phone": "", "position": "Autorin"}},
		{name: "missing equals sign", sets: []string{"position"}, wantErr: true},
		{name: "empty field", sets: []string{"=x"}, wantErr: true},
		{name: "duplicate field", sets: []string{"email=a@b.de", "email=c@d.de"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOverrides(tt.sets)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOverrides() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseOverrides() = %v, want %v", got, tt.want)
			}
		})
	}
}
