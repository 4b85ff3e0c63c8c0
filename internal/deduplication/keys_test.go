package deduplication

import (
	"testing"

	"github.com/prlibrary/matching/internal/types"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Anna Schmidt", "anna-schmidt"},
		{"  Jürgen   Müller ", "jurgen-muller"},
		{"Hans-Peter O'Neill", "hans-peter-o-neill"},
		{"Großmann", "grossmann"},
		{"François Hollande!", "francois-hollande"},
		{"---", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContactKey(t *testing.T) {
	tests := []struct {
		name string
		data types.ContactData
		want string
	}{
		{
			name: "primary email wins",
			data: types.ContactData{FirstName: "Anna", Emails: []types.Email{{Address: "a@x.de"}, {Address: " B@X.de ", Primary: true}}},
			want: "b@x.de",
		},
		{
			name: "first email without primary",
			data: types.ContactData{Emails: []types.Email{{Address: "A@x.de"}}},
			want: "a@x.de",
		},
		{
			name: "name fallback",
			data: types.ContactData{FirstName: "Zoë", LastName: "Weiß"},
			want: "zoe-weiss",
		},
		{
			name: "display name fallback",
			data: types.ContactData{DisplayName: "Redaktion Politik"},
			want: "redaktion-politik",
		},
		{name: "nothing to key on", data: types.ContactData{}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContactKey(tt.data); got != tt.want {
				t.Errorf("ContactKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompanyKey(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"Acme GmbH", "acme"},
		{"ACME  Media & Co. KG", "acme media"},
		{"Spiegel Verlag", "spiegel verlag"},
		{"", ""},
	}
	for _, tt := range tests {
		got := CompanyKey(types.ContactData{DisplayName: tt.name})
		if got != tt.want {
			t.Errorf("CompanyKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPublicationKey(t *testing.T) {
	tests := []struct {
		name string
		pub  types.Publication
		want string
	}{
		{"website host", types.Publication{Title: "taz", Website: "https://www.taz.de/politik"}, "taz.de"},
		{"website without scheme", types.Publication{Website: "Zeit.de"}, "zeit.de"},
		{"title fallback", types.Publication{Title: "Die Tageszeitung"}, "die-tageszeitung"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PublicationKey(&tt.pub); got != tt.want {
				t.Errorf("PublicationKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
