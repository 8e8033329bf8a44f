package ghapi

import (
	"testing"
	"time"
)

func TestBuildSearchQuery(t *testing.T) {
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		p    SearchParams
		want string
	}{
		{
			name: "minimum stars only",
			p:    SearchParams{Query: "vector database", Days: 180, Stars: 50},
			want: "vector database stars:>=50 pushed:>=2026-02-25 archived:false fork:false",
		},
		{
			name: "star range",
			p:    SearchParams{Query: "embeddings", Days: 30, Stars: 15, MaxStars: 500},
			want: "embeddings stars:15..500 pushed:>=2026-07-25 archived:false fork:false",
		},
		{
			name: "language and forks",
			p:    SearchParams{Query: "cache", Days: 90, Stars: 10, Language: "Go", IncludeForks: true},
			want: "cache stars:>=10 pushed:>=2026-05-26 archived:false language:Go",
		},
		{
			name: "readme search",
			p:    SearchParams{Query: "similarity search", Days: 180, Stars: 15, InReadme: true},
			want: "similarity search stars:>=15 pushed:>=2026-02-25 archived:false fork:false in:readme",
		},
		{
			name: "query whitespace trimmed",
			p:    SearchParams{Query: "  trimmed  ", Days: 1, Stars: 0},
			want: "trimmed stars:>=0 pushed:>=2026-08-23 archived:false fork:false",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := BuildSearchQuery(c.p, now); got != c.want {
				t.Errorf("BuildSearchQuery = %q\nwant                %q", got, c.want)
			}
		})
	}
}
