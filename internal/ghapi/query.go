package ghapi

import (
	"fmt"
	"strings"
	"time"
)

// SearchParams describe one repository search. Qualifier ordering is
// stable so recorded query strings are reproducible.
type SearchParams struct {
	Query           string
	Days            int
	Stars           int
	MaxStars        int // 0 means unbounded
	Language        string
	IncludeForks    bool
	IncludeArchived bool
	InReadme        bool
}

// BuildSearchQuery renders the GitHub search string:
//
//	{query} stars:{lo..hi|>=lo} pushed:>=YYYY-MM-DD archived:{bool}
//	[fork:false] [language:L] [in:readme]
func BuildSearchQuery(p SearchParams, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(p.Query))

	if p.MaxStars > 0 {
		fmt.Fprintf(&sb, " stars:%d..%d", p.Stars, p.MaxStars)
	} else {
		fmt.Fprintf(&sb, " stars:>=%d", p.Stars)
	}

	since := now.AddDate(0, 0, -p.Days)
	fmt.Fprintf(&sb, " pushed:>=%s", since.Format("2006-01-02"))

	fmt.Fprintf(&sb, " archived:%t", p.IncludeArchived)

	if !p.IncludeForks {
		sb.WriteString(" fork:false")
	}
	if p.Language != "" {
		fmt.Fprintf(&sb, " language:%s", p.Language)
	}
	if p.InReadme {
		sb.WriteString(" in:readme")
	}
	return sb.String()
}
