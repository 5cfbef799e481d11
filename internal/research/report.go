package research

import (
	"fmt"
	"strings"
)

// Markdown renders the report for terminal or file output.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Goal.Statement)
	if r.Goal.Scope != "" {
		fmt.Fprintf(&b, "_Scope: %s_\n\n", r.Goal.Scope)
	}

	degraded := false
	for _, s := range r.Sections {
		if s.GapNote != "" {
			degraded = true
			break
		}
	}
	if degraded {
		b.WriteString("> Note: some objectives returned partial or no results; gaps are marked below.\n\n")
	}

	b.WriteString(r.Body)
	b.WriteString("\n")

	if len(r.Sources) > 0 {
		b.WriteString("\n## Sources\n")
		for _, group := range r.Sources {
			fmt.Fprintf(&b, "\n**%s**\n\n", group.Objective)
			for _, u := range group.URLs {
				fmt.Fprintf(&b, "- %s\n", u)
			}
		}
	}
	return b.String()
}
