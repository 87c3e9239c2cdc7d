package narrative

import (
	"fmt"
	"strings"

	"github.com/phrazzld/scry-reports/internal/domain"
)

var titles = map[domain.ReportKind]string{
	domain.ReportKindArtifact:      "Artifact Report",
	domain.ReportKindQuestionnaire: "Questionnaire Report",
}

// Document is the input to Assemble.
type Document struct {
	SN        string
	Kind      domain.ReportKind
	Label     string
	Scores    []domain.FeatureScore
	Narrative string
}

// Assemble renders the Markdown report. It returns an empty string when the
// narrative is blank, which callers treat as a failed report.
func Assemble(d Document) string {
	narrative := strings.TrimSpace(d.Narrative)
	if narrative == "" {
		return ""
	}

	var sb strings.Builder

	title := titles[d.Kind]
	if title == "" {
		title = "Report"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "Report `%s`\n\n", d.SN)
	if d.Label != "" {
		fmt.Fprintf(&sb, "Subject: **%s**\n\n", escape(d.Label))
	}

	if len(d.Scores) > 0 {
		sb.WriteString("## Features\n\n")
		sb.WriteString("| Feature | Score | Level |\n")
		sb.WriteString("|---|---:|---|\n")
		for _, s := range d.Scores {
			name := s.Title
			if name == "" {
				name = s.Name
			}
			fmt.Fprintf(&sb, "| %s | %.0f | %s |\n", escape(name), s.Score, escape(s.Level))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString(narrative)
	sb.WriteString("\n")

	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
