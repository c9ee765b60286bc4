package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/minutes/models"
)

// RenderMarkdown formats a meeting record as a Markdown report, the
// shape used by the export endpoint and the one-shot CLI.
func RenderMarkdown(r *models.MeetingRecord) string {
	var b strings.Builder

	title := r.Title
	if title == "" {
		title = "Meeting Summary"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_Generated %s_\n\n", r.CreatedAt.Format(time.RFC1123))

	if len(r.Speakers) > 0 {
		fmt.Fprintf(&b, "**Participants:** %s\n\n", strings.Join(r.Speakers, ", "))
	}

	if r.Summary.Executive != "" {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(r.Summary.Executive)
		b.WriteString("\n\n")
	}

	b.WriteString("## Decisions\n\n")
	if len(r.Decisions) == 0 {
		b.WriteString("_No decisions recorded._\n\n")
	}
	for _, d := range r.Decisions {
		fmt.Fprintf(&b, "- %s", d.Description)
		if d.MadeBy != "" {
			fmt.Fprintf(&b, " (by %s)", d.MadeBy)
		}
		writeFlags(&b, d.Confidence, d.PotentialHallucination)
		if d.Rationale != "" {
			fmt.Fprintf(&b, "\n  - Rationale: %s", d.Rationale)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("## Action Items\n\n")
	if len(r.ActionItems) == 0 {
		b.WriteString("_No action items recorded._\n\n")
	}
	for _, a := range r.ActionItems {
		owner := a.Owner
		if owner == "" {
			owner = "Unassigned"
		}
		fmt.Fprintf(&b, "- **%s**: %s", owner, a.Description)
		if a.DueDate != "" {
			fmt.Fprintf(&b, " (due %s)", a.DueDate)
		}
		if a.Priority != "" {
			fmt.Fprintf(&b, " [%s]", a.Priority)
		}
		writeFlags(&b, a.Confidence, a.PotentialHallucination)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("## Risks\n\n")
	if len(r.Risks) == 0 {
		b.WriteString("_No risks recorded._\n\n")
	}
	for _, rk := range r.Risks {
		fmt.Fprintf(&b, "- **[%s]** %s", rk.Category, rk.Description)
		if rk.MentionedBy != "" {
			fmt.Fprintf(&b, " (raised by %s)", rk.MentionedBy)
		}
		writeFlags(&b, rk.Confidence, rk.PotentialHallucination)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(r.QuantFacts) > 0 {
		b.WriteString("## Key Figures\n\n")
		for _, f := range r.QuantFacts {
			fmt.Fprintf(&b, "- %s\n", f.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "Processed in %s using %s. Tokens: %d, estimated cost: $%.4f.\n",
		r.ProcessingTime.Round(time.Millisecond),
		strings.Join(r.ModelsUsed, ", "),
		r.TokensUsed, r.CostEstimate)
	if r.Quality.QualityWarning {
		b.WriteString("\n> Quality warning: output did not meet all quality thresholds.\n")
	}
	return b.String()
}

func writeFlags(b *strings.Builder, confidence float64, hallucination bool) {
	fmt.Fprintf(b, " (confidence %.2f)", confidence)
	if hallucination {
		b.WriteString(" [weakly supported]")
	}
}
