package reporting

import (
	"strings"

	"github.com/bullion/compliance-service/internal/domain"
)

const narrativeFooter = "This matter is reported under section 41 of the Anti-Money Laundering and " +
	"Counter-Terrorism Financing Act 2006 (Cth). The customer has not been informed that a " +
	"report has been or will be made."

// BuildNarrative renders the report narrative. The output depends only on
// its inputs so regenerated reports read the same.
func BuildNarrative(category domain.SuspicionCategory, indicators []string, seed string) string {
	var b strings.Builder

	b.WriteString("Suspicion category: ")
	b.WriteString(category.Label())
	b.WriteString("\n\n")

	b.WriteString("Indicators observed:\n")
	if len(indicators) == 0 {
		b.WriteString("- none recorded\n")
	}
	for _, ind := range indicators {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(ind))
		b.WriteString("\n")
	}

	if seed = strings.TrimSpace(seed); seed != "" {
		b.WriteString("\nDetails:\n")
		b.WriteString(seed)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(narrativeFooter)
	return b.String()
}
