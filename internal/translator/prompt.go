package translator

import (
	"fmt"
	"sort"
	"strings"
)

func languageName(code, fallback string) string {
	if code == "" || code == "auto" {
		return fallback
	}
	return code
}

// systemPrompt builds the instruction text shared by the LLM backends.
// Glossary entries are listed in sorted order so identical requests produce
// identical prompts.
func systemPrompt(req TranslateRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are a professional translator. Translate the user's text from %s to %s.\n",
		languageName(req.SourceLang, "the detected language"), languageName(req.TargetLang, "English"))
	sb.WriteString("Reply with the translation only: no explanations, no quotes, no notes.")

	if req.Instructions != "" {
		sb.WriteString(" ")
		sb.WriteString(req.Instructions)
	}

	if len(req.Glossary) > 0 {
		terms := make([]string, 0, len(req.Glossary))
		for src := range req.Glossary {
			terms = append(terms, src)
		}
		sort.Strings(terms)
		sb.WriteString("\n\nTERMINOLOGY (use these exact translations):\n")
		for _, src := range terms {
			fmt.Fprintf(&sb, "  %s -> %s\n", src, req.Glossary[src])
		}
	}

	if req.Context != "" {
		fmt.Fprintf(&sb, "\n\nPRECEDING TEXT (for continuity only, do not translate):\n...%s", req.Context)
	}

	return sb.String()
}

// completionPrompt is the single-prompt form used by /api/generate style
// endpoints.
func completionPrompt(req TranslateRequest) string {
	return systemPrompt(req) + "\n\nText:\n" + req.Text + "\n\nTranslation:"
}
