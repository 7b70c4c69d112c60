// Package markdown turns Markdown sources into plain text suitable for
// line-oriented stages.
package markdown

import (
	"bytes"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"golang.org/x/net/html"
)

// ToHTML renders Markdown to HTML with the common extensions enabled.
func ToHTML(md []byte) string {
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Attributes)
	return string(markdown.Render(p.Parse(md), renderer))
}

// ToPlainText renders Markdown and strips the markup. Each block element
// ends up on its own line; inline formatting is dropped.
func ToPlainText(md []byte) string {
	return StripHTMLTags(ToHTML(md))
}

// blockTags end a line in the plain text output.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "hr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "pre": true, "blockquote": true, "tr": true,
	"table": true, "ul": true, "ol": true,
}

// StripHTMLTags removes tags from HTML, decodes entities and keeps block
// boundaries as newlines. Runs of blank lines collapse to one line break.
func StripHTMLTags(htmlContent string) string {
	var buf bytes.Buffer
	z := html.NewTokenizer(strings.NewReader(htmlContent))

	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapse(buf.String())
		case html.TextToken:
			buf.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				buf.WriteByte('\n')
			}
		}
	}
}

func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
