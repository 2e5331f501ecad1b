package render

import (
	"regexp"
	"strings"
)

var (
	headingRe = regexp.MustCompile(`^(#{1,3})\s+(.*)$`)
	bulletRe  = regexp.MustCompile(`^-\s+(.*)$`)
	orderedRe = regexp.MustCompile(`^\d+\.\s+(.*)$`)
	// the input is already escaped, so the marker is &gt;
	quoteRe = regexp.MustCompile(`^&gt;\s?(.*)$`)
	// a table or display math placeholder alone on its line
	blockRe = regexp.MustCompile(`^` + sentinelOpen + `[DT][0-9]+` + sentinelClose + `$`)

	codeRe   = regexp.MustCompile("`([^`\n]+)`")
	boldRe   = regexp.MustCompile(`\*\*([^\s*](?:[^*\n]*[^\s*])?)\*\*`)
	italicRe = regexp.MustCompile(`\*([^\s*](?:[^*\n]*[^\s*])?)\*`)
)

// formatInline applies inline code, bold and italic to escaped text. Code
// spans are set aside first so their contents stay literal.
func formatInline(s string) string {
	if !strings.ContainsAny(s, "`*") {
		return s
	}
	var code []string
	s = codeRe.ReplaceAllStringFunc(s, func(m string) string {
		code = append(code, "<code>"+m[1:len(m)-1]+"</code>")
		return placeholder(kindCode, len(code)-1)
	})
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	s = italicRe.ReplaceAllString(s, "<em>$1</em>")
	return resolve(s, string(kindCode), func(_ byte, i int) string {
		return code[i]
	})
}

type formatter struct {
	b     strings.Builder
	para  []string
	quote []string
	list  string
}

// Format turns escaped Markdown prose into HTML blocks: headings (#, ##,
// ###), "- " and "1. " lists, "> " blockquotes and blank-line separated
// paragraphs, with inline formatting inside each. A table or display math
// placeholder on a line of its own is emitted as a block of its own.
func Format(text string) string {
	var f formatter
	for _, line := range strings.Split(text, "\n") {
		f.line(strings.TrimRight(line, " \t\r"))
	}
	f.flush()
	return f.b.String()
}

func (f *formatter) line(l string) {
	trimmed := strings.TrimSpace(l)
	if trimmed == "" {
		f.flush()
		return
	}

	if blockRe.MatchString(trimmed) {
		f.flush()
		f.b.WriteString(trimmed)
		f.b.WriteString("\n")
		return
	}

	if m := headingRe.FindStringSubmatch(trimmed); m != nil {
		f.flush()
		tag := "h" + string(rune('0'+len(m[1])))
		f.b.WriteString("<" + tag + ">" + formatInline(m[2]) + "</" + tag + ">\n")
		return
	}

	if m := bulletRe.FindStringSubmatch(trimmed); m != nil {
		f.item("ul", m[1])
		return
	}
	if m := orderedRe.FindStringSubmatch(trimmed); m != nil {
		f.item("ol", m[1])
		return
	}

	if m := quoteRe.FindStringSubmatch(trimmed); m != nil {
		if f.quote == nil {
			f.flush()
		}
		f.quote = append(f.quote, m[1])
		return
	}

	if f.list != "" || f.quote != nil {
		f.flush()
	}
	f.para = append(f.para, trimmed)
}

func (f *formatter) item(list, text string) {
	if f.list != list {
		f.flush()
		f.list = list
		f.b.WriteString("<" + list + ">\n")
	}
	f.b.WriteString("<li>" + formatInline(text) + "</li>\n")
}

func (f *formatter) flush() {
	if len(f.para) > 0 {
		f.b.WriteString("<p>" + formatInline(strings.Join(f.para, "\n")) + "</p>\n")
		f.para = nil
	}
	if f.list != "" {
		f.b.WriteString("</" + f.list + ">\n")
		f.list = ""
	}
	if f.quote != nil {
		f.b.WriteString("<blockquote><p>" + formatInline(strings.Join(f.quote, "\n")) + "</p></blockquote>\n")
		f.quote = nil
	}
}
