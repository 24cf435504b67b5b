package telegram

import (
	"html"
	"regexp"
	"strings"

	"distask/internal/transport"
)

const textLimit = 4000

// escaped form of transport.MentionUser tokens
var mentionToken = regexp.MustCompile(`&lt;@(\d+)&gt;`)

// render turns a message into Telegram HTML. mentionUserID > 0 prefixes a
// mention of that user.
func render(msg transport.Message, mentionUserID int64) string {
	var b strings.Builder
	if mentionUserID > 0 {
		b.WriteString(mention(mentionUserID))
		b.WriteString("\n")
	}
	if msg.Title != "" {
		b.WriteString("<b>" + text(msg.Title) + "</b>\n")
	}
	if msg.Description != "" {
		b.WriteString(text(msg.Description) + "\n")
	}
	for _, f := range msg.Fields {
		b.WriteString("\n")
		if f.Inline {
			b.WriteString("<b>" + text(f.Name) + ":</b> " + text(f.Value) + "\n")
			continue
		}
		b.WriteString("<b>" + text(f.Name) + "</b>\n" + text(f.Value) + "\n")
	}
	if msg.Footer != "" {
		b.WriteString("\n<i>" + text(msg.Footer) + "</i>\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// text escapes s and turns mention tokens into user links.
func text(s string) string {
	return mentionToken.ReplaceAllString(html.EscapeString(s), `<a href="tg://user?id=$1">user $1</a>`)
}

func mention(userID int64) string {
	return text(transport.MentionUser(userID))
}

// splitText splits long messages into chunks Telegram accepts, preferring
// newline boundaries and never cutting inside an HTML tag.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	var out []string
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
			open, closing := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					open = i
				case '>':
					closing = i
				}
			}
			if open > closing && open > start+1 {
				end = open
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
