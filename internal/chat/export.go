package chat

import (
	"strings"
)

// ExportTimeFormat is the timestamp layout used by Export.
const ExportTimeFormat = "2006-01-02 15:04:05"

// Export renders turns as plain text, one "[time] ROLE: content" block
// per turn, separated by blank lines.
func Export(turns []Turn) string {
	blocks := make([]string, 0, len(turns))
	for _, t := range turns {
		blocks = append(blocks, "["+t.CreatedAt.Local().Format(ExportTimeFormat)+"] "+
			strings.ToUpper(string(t.Role))+": "+t.Content)
	}
	return strings.Join(blocks, "\n\n")
}

// ExportFileName suggests a file name for an exported conversation.
func ExportFileName(title string, day string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = DefaultTitle
	}
	return "chat-" + name + "-" + day + ".txt"
}
