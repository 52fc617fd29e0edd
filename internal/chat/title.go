package chat

// MaxTitleLength is the number of characters kept from the first user
// message when deriving a conversation title.
const MaxTitleLength = 50

// DeriveTitle returns the title for a conversation whose first user
// message is content.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= MaxTitleLength {
		return content
	}
	return string(runes[:MaxTitleLength]) + "..."
}
