package investigation

import "strings"

// BotPolicy decides which commenter identities are automated actors.
type BotPolicy struct {
	Suffix string
	Logins []string
}

// DefaultBotSuffix is the login suffix GitHub gives to app accounts.
const DefaultBotSuffix = "[bot]"

// IsBot reports whether identity belongs to an automated account. Matching
// is case-insensitive.
func (p BotPolicy) IsBot(identity string) bool {
	login := strings.ToLower(strings.TrimSpace(identity))
	if login == "" {
		return false
	}

	suffix := strings.ToLower(strings.TrimSpace(p.Suffix))
	if suffix == "" {
		suffix = DefaultBotSuffix
	}
	if strings.HasSuffix(login, suffix) {
		return true
	}

	for _, candidate := range p.Logins {
		if strings.ToLower(strings.TrimSpace(candidate)) == login {
			return true
		}
	}
	return false
}
