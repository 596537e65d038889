// Package linkextract finds the links hidden in raw chat text.
//
// The URL policy is regex based: a token qualifies when it carries a scheme
// and parses with a host, or when it looks like a bare domain (labels ending
// in an alphabetic TLD), with or without a path. Bare domains are accepted so
// that "discord.gg/xyz" cannot slip through without a scheme; the price is the
// occasional false positive on dotted prose such as "end.of".
package linkextract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var (
	// Chat domains people split with spaces to dodge filters ("discord . gg").
	spacedDomains = []struct {
		pattern   *regexp.Regexp
		canonical string
	}{
		{regexp.MustCompile(`(?i)discord\s*\.\s*gg`), "discord.gg"},
		{regexp.MustCompile(`(?i)twitch\s*\.\s*tv`), "twitch.tv"},
	}

	schemeURL = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.\-]{2,8}://\S+$`)
	bareURL   = regexp.MustCompile(`(?i)^(?:[\w\-.~%!$&'*+,;=:]+@)?(?:[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?\.)+[a-z]{2,63}(?::\d{1,5})?(?:[/?#]\S*)?$`)

	// markdown link (one level of nesting in the label) or any other run of
	// non-space characters
	tokenPattern = regexp.MustCompile(`\[(?:[^\[\]\n]|\[[^\[\]\n]*\]\([^\s()]*\))*\]\([^\s()]*\)|\S+`)

	whitespace = regexp.MustCompile(`\s+`)

	// GIF links the chat client renders natively.
	nativeLink = regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?tenor\.com/view/`)
)

// Coalesce rewrites spaced-out chat domains to their canonical form without
// touching the case of the rest of the text. Unicode spaces and zero-width
// characters become plain spaces first, so they split tokens like ASCII
// whitespace does.
func Coalesce(text string) string {
	text = strings.Map(spaceRune, text)
	for _, d := range spacedDomains {
		text = d.pattern.ReplaceAllString(text, d.canonical)
	}
	return text
}

func spaceRune(r rune) rune {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return ' '
	}
	if r != ' ' && unicode.IsSpace(r) {
		return ' '
	}
	return r
}

// Normalize lower-cases text and coalesces spaced-out chat domains.
func Normalize(text string) string {
	return Coalesce(strings.ToLower(text))
}

// IsEmote reports whether token is custom emote syntax (<:name:id>,
// <a:name:id>) or a :shortcode:.
func IsEmote(token string) bool {
	if (strings.HasPrefix(token, "<:") || strings.HasPrefix(token, "<a:")) && strings.HasSuffix(token, ">") {
		return true
	}
	return len(token) >= 2 && strings.HasPrefix(token, ":") && strings.HasSuffix(token, ":")
}

// IsURL reports whether a single token qualifies as a link.
func IsURL(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" || IsEmote(token) {
		return false
	}
	token = trimPunctuation(token)
	if token == "" || IsEmote(token) {
		return false
	}
	if schemeURL.MatchString(token) {
		u, err := url.Parse(token)
		return err == nil && u.Host != ""
	}
	return bareURL.MatchString(token)
}

// IsPlatformNative reports whether link is platform-native content that is
// never sent to link moderation.
func IsPlatformNative(link string) bool {
	return nativeLink.MatchString(link)
}

// Result holds the links found in a text and the raw tokens they came from.
type Result struct {
	Links  []string
	Tokens []string
}

// Extract scans normalized text and returns every candidate link in order of
// appearance, without duplicates.
func Extract(text string) Result {
	var res Result
	seen := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(Normalize(text), -1) {
		links := tokenLinks(tok)
		if len(links) == 0 {
			continue
		}
		res.Tokens = append(res.Tokens, tok)
		for _, l := range links {
			if !seen[l] {
				seen[l] = true
				res.Links = append(res.Links, l)
			}
		}
	}
	return res
}

// ExtractCandidateLinks returns the candidate links of text.
func ExtractCandidateLinks(text string) []string {
	return Extract(text).Links
}

// Strip removes every token that yields a candidate link from text. Case is
// preserved, spaced-out domains are coalesced and whitespace runs collapse to
// a single space. Stripping is idempotent: the result has no candidates left.
func Strip(text string) string {
	out := tokenPattern.ReplaceAllStringFunc(Coalesce(text), func(tok string) string {
		if len(tokenLinks(strings.ToLower(tok))) > 0 {
			return ""
		}
		return tok
	})
	return whitespace.ReplaceAllString(out, " ")
}

// tokenLinks returns the links a single token stands for. Markdown links are
// unwrapped: the target always counts, the label only when it is a link
// itself. A label with spaces is judged word by word.
func tokenLinks(tok string) []string {
	if label, target, ok := splitMarkdown(tok); ok {
		var links []string
		for _, word := range tokenPattern.FindAllString(label, -1) {
			links = append(links, tokenLinks(word)...)
		}
		if IsURL(target) {
			links = append(links, trimPunctuation(target))
		}
		return links
	}
	if !IsURL(tok) {
		return nil
	}
	return []string{trimPunctuation(tok)}
}

// splitMarkdown splits "[label](target)". The label may itself be markdown,
// so the split happens at the last "](".
func splitMarkdown(tok string) (label, target string, ok bool) {
	if !strings.HasPrefix(tok, "[") || !strings.HasSuffix(tok, ")") {
		return "", "", false
	}
	inner := tok[1 : len(tok)-1]
	i := strings.LastIndex(inner, "](")
	if i < 0 {
		return "", "", false
	}
	return inner[:i], inner[i+2:], true
}

func trimPunctuation(tok string) string {
	tok = strings.TrimLeft(tok, `("'<`)
	for tok != "" {
		last := tok[len(tok)-1]
		switch {
		case strings.IndexByte(`.,;:!?"'>`, last) >= 0:
			tok = tok[:len(tok)-1]
		case last == ')' && strings.Count(tok, "(") < strings.Count(tok, ")"):
			tok = tok[:len(tok)-1]
		default:
			return tok
		}
	}
	return tok
}
