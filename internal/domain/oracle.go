package domain

import "context"

// ContentKind names the oracle capability a piece of content is sent to.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindLink  ContentKind = "link"
	KindImage ContentKind = "image"
	KindAudio ContentKind = "audio"
)

// Well-known link categories returned by the oracle.
const (
	CategoryBlackList       = "BLACK_LIST"
	CategoryCustomBlackList = "CUSTOM_BLACK_LIST"
	CategoryURLShortener    = "URL_SHORTENER"
)

type Category struct {
	Name       string  `json:"category"`
	Confidence float64 `json:"confidence"` // 0-100
}

// Verdict is the oracle's answer for one piece of content. No categories
// means nothing was found.
type Verdict struct {
	Source     string     `json:"source"`
	Categories []Category `json:"categories"`
}

func (v Verdict) Empty() bool { return len(v.Categories) == 0 }

// Has reports whether any category matches one of names.
func (v Verdict) Has(names ...string) bool {
	return HasCategory(v.Categories, names...)
}

// HasCategory reports whether any of cats is named one of names.
func HasCategory(cats []Category, names ...string) bool {
	for _, c := range cats {
		for _, n := range names {
			if c.Name == n {
				return true
			}
		}
	}
	return false
}

// Oracle classifies content. It is an external service; an error means
// "no verdict", never "violation".
type Oracle interface {
	ModerateText(ctx context.Context, text string, maxCategories int) (Verdict, error)
	ModerateLink(ctx context.Context, url string) (Verdict, error)
	ModerateImage(ctx context.Context, url string) (Verdict, error)
	ModerateAudio(ctx context.Context, url, languageCode string, maxCategories int) (Verdict, error)
}
