// internal/domain/content/source.go
package content

import "context"

// Entry is one row of the word list.
type Entry struct {
	Word    string
	Meaning string
	Example string
}

// Source supplies recurring post content.
type Source interface {
	// RandomEntry returns (nil, nil) when the language has no usable rows.
	RandomEntry(ctx context.Context, language string) (*Entry, error)
}
