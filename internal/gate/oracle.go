// Package gate decides whether an uploaded image may be published and
// prepares accepted images for storage.
package gate

import "context"

// Image is the input to a classification. Data takes precedence over URL.
type Image struct {
	Data        []byte
	ContentType string
	URL         string
}

// Oracle returns a free-text label describing an image.
type Oracle interface {
	Classify(ctx context.Context, img Image) (string, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, img Image) (string, error)

// Classify calls f.
func (f OracleFunc) Classify(ctx context.Context, img Image) (string, error) {
	return f(ctx, img)
}
