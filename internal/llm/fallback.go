package llm

import (
	"context"

	"github.com/sirupsen/logrus"
)

// FallbackProvider tries Primary and switches to Secondary only when the
// primary is unavailable. Other errors are returned as-is.
type FallbackProvider struct {
	Primary   Provider
	Secondary Provider
}

// NewFallbackProvider pairs two providers.
func NewFallbackProvider(primary, secondary Provider) *FallbackProvider {
	return &FallbackProvider{Primary: primary, Secondary: secondary}
}

func (f *FallbackProvider) Name() string {
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

func (f *FallbackProvider) IsConfigured() bool {
	return f.Primary.IsConfigured() || f.Secondary.IsConfigured()
}

func (f *FallbackProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	out, err := f.Primary.Generate(ctx, prompt, maxTokens)
	if err == nil || !IsUnavailable(err) || ctx.Err() != nil {
		return out, err
	}
	logrus.WithError(err).Warnf("%s unavailable, falling back to %s", f.Primary.Name(), f.Secondary.Name())
	return f.Secondary.Generate(ctx, prompt, maxTokens)
}
