// Package imagery produces age-progression portraits for milestone years and
// substitutes a placeholder whenever the image service is unavailable.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"

	"decision-simulator/internal/domain"
	"decision-simulator/internal/integrations/replicate"
)

const (
	portraitSize   = 512
	portraitSteps  = 30
	portraitCFG    = 7.5
	negativePrompt = "unrealistic, cartoon, anime, sketch, low quality"
)

// MilestoneYears are the year offsets that carry an image.
var MilestoneYears = []int{0, 5, 10}

// IsMilestone reports whether year carries an image.
func IsMilestone(year int) bool {
	for _, y := range MilestoneYears {
		if y == year {
			return true
		}
	}
	return false
}

// Generator is the external text-to-image service.
type Generator interface {
	GenerateImage(ctx context.Context, in domain.ImageRequest) (string, error)
}

// Subject describes who is portrayed.
type Subject struct {
	Name        string
	Age         int
	Personality string
}

// Provider returns portraits, never errors.
type Provider struct {
	gen    Generator
	logger *slog.Logger
}

// NewProvider creates a Provider. A nil Generator means no credential is
// configured and every portrait is a placeholder.
func NewProvider(gen Generator, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{gen: gen, logger: logger}
}

// Portrait returns an image reference for subject at yearOffset years from now.
// ok is false for years that carry no image.
func (p *Provider) Portrait(ctx context.Context, subject Subject, yearOffset int) (ref string, ok bool) {
	if !IsMilestone(yearOffset) {
		return "", false
	}
	age := subject.Age + yearOffset
	if p.gen == nil {
		p.logger.DebugContext(ctx, "image service not configured, using placeholder", "year", yearOffset)
		return Placeholder(subject.Name, age), true
	}

	url, err := p.gen.GenerateImage(ctx, domain.ImageRequest{
		Prompt:         buildPrompt(subject, age),
		NegativePrompt: negativePrompt,
		Width:          portraitSize,
		Height:         portraitSize,
		Steps:          portraitSteps,
		GuidanceScale:  portraitCFG,
	})
	switch {
	case errors.Is(err, replicate.ErrNoToken):
		p.logger.InfoContext(ctx, "image service token not configured, using placeholder", "year", yearOffset)
		return Placeholder(subject.Name, age), true
	case err != nil:
		p.logger.WarnContext(ctx, "image generation failed, using placeholder", "year", yearOffset, "err", err)
		return Placeholder(subject.Name, age), true
	case strings.TrimSpace(url) == "":
		p.logger.WarnContext(ctx, "image generation returned no reference, using placeholder", "year", yearOffset)
		return Placeholder(subject.Name, age), true
	}
	return url, true
}

func buildPrompt(subject Subject, age int) string {
	prompt := fmt.Sprintf(
		"Professional headshot photo of a %d-year-old person named %s, realistic facial features, natural lighting, studio quality photograph",
		age, subject.Name,
	)
	if p := strings.TrimSpace(subject.Personality); p != "" {
		prompt += ", expression suggesting a " + p + " personality"
	}
	return prompt
}

// Placeholder is an inline 400x300 SVG reading "{name} at age {age}". The text
// is XML-escaped and then percent-encoded, so any name survives both layers.
func Placeholder(name string, age int) string {
	text := url.PathEscape(html.EscapeString(fmt.Sprintf("%s at age %d", name, age)))
	return "data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg' width='400' height='300'%3E" +
		"%3Crect fill='%23334155' width='400' height='300'/%3E" +
		"%3Ctext x='50%25' y='50%25' dominant-baseline='middle' text-anchor='middle' font-size='20' fill='%23fff'%3E" +
		text +
		"%3C/text%3E%3C/svg%3E"
}
