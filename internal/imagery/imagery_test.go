package imagery

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"decision-simulator/internal/domain"
	"decision-simulator/internal/integrations/replicate"
)

type fakeGenerator struct {
	url   string
	err   error
	calls []domain.ImageRequest
}

func (f *fakeGenerator) GenerateImage(_ context.Context, in domain.ImageRequest) (string, error) {
	f.calls = append(f.calls, in)
	return f.url, f.err
}

var ada = Subject{Name: "Ada", Age: 34}

func TestIsMilestone(t *testing.T) {
	for year := 0; year <= 10; year++ {
		want := year == 0 || year == 5 || year == 10
		require.Equal(t, want, IsMilestone(year), "year=%d", year)
	}
}

// placeholderText decodes the data URI and returns the SVG's text content.
func placeholderText(t *testing.T, uri string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(uri, "data:image/svg+xml,"))
	svg, err := url.PathUnescape(strings.TrimPrefix(uri, "data:image/svg+xml,"))
	require.NoError(t, err)

	var doc struct {
		Text string `xml:"text"`
	}
	require.NoError(t, xml.Unmarshal([]byte(svg), &doc))
	return doc.Text
}

func TestPlaceholder_EmbedsNameAndAge(t *testing.T) {
	got := Placeholder("Ada", 39)
	require.Equal(t, "Ada at age 39", placeholderText(t, got))
	require.Contains(t, got, "width='400' height='300'")
	require.Contains(t, got, "fill='%23334155'")
	require.Equal(t, got, Placeholder("Ada", 39))
}

func TestPlaceholder_EscapesAwkwardNames(t *testing.T) {
	for _, name := range []string{"Bo#b 50%", "<Ann & \"Jo\">", "Zoë/Ö?x=1"} {
		got := Placeholder(name, 30)
		require.NotContains(t, got, "#", "a raw # would start a fragment")
		require.Equal(t, name+" at age 30", placeholderText(t, got), "name=%q", name)
	}
}

func TestPortrait_NoGeneratorUsesPlaceholder(t *testing.T) {
	p := NewProvider(nil, nil)
	for _, year := range MilestoneYears {
		ref, ok := p.Portrait(context.Background(), ada, year)
		require.True(t, ok)
		require.Equal(t, Placeholder("Ada", 34+year), ref)
	}
}

func TestPortrait_NonMilestoneYearHasNoImage(t *testing.T) {
	gen := &fakeGenerator{url: "https://cdn.example/x.png"}
	p := NewProvider(gen, nil)
	for _, year := range []int{1, 2, 3, 4, 6, 7, 8, 9} {
		ref, ok := p.Portrait(context.Background(), ada, year)
		require.False(t, ok)
		require.Empty(t, ref)
	}
	require.Empty(t, gen.calls)
}

func TestPortrait_UsesGenerator(t *testing.T) {
	gen := &fakeGenerator{url: "https://cdn.example/ada-44.png"}
	p := NewProvider(gen, nil)

	ref, ok := p.Portrait(context.Background(), Subject{Name: "Ada", Age: 34, Personality: "curious"}, 10)
	require.True(t, ok)
	require.Equal(t, "https://cdn.example/ada-44.png", ref)

	require.Len(t, gen.calls, 1)
	req := gen.calls[0]
	require.Contains(t, req.Prompt, "44-year-old person named Ada")
	require.Contains(t, req.Prompt, "curious")
	require.Equal(t, negativePrompt, req.NegativePrompt)
	require.Equal(t, 512, req.Width)
	require.Equal(t, 512, req.Height)
	require.Equal(t, 30, req.Steps)
	require.InDelta(t, 7.5, req.GuidanceScale, 1e-9)
}

func TestPortrait_FailuresFallBackToPlaceholder(t *testing.T) {
	cases := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"no token", &fakeGenerator{err: fmt.Errorf("wrap: %w", replicate.ErrNoToken)}},
		{"upstream error", &fakeGenerator{err: errors.New("timeout")}},
		{"empty output", &fakeGenerator{url: "  "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProvider(tc.gen, nil)
			ref, ok := p.Portrait(context.Background(), ada, 5)
			require.True(t, ok)
			require.Equal(t, Placeholder("Ada", 39), ref)
		})
	}
}

func TestBuildPrompt_OmitsEmptyPersonality(t *testing.T) {
	got := buildPrompt(Subject{Name: "Lin", Personality: "  "}, 30)
	require.Equal(t, "Professional headshot photo of a 30-year-old person named Lin, realistic facial features, natural lighting, studio quality photograph", got)
}
