package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"venturedesk/internal/domain"
)

func TestClassifierRoutesDomains(t *testing.T) {
	c := NewClassifier(0.25)

	tests := []struct {
		query string
		want  string
	}{
		{"How do I structure my pitch deck for a seed round?", domain.DomainPitch},
		{"Who are the main competitors in the B2B payments market landscape?", domain.DomainCompetitive},
		{"What go-to-market channels work for developer tools?", domain.DomainMarketing},
		{"Is my compression algorithm patentable? Any prior art?", domain.DomainPatent},
		{"Generate a privacy policy for my SaaS product", domain.DomainPolicy},
		{"How should we split equity and plan hiring for the first ten employees?", domain.DomainTeam},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			decision := c.Classify(tt.query)
			assert.Equal(t, tt.want, decision.Domain)
			assert.Greater(t, decision.Confidence, 0.0)
			assert.NotEmpty(t, decision.MatchedSignal)
		})
	}
}

func TestClassifierFallsBackToGeneral(t *testing.T) {
	c := NewClassifier(0.25)
	decision := c.Classify("What should I eat for lunch today?")
	assert.Equal(t, domain.DomainGeneral, decision.Domain)
	assert.Equal(t, 0.0, decision.Confidence)
}

func TestClassifierAmbiguousBelowThreshold(t *testing.T) {
	// Signals spread evenly across many domains keep every share low.
	c := NewClassifier(0.5)
	decision := c.Classify("pitch competitor marketing patent policy hiring")
	assert.Equal(t, domain.DomainGeneral, decision.Domain)
	assert.Less(t, decision.Confidence, 0.5)
}

func TestClassifierWordBoundaries(t *testing.T) {
	c := NewClassifier(0.25)
	// "vc" must not match inside "service".
	decision := c.Classify("we provide a managed database service")
	assert.Equal(t, domain.DomainGeneral, decision.Domain)
}

func TestClassifierDeterministic(t *testing.T) {
	c := NewClassifier(0.25)
	first := c.Classify("patent strategy and competitive positioning")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify("patent strategy and competitive positioning"))
	}
}

func TestClassifierCaseInsensitive(t *testing.T) {
	c := NewClassifier(0.25)
	assert.Equal(t, domain.DomainPatent, c.Classify("PRIOR ART search for my INVENTION").Domain)
}
