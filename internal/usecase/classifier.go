package usecase

import (
	"regexp"
	"sort"
	"strings"

	"venturedesk/internal/domain"
)

// signal is one weighted classification keyword. Multi-word signals weigh
// more than single words because they are less ambiguous.
type signal struct {
	phrase string
	weight float64
}

var domainSignals = map[string][]signal{
	domain.DomainPitch: {
		{"pitch deck", 3}, {"pitch", 2}, {"investor", 2}, {"fundraising", 2},
		{"seed round", 3}, {"series a", 3}, {"series b", 3}, {"valuation", 2},
		{"term sheet", 3}, {"deck", 1}, {"vc", 1}, {"angel", 1}, {"raise", 1},
		{"cap table", 2},
	},
	domain.DomainCompetitive: {
		{"competitor", 3}, {"competitors", 3}, {"competitive", 2},
		{"competition", 2}, {"market landscape", 3}, {"differentiation", 2},
		{"positioning", 2}, {"alternatives to", 2}, {"rival", 2},
		{"market share", 2}, {"pricing comparison", 3},
	},
	domain.DomainMarketing: {
		{"marketing", 3}, {"go-to-market", 3}, {"gtm", 2}, {"branding", 2},
		{"seo", 2}, {"content strategy", 3}, {"social media", 2},
		{"advertising", 2}, {"campaign", 2}, {"landing page", 2},
		{"growth", 1}, {"funnel", 2}, {"messaging", 1},
	},
	domain.DomainPatent: {
		{"patent", 3}, {"patents", 3}, {"patentability", 3}, {"prior art", 3},
		{"intellectual property", 3}, {"ip protection", 3}, {"trademark", 2},
		{"uspto", 3}, {"infringement", 2}, {"invention", 2},
	},
	domain.DomainPolicy: {
		{"privacy policy", 3}, {"terms of service", 3}, {"gdpr", 3},
		{"ccpa", 3}, {"compliance", 2}, {"regulation", 2}, {"regulatory", 2},
		{"data protection", 3}, {"legal", 1}, {"policy", 2}, {"hipaa", 3},
		{"cookie", 1},
	},
	domain.DomainTeam: {
		{"hiring", 3}, {"hire", 2}, {"recruiting", 3}, {"interview", 2},
		{"compensation", 2}, {"equity split", 3}, {"cofounder", 2},
		{"co-founder", 2}, {"team structure", 3}, {"org chart", 3},
		{"onboarding", 2}, {"headcount", 2}, {"salary", 2},
	},
}

// Classifier routes queries to business domains by weighted keyword match.
// Deterministic: no model call, same decision for the same query.
type Classifier struct {
	threshold float64
	patterns  map[string][]compiledSignal
}

type compiledSignal struct {
	phrase string
	weight float64
	re     *regexp.Regexp
}

// NewClassifier creates a classifier. Decisions scoring below threshold route
// to the generic fallback.
func NewClassifier(threshold float64) *Classifier {
	c := &Classifier{
		threshold: threshold,
		patterns:  make(map[string][]compiledSignal, len(domainSignals)),
	}
	for d, signals := range domainSignals {
		compiled := make([]compiledSignal, 0, len(signals))
		for _, s := range signals {
			// Word-bounded match so "vc" does not fire inside "service".
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(s.phrase) + `\b`)
			compiled = append(compiled, compiledSignal{phrase: s.phrase, weight: s.weight, re: re})
		}
		c.patterns[d] = compiled
	}
	return c
}

// Classify scores the query against every domain's signals. Confidence is
// the winning domain's share of the total matched weight; ties break on
// domain name for determinism. Below-threshold decisions route to general
// with the scores preserved.
func (c *Classifier) Classify(query string) domain.RoutingDecision {
	q := strings.ToLower(query)

	type scored struct {
		domain  string
		score   float64
		matched string
	}
	var (
		scores []scored
		total  float64
	)
	for d, signals := range c.patterns {
		var (
			score float64
			best  string
			bestW float64
		)
		for _, s := range signals {
			if s.re.MatchString(q) {
				score += s.weight
				if s.weight > bestW {
					bestW = s.weight
					best = s.phrase
				}
			}
		}
		if score > 0 {
			scores = append(scores, scored{domain: d, score: score, matched: best})
			total += score
		}
	}

	if len(scores) == 0 {
		return domain.RoutingDecision{Domain: domain.DomainGeneral, Confidence: 0}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].domain < scores[j].domain
	})

	top := scores[0]
	confidence := top.score / total
	if confidence < c.threshold {
		return domain.RoutingDecision{
			Domain:        domain.DomainGeneral,
			Confidence:    confidence,
			MatchedSignal: top.matched,
		}
	}
	return domain.RoutingDecision{
		Domain:        top.domain,
		Confidence:    confidence,
		MatchedSignal: top.matched,
	}
}
