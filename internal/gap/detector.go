package gap

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Policy holds the comprehensiveness guard thresholds. An answer is treated
// as comprehensive when it is longer than LongAnswerChars with at least
// LongAnswerMinEvidence evidence items, or longer than VeryLongAnswerChars
// with at least VeryLongAnswerMinEvidence items.
type Policy struct {
	LongAnswerChars           int  `mapstructure:"long_answer_chars" yaml:"long_answer_chars"`
	LongAnswerMinEvidence     int  `mapstructure:"long_answer_min_evidence" yaml:"long_answer_min_evidence"`
	VeryLongAnswerChars       int  `mapstructure:"very_long_answer_chars" yaml:"very_long_answer_chars"`
	VeryLongAnswerMinEvidence int  `mapstructure:"very_long_answer_min_evidence" yaml:"very_long_answer_min_evidence"`
	RegistryOverride          bool `mapstructure:"registry_override" yaml:"registry_override"`
}

// DefaultPolicy returns the thresholds the detector ships with.
func DefaultPolicy() Policy {
	return Policy{
		LongAnswerChars:           2000,
		LongAnswerMinEvidence:     8,
		VeryLongAnswerChars:       4000,
		VeryLongAnswerMinEvidence: 5,
		RegistryOverride:          true,
	}
}

func (p Policy) isComprehensive(answerLen, evidenceUsed int) bool {
	return (answerLen > p.LongAnswerChars && evidenceUsed >= p.LongAnswerMinEvidence) ||
		(answerLen > p.VeryLongAnswerChars && evidenceUsed >= p.VeryLongAnswerMinEvidence)
}

// Detector decides whether an answered question warrants follow-up research.
// Detect has no side effects other than logging; the policy may be swapped
// at runtime by the config watcher.
type Detector struct {
	policy atomic.Pointer[Policy]
	logger *zap.Logger
}

// NewDetector creates a detector with the given policy.
func NewDetector(policy Policy, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{logger: logger}
	d.policy.Store(&policy)
	return d
}

// SetPolicy replaces the active policy.
func (d *Detector) SetPolicy(p Policy) {
	d.policy.Store(&p)
	d.logger.Info("Gap policy updated",
		zap.Int("long_answer_chars", p.LongAnswerChars),
		zap.Int("long_answer_min_evidence", p.LongAnswerMinEvidence),
		zap.Int("very_long_answer_chars", p.VeryLongAnswerChars),
		zap.Int("very_long_answer_min_evidence", p.VeryLongAnswerMinEvidence),
		zap.Bool("registry_override", p.RegistryOverride),
	)
}

// Policy returns the active policy.
func (d *Detector) Policy() Policy {
	return *d.policy.Load()
}

// Detect classifies a question/answer pair. usedEvidenceIDs are the items the
// answer cited; when allEvidence is non-empty, ids not present in it are not
// counted.
func (d *Detector) Detect(question, answer string, usedEvidenceIDs []uuid.UUID, allEvidence []Evidence) Result {
	if IsExplicitRequest(question) {
		intent := ClassifyIntent(question)
		d.logger.Info("Gap detected via explicit request",
			zap.String("intent", string(intent)),
			zap.String("method", string(MethodExplicitRequest)),
		)
		return Result{
			ShouldPropose:   true,
			GapStatement:    buildGapStatement(question, nil, intent, true),
			Intent:          intent,
			MissingSlots:    ExtractSlots(question, intent),
			Confidence:      0.95,
			DetectionMethod: MethodExplicitRequest,
		}
	}

	matched := MatchGapPhrases(answer)
	if len(matched) == 0 {
		return Result{DetectionMethod: MethodNone}
	}

	policy := d.Policy()
	answerLen := len([]rune(answer))
	evidenceUsed := countUsed(usedEvidenceIDs, allEvidence)
	method := MethodPhraseMatch

	if policy.isComprehensive(answerLen, evidenceUsed) {
		if !policy.RegistryOverride || !ImpliesExternalRegistry(question) {
			d.logger.Info("Gap phrases found but answer is comprehensive",
				zap.Int("answer_length", answerLen),
				zap.Int("evidence_used", evidenceUsed),
				zap.Strings("matched_phrases", matched),
				zap.String("method", string(MethodComprehensiveSkip)),
			)
			return Result{DetectionMethod: MethodComprehensiveSkip}
		}
		d.logger.Info("Answer is comprehensive but question implies an external registry",
			zap.Int("answer_length", answerLen),
			zap.Int("evidence_used", evidenceUsed),
			zap.String("method", string(MethodRegistryOverride)),
		)
		method = MethodRegistryOverride
	}

	intent := ClassifyIntent(question)
	confidence := 0.5 + 0.1*float64(len(matched))
	if confidence > 0.9 {
		confidence = 0.9
	}

	d.logger.Info("Gap detected via phrase match",
		zap.Int("phrases", len(matched)),
		zap.String("intent", string(intent)),
		zap.Int("answer_length", answerLen),
		zap.Int("evidence_used", evidenceUsed),
	)

	return Result{
		ShouldPropose:   true,
		GapStatement:    buildGapStatement(question, matched, intent, false),
		Intent:          intent,
		MissingSlots:    ExtractSlots(question, intent),
		Confidence:      confidence,
		DetectionMethod: method,
	}
}

// IsExplicitRequest reports whether the question directly asks for more research.
func IsExplicitRequest(question string) bool {
	return containsAny(strings.ToLower(strings.TrimSpace(question)), explicitResearchTriggers)
}

// ImpliesExternalRegistry reports whether the question names a structured source.
func ImpliesExternalRegistry(question string) bool {
	lower := strings.ToLower(question)
	for _, p := range registryImplyingPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// MatchGapPhrases returns the gap phrases found in the answer: exact phrases
// first, then the text matched by each paraphrase pattern.
func MatchGapPhrases(answer string) []string {
	lower := strings.ToLower(strings.TrimSpace(answer))
	var matched []string
	for _, phrase := range gapIndicatorPhrases {
		if strings.Contains(lower, phrase) {
			matched = append(matched, phrase)
		}
	}
	for _, p := range gapPhrasePatterns {
		m := p.FindString(lower)
		if m == "" {
			continue
		}
		dup := false
		for _, existing := range matched {
			if existing == m {
				dup = true
				break
			}
		}
		if !dup {
			matched = append(matched, m)
		}
	}
	return matched
}

// ClassifyIntent scores each intent by keyword overlap. The highest score
// wins; ties go to the intent listed first. Empty when nothing overlaps.
func ClassifyIntent(question string) Intent {
	lower := strings.ToLower(strings.TrimSpace(question))
	var best Intent
	bestScore := 0
	for _, entry := range intentTable {
		score := 0
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = entry.intent, score
		}
	}
	return best
}

// TopicFor returns the human-readable topic of an intent, or "".
func TopicFor(intent Intent) string {
	return intentTopics[intent]
}

func buildGapStatement(question string, matched []string, intent Intent, explicit bool) string {
	if explicit {
		return fmt.Sprintf("User requested additional research: \"%s...\"", truncateRunes(question, 100))
	}
	if len(matched) == 0 {
		return "Additional information may be available from external sources."
	}
	if topic, ok := intentTopics[intent]; ok {
		return topic + " not fully covered in available sources."
	}
	return "Some requested information is not present in available sources."
}

func countUsed(used []uuid.UUID, all []Evidence) int {
	if len(all) == 0 {
		return len(uniqueIDs(used))
	}
	known := make(map[uuid.UUID]bool, len(all))
	for _, e := range all {
		known[e.ID] = true
	}
	n := 0
	for id := range uniqueIDs(used) {
		if known[id] {
			n++
		}
	}
	return n
}

func uniqueIDs(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
