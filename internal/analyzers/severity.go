package analyzers

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/textmatch"
)

// mentionCeiling is the mention count at which the log-scaled mention term
// saturates at 1.0.
const mentionCeiling = 50

// severity combines the analyzer-specific risk signal with a log-scaled
// mention frequency term, both normalized to [0, 1].
func severity(cfg config.AnalysisConfig, signal float64, mentionCount int) float64 {
	mention := math.Log1p(float64(mentionCount)) / math.Log1p(mentionCeiling)
	if mention > 1 {
		mention = 1
	}
	return clamp01(cfg.SignalWeight*clamp01(signal) + cfg.MentionWeight*mention)
}

// stalenessSignal maps document age beyond the staleness window to a risk
// signal: exactly at the window edge scores 0.5 and doubles of the window
// approach 1.0.
func stalenessSignal(age, window time.Duration) float64 {
	if window <= 0 || age <= 0 {
		return 0
	}
	return clamp01(float64(age) / float64(2*window))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// contentHash derives the gap deduplication key from the gap type, the
// sorted related entity names, and the normalized description. Running an
// analyzer twice over an unchanged graph yields identical hashes.
func contentHash(matcher *textmatch.Matcher, gapType models.GapType, relatedEntities []string, description string) string {
	names := make([]string, 0, len(relatedEntities))
	for _, name := range relatedEntities {
		names = append(names, matcher.NormalizeText(name))
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(gapType))
	h.Write([]byte{0x1f})
	h.Write([]byte(strings.Join(names, "\x1f")))
	h.Write([]byte{0x1f})
	h.Write([]byte(matcher.NormalizeText(description)))
	return hex.EncodeToString(h.Sum(nil))
}

// docIDs flattens a mention-doc map into a sorted id list.
func docIDs(docs map[string]time.Time) []string {
	out := make([]string, 0, len(docs))
	for id := range docs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// unionEvidence merges evidence lists without duplicates, sorted for
// deterministic output.
func unionEvidence(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, item := range list {
			if item == "" || seen[item] {
				continue
			}
			seen[item] = true
			out = append(out, item)
		}
	}
	sort.Strings(out)
	return out
}
