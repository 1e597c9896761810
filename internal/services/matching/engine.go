package matching

import (
	"strings"
	"unicode"

	"dispute-reconciliation-backend/internal/models"
)

// MinConfidence is the floor below which the best candidate is reported as
// no match rather than a low-confidence match.
const MinConfidence = 0.5

// MatchItem scores one extracted item against every candidate dispute item
// for the same client and bureau and returns the single best candidate with
// its confidence, or nil when the best score is below MinConfidence.
//
// Ties are broken by lowest dispute item id (bytewise UUID order) so the
// result never depends on slice iteration order.
func MatchItem(extracted models.ExtractedItem, candidates []models.DisputeItem) (*models.DisputeItem, float64) {
	var best *models.DisputeItem
	bestScore := 0.0

	for i := range candidates {
		score := Score(extracted, &candidates[i])
		switch {
		case best == nil, score > bestScore:
			best = &candidates[i]
			bestScore = score
		case score == bestScore && lessID(candidates[i].ID, best.ID):
			best = &candidates[i]
		}
	}

	if best == nil || bestScore < MinConfidence {
		return nil, 0
	}
	return best, bestScore
}

// Score is the combined name + account confidence for one candidate,
// capped at 1.0.
func Score(extracted models.ExtractedItem, item *models.DisputeItem) float64 {
	score := nameScore(extracted.CreditorName, item.CreditorName) +
		accountScore(extracted.AccountNumber, item.AccountNumber)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// nameScore applies three mutually exclusive sub-scores: exact normalized
// equality 0.6, substring containment 0.5, then token-set overlap up to 0.4
// scaled by |intersection| / max(|A|,|B|).
func nameScore(a, b string) float64 {
	na := normalizeName(a)
	nb := normalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 0.6
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.5
	}

	tokensA := tokenSet(na)
	tokensB := tokenSet(nb)
	larger := len(tokensA)
	if len(tokensB) > larger {
		larger = len(tokensB)
	}
	if larger == 0 {
		return 0
	}
	common := 0
	for tok := range tokensA {
		if _, ok := tokensB[tok]; ok {
			common++
		}
	}
	return 0.4 * float64(common) / float64(larger)
}

// accountScore compares the trailing four digits of each identifier,
// ignoring masking characters. An exact four-digit suffix match contributes
// 0.4; otherwise each right-aligned matching digit position contributes a
// quarter of 0.2.
func accountScore(a, b string) float64 {
	sa := digitSuffix(a)
	sb := digitSuffix(b)
	if len(sa) == 4 && sa == sb {
		return 0.4
	}
	matches := 0
	for i := 1; i <= 4; i++ {
		if i > len(sa) || i > len(sb) {
			break
		}
		if sa[len(sa)-i] == sb[len(sb)-i] {
			matches++
		}
	}
	return 0.2 * float64(matches) / 4
}

// NamesOverlap is the coarser equality-or-substring test used when searching
// prior-round deletions. Empty names never overlap.
func NamesOverlap(a, b string) bool {
	na := normalizeName(a)
	nb := normalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		set[tok] = struct{}{}
	}
	return set
}

// digitSuffix keeps only digits and returns at most the last four.
func digitSuffix(s string) string {
	var digits []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) > 4 {
		digits = digits[len(digits)-4:]
	}
	return string(digits)
}

func lessID(a, b [16]byte) bool {
	for i := 0; i < 16; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
