package approval

import "strings"

const maxKeywordLength = 64

// NormalizeKeywords lowercases, trims, drops empties and over-long entries,
// and de-duplicates while preserving insertion order. Keyword matching later
// iterates this normalized order, so first-configured wins ties.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, raw := range keywords {
		kw := strings.ToLower(strings.TrimSpace(raw))
		if kw == "" || len(kw) > maxKeywordLength {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// RiskKeywords reads and normalizes the configured keyword list.
func (s *Service) RiskKeywords() []string {
	raw, ok := s.store.GetSetting("risk_keywords")
	if !ok || raw == "" {
		return []string{}
	}
	return NormalizeKeywords(strings.Split(raw, ","))
}

// SetRiskKeywords normalizes and persists the keyword list, returning the
// stored form.
func (s *Service) SetRiskKeywords(keywords []string) ([]string, error) {
	normalized := NormalizeKeywords(keywords)
	if err := s.store.SetSetting("risk_keywords", strings.Join(normalized, ",")); err != nil {
		return nil, err
	}
	return normalized, nil
}
