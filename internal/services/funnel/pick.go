package funnel

import "regexp"

var digitRun = regexp.MustCompile(`\d+`)

// PickIDs reads identifiers out of free model text. Every maximal digit run is
// a candidate; runs not in allowed are dropped, repeats keep their first
// position, and the result is cut to limit.
func PickIDs(text string, allowed []string, limit int) []string {
	if limit <= 0 || len(allowed) == 0 {
		return nil
	}
	members := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		members[id] = struct{}{}
	}

	var picked []string
	seen := make(map[string]struct{})
	for _, run := range digitRun.FindAllString(text, -1) {
		if _, ok := members[run]; !ok {
			continue
		}
		if _, dup := seen[run]; dup {
			continue
		}
		seen[run] = struct{}{}
		picked = append(picked, run)
		if len(picked) == limit {
			break
		}
	}
	return picked
}
