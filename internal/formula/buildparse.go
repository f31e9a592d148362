package formula

import "strings"

// Part rows are laid out four per class in bow, bridge, hull, stern order:
// Whale 1-4, Unkiu 5-8, Shark 9-12, Coelacanth 13-16, Syldra 17-20, then the
// Modified tiers 20 rows later. The letter maps to the class's base row and
// "+" shifts into the Modified block.
var buildLetterBase = map[byte]int{'W': 0, 'U': 4, 'S': 8, 'C': 12, 'Y': 16}

// Slot offsets within a class block, in build-string order: hull, stern,
// bow, bridge.
var buildSlotOffsets = [4]int{3, 4, 1, 2}

// ParseBuild converts a build string like "S+S+U+C+" into the four part row
// ids (hull, stern, bow, bridge). The compressed form "SSUC++" marks every
// part upgraded. Returns false unless exactly four parts parse.
func ParseBuild(build string) ([4]int, bool) {
	if build == "" {
		return [4]int{}, false
	}
	up := strings.ToUpper(build)

	// "SSUC++" is shorthand for "S+S+U+C+".
	if len(up) == 6 && strings.HasSuffix(up, "++") && allBuildLetters(up[:4]) {
		expanded := make([]byte, 0, 8)
		for i := 0; i < 4; i++ {
			expanded = append(expanded, up[i], '+')
		}
		up = string(expanded)
	}

	type slot struct {
		base int
		plus bool
	}
	var parts []slot
	for i := 0; i < len(up); i++ {
		c := up[i]
		if base, ok := buildLetterBase[c]; ok {
			parts = append(parts, slot{base: base})
		} else if c == '+' && len(parts) > 0 {
			parts[len(parts)-1].plus = true
		}
	}
	if len(parts) != 4 {
		return [4]int{}, false
	}

	var rows [4]int
	for i, p := range parts {
		base := p.base
		if p.plus {
			base += 20
		}
		rows[i] = base + buildSlotOffsets[i]
	}
	return rows, true
}

func allBuildLetters(s string) bool {
	for i := 0; i < len(s); i++ {
		if _, ok := buildLetterBase[s[i]]; !ok {
			return false
		}
	}
	return true
}
