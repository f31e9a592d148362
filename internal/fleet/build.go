package fleet

import (
	"strconv"
	"strings"
)

// Part item ids as reported on the wire, mapped to display names. Each hull
// class ships four parts; the "Modified" classes are the upgraded tier.
var partNames = map[int]string{
	21792: "Shark-class Bow",
	21793: "Shark-class Bridge",
	21794: "Shark-class Pressure Hull",
	21795: "Shark-class Stern",
	21796: "Unkiu-class Bow",
	21797: "Unkiu-class Bridge",
	21798: "Unkiu-class Pressure Hull",
	21799: "Unkiu-class Stern",
	22526: "Whale-class Bow",
	22527: "Whale-class Bridge",
	22528: "Whale-class Pressure Hull",
	22529: "Whale-class Stern",
	23903: "Coelacanth-class Bow",
	23904: "Coelacanth-class Bridge",
	23905: "Coelacanth-class Pressure Hull",
	23906: "Coelacanth-class Stern",
	24344: "Syldra-class Bow",
	24345: "Syldra-class Bridge",
	24346: "Syldra-class Pressure Hull",
	24347: "Syldra-class Stern",
	24348: "Modified Shark-class Bow",
	24349: "Modified Shark-class Bridge",
	24350: "Modified Shark-class Pressure Hull",
	24351: "Modified Shark-class Stern",
	24352: "Modified Unkiu-class Bow",
	24353: "Modified Unkiu-class Bridge",
	24354: "Modified Unkiu-class Pressure Hull",
	24355: "Modified Unkiu-class Stern",
	24356: "Modified Whale-class Bow",
	24357: "Modified Whale-class Bridge",
	24358: "Modified Whale-class Pressure Hull",
	24359: "Modified Whale-class Stern",
	24360: "Modified Coelacanth-class Bow",
	24361: "Modified Coelacanth-class Bridge",
	24362: "Modified Coelacanth-class Pressure Hull",
	24363: "Modified Coelacanth-class Stern",
	24364: "Modified Syldra-class Bow",
	24365: "Modified Syldra-class Bridge",
	24366: "Modified Syldra-class Pressure Hull",
	24367: "Modified Syldra-class Stern",
}

// Class prefixes in longest-match-first order so the Modified variants win.
var classShortcuts = []struct {
	prefix string
	code   string
}{
	{"Modified Shark-class", "S+"},
	{"Modified Unkiu-class", "U+"},
	{"Modified Whale-class", "W+"},
	{"Modified Coelacanth-class", "C+"},
	{"Modified Syldra-class", "Y+"},
	{"Shark-class", "S"},
	{"Unkiu-class", "U"},
	{"Whale-class", "W"},
	{"Coelacanth-class", "C"},
	{"Syldra-class", "Y"},
}

// Wire item ids map to reference part rows 1..40. Rows are grouped per class
// in Bow, Bridge, Hull, Stern order.
var itemToRow = map[int]int{
	21792: 9, 21793: 10, 21794: 11, 21795: 12, // Shark
	21796: 5, 21797: 6, 21798: 7, 21799: 8, // Unkiu
	22526: 1, 22527: 2, 22528: 3, 22529: 4, // Whale
	23903: 13, 23904: 14, 23905: 15, 23906: 16, // Coelacanth
	24344: 17, 24345: 18, 24346: 19, 24347: 20, // Syldra
	24348: 29, 24349: 30, 24350: 31, 24351: 32, // Modified Shark
	24352: 25, 24353: 26, 24354: 27, 24355: 28, // Modified Unkiu
	24356: 21, 24357: 22, 24358: 23, 24359: 24, // Modified Whale
	24360: 33, 24361: 34, 24362: 35, 24363: 36, // Modified Coelacanth
	24364: 37, 24365: 38, 24366: 39, 24367: 40, // Modified Syldra
}

// PartName returns the display name for a wire part item id, or
// "Unknown(<id>)" when the id is not a submarine part.
func PartName(itemID int) string {
	if name, ok := partNames[itemID]; ok {
		return name
	}
	return "Unknown(" + strconv.Itoa(itemID) + ")"
}

// PartCode returns the short class code ("S", "U+", ...) for a part item id,
// or "?" when the id is unknown.
func PartCode(itemID int) string {
	name, ok := partNames[itemID]
	if !ok {
		return "?"
	}
	for _, c := range classShortcuts {
		if strings.HasPrefix(name, c.prefix) {
			return c.code
		}
	}
	return "?"
}

// PartRowID converts a wire part item id to its reference row id (1..40).
// Returns 0 when the id is not a known part.
func PartRowID(itemID int) int {
	return itemToRow[itemID]
}

// BuildCode renders a 4-slot part loadout as a short build string like
// "S+S+U+C+". Zero slots are skipped; unknown parts contribute "?".
func BuildCode(itemIDs [4]int) string {
	var b strings.Builder
	for _, id := range itemIDs {
		if id == 0 {
			continue
		}
		b.WriteString(PartCode(id))
	}
	return b.String()
}

// PartDisplayNames returns the display names for the non-zero slots.
func PartDisplayNames(itemIDs [4]int) []string {
	names := make([]string, 0, 4)
	for _, id := range itemIDs {
		if id == 0 {
			continue
		}
		names = append(names, PartName(id))
	}
	return names
}

// PartRowIDs converts the non-zero slots to reference row ids. The second
// return is false when any non-zero slot has no row mapping.
func PartRowIDs(itemIDs [4]int) ([]int, bool) {
	rows := make([]int, 0, 4)
	ok := true
	for _, id := range itemIDs {
		if id == 0 {
			continue
		}
		row := itemToRow[id]
		if row == 0 {
			ok = false
			continue
		}
		rows = append(rows, row)
	}
	return rows, ok
}
