package fleet

import "testing"

func TestBuildCode(t *testing.T) {
	tests := []struct {
		name  string
		parts [4]int
		want  string
	}{
		{"all shark", [4]int{21794, 21795, 21792, 21793}, "SSSS"},
		{"modified mix", [4]int{24350, 24351, 21792, 23903}, "S+S+SC"},
		{"full modified syldra", [4]int{24366, 24367, 24364, 24365}, "Y+Y+Y+Y+"},
		{"zero slot skipped", [4]int{21794, 0, 21792, 21793}, "SSS"},
		{"unknown part", [4]int{21794, 99999, 21792, 21793}, "S?SS"},
		{"empty", [4]int{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildCode(tt.parts); got != tt.want {
				t.Errorf("BuildCode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPartName(t *testing.T) {
	if got := PartName(21794); got != "Shark-class Pressure Hull" {
		t.Errorf("PartName(21794) = %q", got)
	}
	if got := PartName(12345); got != "Unknown(12345)" {
		t.Errorf("PartName(12345) = %q", got)
	}
}

func TestPartRowIDs(t *testing.T) {
	rows, ok := PartRowIDs([4]int{21794, 21795, 21792, 21793})
	if !ok {
		t.Fatal("expected ok for a known shark loadout")
	}
	want := []int{11, 12, 9, 10}
	for i, r := range rows {
		if r != want[i] {
			t.Errorf("rows[%d] = %d, want %d", i, r, want[i])
		}
	}

	if _, ok := PartRowIDs([4]int{21794, 99999, 21792, 21793}); ok {
		t.Error("expected !ok when a part has no row mapping")
	}
}

func TestWorldRegion(t *testing.T) {
	tests := []struct {
		world string
		want  string
	}{
		{"Gilgamesh", "NA"},
		{"Odin", "EU"},
		{"Tonberry", "JP"},
		{"Sophia", "OCE"},
		{"Atlantis", "Unknown"},
		{"", "Unknown"},
	}

	for _, tt := range tests {
		if got := WorldRegion(tt.world); got != tt.want {
			t.Errorf("WorldRegion(%q) = %q, want %q", tt.world, got, tt.want)
		}
	}
}
