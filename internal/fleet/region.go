package fleet

// Regions, in the order summary counters report them.
var Regions = []string{"NA", "EU", "JP", "OCE", "Unknown"}

// Worlds grouped by data-centre region.
var worldRegions = map[string]string{
	// NA Aether
	"Adamantoise": "NA", "Cactuar": "NA", "Faerie": "NA", "Gilgamesh": "NA",
	"Jenova": "NA", "Midgardsormr": "NA", "Sargatanas": "NA", "Siren": "NA",
	// NA Crystal
	"Balmung": "NA", "Brynhildr": "NA", "Coeurl": "NA", "Diabolos": "NA",
	"Goblin": "NA", "Malboro": "NA", "Mateus": "NA", "Zalera": "NA",
	// NA Primal
	"Behemoth": "NA", "Excalibur": "NA", "Exodus": "NA", "Famfrit": "NA",
	"Hyperion": "NA", "Lamia": "NA", "Leviathan": "NA", "Ultros": "NA",
	// NA Dynamis
	"Halicarnassus": "NA", "Maduin": "NA", "Marilith": "NA", "Seraph": "NA",
	"Cuchulainn": "NA", "Golem": "NA", "Kraken": "NA", "Rafflesia": "NA",
	// EU Chaos
	"Cerberus": "EU", "Louisoix": "EU", "Moogle": "EU", "Omega": "EU",
	"Phantom": "EU", "Ragnarok": "EU", "Sagittarius": "EU", "Spriggan": "EU",
	// EU Light
	"Alpha": "EU", "Lich": "EU", "Odin": "EU", "Phoenix": "EU",
	"Raiden": "EU", "Shiva": "EU", "Twintania": "EU", "Zodiark": "EU",
	// JP Elemental
	"Aegis": "JP", "Atomos": "JP", "Carbuncle": "JP", "Garuda": "JP",
	"Gungnir": "JP", "Kujata": "JP", "Tonberry": "JP", "Typhon": "JP",
	// JP Gaia
	"Alexander": "JP", "Bahamut": "JP", "Durandal": "JP", "Fenrir": "JP",
	"Ifrit": "JP", "Ridill": "JP", "Tiamat": "JP", "Ultima": "JP",
	// JP Mana
	"Anima": "JP", "Asura": "JP", "Chocobo": "JP", "Hades": "JP",
	"Ixion": "JP", "Masamune": "JP", "Pandaemonium": "JP", "Titan": "JP",
	// JP Meteor
	"Belias": "JP", "Mandragora": "JP", "Ramuh": "JP", "Shinryu": "JP",
	"Unicorn": "JP", "Valefor": "JP", "Yojimbo": "JP", "Zeromus": "JP",
	// OCE Materia
	"Bismarck": "OCE", "Ravana": "OCE", "Sephirot": "OCE", "Sophia": "OCE",
	"Zurvan": "OCE",
}

// WorldRegion returns the data-centre region for a world name, or "Unknown".
func WorldRegion(world string) string {
	if region, ok := worldRegions[world]; ok {
		return region
	}
	return "Unknown"
}
