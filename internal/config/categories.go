package config

// CategoryWeights orders command categories in /help.
var CategoryWeights = map[string]int{
	"🕯️ Information": 0,
	"🎵 Music":        10,
	"⚙️ Settings":    20,
	"🛠️ Maintenance": 30,
}
