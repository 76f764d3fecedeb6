package rating

// Tier is a named rating band; higher values are stronger bands.
type Tier int

const (
	Novice Tier = iota
	Bronze
	Silver
	Gold
	Diamond
	Master
	Grandmaster
)

var tierFloors = [...]struct {
	tier  Tier
	floor int
}{
	{Grandmaster, 2000},
	{Master, 1800},
	{Diamond, 1600},
	{Gold, 1400},
	{Silver, 1200},
	{Bronze, 1000},
}

// TierOf maps any rating onto exactly one tier.
func TierOf(r int) Tier {
	for _, t := range tierFloors {
		if r >= t.floor {
			return t.tier
		}
	}
	return Novice
}

func (t Tier) String() string {
	switch t {
	case Bronze:
		return "bronze"
	case Silver:
		return "silver"
	case Gold:
		return "gold"
	case Diamond:
		return "diamond"
	case Master:
		return "master"
	case Grandmaster:
		return "grandmaster"
	default:
		return "novice"
	}
}

// Color is the badge colour used on share cards.
func (t Tier) Color() string {
	switch t {
	case Bronze:
		return "#CD7F32"
	case Silver:
		return "#C0C0C0"
	case Gold:
		return "#FFD700"
	case Diamond:
		return "#B9F2FF"
	case Master:
		return "#9C27B0"
	case Grandmaster:
		return "#FF6B35"
	default:
		return "#9E9E9E"
	}
}
