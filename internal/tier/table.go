package tier

// Bracket is one of the seven fixed VIP level groupings used to resolve the
// minimum-deposit requirement.
type Bracket string

const (
	Bracket1to5   Bracket = "VIP1-5"
	Bracket6to10  Bracket = "VIP6-10"
	Bracket11to20 Bracket = "VIP11-20"
	Bracket21to30 Bracket = "VIP21-30"
	Bracket31to40 Bracket = "VIP31-40"
	Bracket41to50 Bracket = "VIP41-50"
	Bracket51to60 Bracket = "VIP51-60"
)

const (
	MinLevel = 1
	MaxLevel = 60
)

// Fixed reward amount per VIP level. Business constants, not tuning knobs,
// so they are compiled in rather than configuration-loaded.
var rewardByLevel = map[int]int64{
	1: 28, 2: 38, 3: 48, 4: 58, 5: 68,
	6: 58, 7: 76, 8: 93, 9: 111, 10: 128,
	11: 188, 12: 266, 13: 344, 14: 422, 15: 500,
	16: 578, 17: 656, 18: 734, 19: 811, 20: 888,
	21: 688, 22: 755, 23: 822, 24: 888, 25: 955,
	26: 1022, 27: 1088, 28: 1155, 29: 1222, 30: 1288,
	31: 1688, 32: 1822, 33: 1955, 34: 2088, 35: 2222,
	36: 2355, 37: 2488, 38: 2622, 39: 2755, 40: 2888,
	41: 2888, 42: 3111, 43: 3333, 44: 3555, 45: 3777,
	46: 4000, 47: 4222, 48: 4444, 49: 4666, 50: 4888,
	51: 3888, 52: 4444, 53: 5000, 54: 5555, 55: 6111,
	56: 6666, 57: 7222, 58: 7777, 59: 8333, 60: 8888,
}

// Minimum deposit for the evaluation period per bracket. A missing entry
// (VIP51-60) means the bracket has no minimum.
var minimumByBracket = map[Bracket]int64{
	Bracket1to5:   3000,
	Bracket6to10:  30000,
	Bracket11to20: 50000,
	Bracket21to30: 100000,
	Bracket31to40: 300000,
	Bracket41to50: 500000,
}

// RewardFor returns the fixed reward amount for level, or false when level is
// outside 1..60.
func RewardFor(level int) (int64, bool) {
	amount, ok := rewardByLevel[level]
	return amount, ok
}

// BracketFor maps level to its bracket, or false when level is outside 1..60.
func BracketFor(level int) (Bracket, bool) {
	switch {
	case level >= 1 && level <= 5:
		return Bracket1to5, true
	case level >= 6 && level <= 10:
		return Bracket6to10, true
	case level >= 11 && level <= 20:
		return Bracket11to20, true
	case level >= 21 && level <= 30:
		return Bracket21to30, true
	case level >= 31 && level <= 40:
		return Bracket31to40, true
	case level >= 41 && level <= 50:
		return Bracket41to50, true
	case level >= 51 && level <= 60:
		return Bracket51to60, true
	default:
		return "", false
	}
}

// MinimumFor returns the bracket's minimum deposit. ok=false means the bracket
// has no minimum and every deposit qualifies.
func MinimumFor(bracket Bracket) (int64, bool) {
	minimum, ok := minimumByBracket[bracket]
	return minimum, ok
}

// Info describes one level's full tier rule.
type Info struct {
	Level   int     `json:"vipLevel"`
	Bracket Bracket `json:"vipRange"`
	Reward  int64   `json:"codeValue"`
	Minimum *int64  `json:"depositRequirement"`
}

// InfoFor resolves the complete rule for a single level.
func InfoFor(level int) (Info, bool) {
	bracket, ok := BracketFor(level)
	if !ok {
		return Info{}, false
	}
	reward, ok := RewardFor(level)
	if !ok {
		return Info{}, false
	}

	info := Info{Level: level, Bracket: bracket, Reward: reward}
	if minimum, ok := MinimumFor(bracket); ok {
		info.Minimum = &minimum
	}
	return info, true
}

// BracketInfo summarizes one bracket for the full-table endpoint. Reward is
// the reward amount of the bracket's first level, matching what the dashboard
// displays.
type BracketInfo struct {
	Bracket Bracket `json:"vipRange"`
	Reward  int64   `json:"codeValue"`
	Minimum *int64  `json:"depositRequirement"`
}

// Brackets returns all seven brackets in ascending level order.
func Brackets() []BracketInfo {
	out := make([]BracketInfo, 0, 7)
	seen := map[Bracket]bool{}
	for level := MinLevel; level <= MaxLevel; level++ {
		bracket, _ := BracketFor(level)
		if seen[bracket] {
			continue
		}
		seen[bracket] = true

		reward, _ := RewardFor(level)
		info := BracketInfo{Bracket: bracket, Reward: reward}
		if minimum, ok := MinimumFor(bracket); ok {
			info.Minimum = &minimum
		}
		out = append(out, info)
	}
	return out
}
