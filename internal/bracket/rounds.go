package bracket

import (
	"fmt"
	"sort"
)

// Round is one column of the bracket as a client draws it.
type Round struct {
	Number  int     `json:"number"`
	Name    string  `json:"name"`
	Matches []Match `json:"matches"`
}

// GroupRounds lays matches out by round, each round ordered by match number.
func GroupRounds(matches []Match) []Round {
	byRound := make(map[int][]Match)
	var roundNums []int
	for _, m := range matches {
		if _, exists := byRound[m.RoundNumber]; !exists {
			roundNums = append(roundNums, m.RoundNumber)
		}
		byRound[m.RoundNumber] = append(byRound[m.RoundNumber], m)
	}
	sort.Ints(roundNums)

	total := len(roundNums)
	rounds := make([]Round, 0, total)
	for _, n := range roundNums {
		ms := byRound[n]
		sort.Slice(ms, func(i, j int) bool {
			return ms[i].MatchNumber < ms[j].MatchNumber
		})
		rounds = append(rounds, Round{Number: n, Name: RoundName(n, total), Matches: ms})
	}
	return rounds
}

// RoundName labels round n of a bracket with total rounds.
func RoundName(n, total int) string {
	switch total - n {
	case 0:
		return "Final"
	case 1:
		return "Semifinals"
	case 2:
		return "Quarterfinals"
	}
	return fmt.Sprintf("Round of %d", 1<<(total-n+1))
}
