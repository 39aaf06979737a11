package scoring

import (
	"slices"
	"strings"

	"github.com/mcdev12/livegame/go/internal/models"
)

// Rank orders players into a leaderboard: cumulative score descending, then
// cumulative answer time ascending, then join order, then player ID. The
// result is a total order for any set of distinct players.
func Rank(players []models.Player) []models.LeaderboardEntry {
	sorted := make([]models.Player, len(players))
	copy(sorted, players)

	slices.SortFunc(sorted, func(a, b models.Player) int {
		if a.CumulativeScore != b.CumulativeScore {
			if a.CumulativeScore > b.CumulativeScore {
				return -1
			}
			return 1
		}
		if a.AnswerTime != b.AnswerTime {
			if a.AnswerTime < b.AnswerTime {
				return -1
			}
			return 1
		}
		if a.Seq != b.Seq {
			return a.Seq - b.Seq
		}
		return strings.Compare(a.ID, b.ID)
	})

	board := make([]models.LeaderboardEntry, len(sorted))
	for i, p := range sorted {
		board[i] = models.LeaderboardEntry{
			Rank:           i + 1,
			PlayerID:       p.ID,
			DisplayName:    p.DisplayName,
			Score:          p.CumulativeScore,
			CorrectAnswers: p.CorrectAnswers,
			Active:         p.Active,
		}
	}
	return board
}
