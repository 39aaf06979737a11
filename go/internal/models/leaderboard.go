package models

// LeaderboardEntry is one ranked row of a leaderboard.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	PlayerID       string `json:"player_id"`
	DisplayName    string `json:"display_name"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correct_answers"`
	Active         bool   `json:"active"`
}

// RoundResult is one player's outcome for a settled round.
type RoundResult struct {
	PlayerID       string `json:"player_id"`
	DisplayName    string `json:"display_name"`
	Answered       bool   `json:"answered"`
	SelectedOption *int   `json:"selected_option,omitempty"`
	Correct        bool   `json:"correct"`
	Points         int    `json:"points"`
	TotalScore     int    `json:"total_score"`
}
