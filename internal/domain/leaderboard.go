package domain

// LeaderboardEntry represents a single entry in the diamonds leaderboard
type LeaderboardEntry struct {
	Rank      int64  `json:"rank"`
	UserID    string `json:"user_id"`
	Diamonds  int64  `json:"diamonds"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DiamondAward adjusts a user's diamond balance
type DiamondAward struct {
	UserID string `json:"user_id"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

// BatchDiamondAward represents multiple awards
type BatchDiamondAward struct {
	Awards []DiamondAward `json:"awards"`
}

// LeaderboardStats summarizes the diamonds leaderboard
type LeaderboardStats struct {
	TotalUsers  int64 `json:"total_users"`
	TopDiamonds int64 `json:"top_diamonds"`
}
