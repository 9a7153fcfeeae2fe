package arena

// WinnerInfo identifies the winner of a concluded game.
type WinnerInfo struct {
	UserID int64  `json:"userId"`
	Handle string `json:"handle"`
}

// Summary is a read-only projection of a game and its transcript.
type Summary struct {
	GameID              int64          `json:"gameId"`
	TotalTurns          int            `json:"totalTurns"`
	InitialPlayerCount  int            `json:"initialPlayerCount"`
	CurrentPlayerCount  int            `json:"currentPlayerCount"`
	ActivePlayers       []string       `json:"activePlayers"`
	Cost                int64          `json:"cost"`
	Pot                 int64          `json:"pot"`
	Winner              *WinnerInfo    `json:"winner"`
	MessageCount        int            `json:"messageCount"`
	MessagesBySpeaker   map[string]int `json:"messagesBySpeaker"`
	LastEliminationTurn int            `json:"lastEliminationTurn"`
	IsGameOver          bool           `json:"isGameOver"`
}

// Summarize builds the summary of g from its full message history.
func Summarize(g Game, messages []Message) Summary {
	summary := Summary{
		GameID:              g.ID,
		TotalTurns:          g.Current.CurrentTurn,
		InitialPlayerCount:  g.InitialPlayerCount(),
		CurrentPlayerCount:  len(g.Current.ActivePlayers),
		ActivePlayers:       append([]string{}, g.Current.ActivePlayers...),
		Cost:                g.Init.Cost,
		Pot:                 ComputePayout(g.Init.Cost, g.InitialPlayerCount()).Pot,
		MessageCount:        len(messages),
		MessagesBySpeaker:   make(map[string]int),
		LastEliminationTurn: g.Current.LastEliminationTurn,
		IsGameOver:          g.IsOver(),
	}
	for _, msg := range messages {
		summary.MessagesBySpeaker[msg.Speaker.Handle()]++
	}
	if g.Winner != nil {
		info := &WinnerInfo{UserID: *g.Winner}
		if seat, ok := g.SeatByUserID(*g.Winner); ok {
			info.Handle = seat.Handle
		}
		summary.Winner = info
	}
	return summary
}
