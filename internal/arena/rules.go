package arena

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// EliminationFactor multiplies the initial player count to get the number of
// turns between eliminations.
const EliminationFactor = 3

// FeeDivisor takes a tenth of the pot as the house fee.
const FeeDivisor = 10

// EliminationInterval returns the number of turns between eliminations for a
// game seated with initialPlayers.
func EliminationInterval(initialPlayers int) int {
	return initialPlayers * EliminationFactor
}

// EliminationDue reports whether the turn about to be played must start with
// an elimination.
func EliminationDue(current CurrentData, initialPlayers int) bool {
	if current.CurrentTurn <= 0 {
		return false
	}
	return current.CurrentTurn >= current.LastEliminationTurn+EliminationInterval(initialPlayers)
}

// Payout splits the pot of a finished game.
type Payout struct {
	Pot    int64 `json:"pot"`
	Fee    int64 `json:"fee"`
	Reward int64 `json:"reward"`
}

// ComputePayout returns the pot, the floored 10% fee and the winner reward.
func ComputePayout(cost int64, players int) Payout {
	pot := cost * int64(players)
	fee := pot / FeeDivisor
	if pot%FeeDivisor != 0 && pot < 0 {
		fee--
	}
	return Payout{Pot: pot, Fee: fee, Reward: pot - fee}
}

// StakeFits reports whether a pot of cost from each of players fits in an
// int64.
func StakeFits(cost int64, players int) bool {
	return players <= 0 || cost <= math.MaxInt64/int64(players)
}

// CreditFits reports whether reward can be added to balance without
// overflowing.
func CreditFits(balance, reward int64) bool {
	return reward <= math.MaxInt64-balance
}

// FindActive returns the canonical active handle matching handle, ignoring case.
func FindActive(active []string, handle string) (string, bool) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	for _, candidate := range active {
		if strings.EqualFold(candidate, handle) {
			return candidate, true
		}
	}
	return "", false
}

// RemoveActive returns active without handle. The input slice is not modified.
func RemoveActive(active []string, handle string) ([]string, string, bool) {
	canonical, ok := FindActive(active, handle)
	if !ok {
		return active, "", false
	}
	remaining := make([]string, 0, len(active)-1)
	for _, candidate := range active {
		if candidate != canonical {
			remaining = append(remaining, candidate)
		}
	}
	return remaining, canonical, true
}

// SpeakerFor returns who acts on the next turn. A next player that is no
// longer active hands the turn back to the Game Master.
func SpeakerFor(current CurrentData) Speaker {
	next := current.NextPlayer
	if next.IsGameMaster() {
		return next
	}
	handle, ok := FindActive(current.ActivePlayers, next.Handle())
	if !ok {
		return GameMaster()
	}
	return Player(handle)
}

// ResolveNextSpeaker scans text for @mentions in order of appearance and
// returns the first one naming an active player or the Game Master that is
// not the current speaker. Without such a mention the Game Master is next.
func ResolveNextSpeaker(text string, current Speaker, active []string) Speaker {
	candidates := make([]string, 0, len(active)+1)
	candidates = append(candidates, active...)
	candidates = append(candidates, GameMasterHandle)

	for i := 0; i < len(text); i++ {
		if text[i] != '@' {
			continue
		}
		// an @ inside a word (e.g. an email address) is not a mention
		if handleRuneBefore(text, i) {
			continue
		}
		handle := longestMention(text[i+1:], candidates)
		if handle == "" {
			continue
		}
		speaker := Player(handle)
		if speaker.Is(current) {
			continue
		}
		return speaker
	}
	return GameMaster()
}

// Mentions lists the distinct handles mentioned in text that match candidates.
func Mentions(text string, candidates []string) []string {
	var found []string
	seen := make(map[string]bool)
	for i := 0; i < len(text); i++ {
		if text[i] != '@' || handleRuneBefore(text, i) {
			continue
		}
		handle := longestMention(text[i+1:], candidates)
		if handle == "" || seen[handle] {
			continue
		}
		seen[handle] = true
		found = append(found, handle)
	}
	return found
}

func longestMention(rest string, candidates []string) string {
	best := ""
	for _, candidate := range candidates {
		if candidate == "" || len(candidate) <= len(best) || len(candidate) > len(rest) {
			continue
		}
		if !strings.EqualFold(rest[:len(candidate)], candidate) {
			continue
		}
		if r, size := utf8.DecodeRuneInString(rest[len(candidate):]); size > 0 && isHandleRune(r) {
			continue
		}
		best = candidate
	}
	return best
}

// isHandleRune reports whether r can continue a handle.
func isHandleRune(r rune) bool {
	return r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func handleRuneBefore(text string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return isHandleRune(r)
}

// ValidateHandle checks a handle before a user is created.
func ValidateHandle(handle string) error {
	if strings.TrimSpace(handle) == "" {
		return New(CodeInvalidArgument, "handle is required")
	}
	if strings.EqualFold(handle, GameMasterHandle) {
		return New(CodeInvalidArgument, "handle GameMaster is reserved")
	}
	for _, r := range handle {
		if r == '@' || unicode.IsSpace(r) {
			return WithMetadata(CodeInvalidArgument, "handle must not contain whitespace or @", map[string]string{"handle": handle})
		}
	}
	return nil
}
