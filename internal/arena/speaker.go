package arena

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GameMasterHandle is the wire form of the Game Master speaker. Persisted
// messages and game state use it wherever a player handle could appear.
const GameMasterHandle = "GameMaster"

// Speaker identifies who acts on a turn: the Game Master or one player.
// The zero value is the Game Master.
type Speaker struct {
	handle string
}

// GameMaster returns the Game Master speaker.
func GameMaster() Speaker {
	return Speaker{}
}

// Player returns the speaker for a player handle. The reserved Game Master
// handle maps back to GameMaster so the two forms never diverge.
func Player(handle string) Speaker {
	handle = strings.TrimSpace(handle)
	if handle == "" || strings.EqualFold(handle, GameMasterHandle) {
		return Speaker{}
	}
	return Speaker{handle: handle}
}

// ParseSpeaker converts a persisted handle into a Speaker.
func ParseSpeaker(handle string) Speaker {
	return Player(handle)
}

// IsGameMaster reports whether s is the Game Master.
func (s Speaker) IsGameMaster() bool {
	return s.handle == ""
}

// Handle returns the player handle, or GameMasterHandle for the Game Master.
func (s Speaker) Handle() string {
	if s.IsGameMaster() {
		return GameMasterHandle
	}
	return s.handle
}

// Is reports whether s refers to the same speaker as other, ignoring case.
func (s Speaker) Is(other Speaker) bool {
	return strings.EqualFold(s.handle, other.handle)
}

func (s Speaker) String() string {
	return s.Handle()
}

// MarshalJSON encodes the speaker as its handle string.
func (s Speaker) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Handle())
}

// UnmarshalJSON decodes a handle string. Null and empty decode to GameMaster.
func (s *Speaker) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = GameMaster()
		return nil
	}
	var handle string
	if err := json.Unmarshal(data, &handle); err != nil {
		return fmt.Errorf("decode speaker: %w", err)
	}
	*s = ParseSpeaker(handle)
	return nil
}
