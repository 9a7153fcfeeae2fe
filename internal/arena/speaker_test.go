package arena

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestSpeakerJSON(t *testing.T) {
	data, err := json.Marshal(CurrentData{NextPlayer: GameMaster(), ActivePlayers: []string{"Alice"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"currentTurn":0,"activePlayers":["Alice"],"nextPlayer":"GameMaster","lastEliminationTurn":0}`
	if string(data) != want {
		t.Fatalf("json = %s, want %s", data, want)
	}

	var decoded CurrentData
	if err := json.Unmarshal([]byte(`{"nextPlayer":"Alice"}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.NextPlayer.IsGameMaster() || decoded.NextPlayer.Handle() != "Alice" {
		t.Fatalf("nextPlayer = %v, want Alice", decoded.NextPlayer)
	}

	if err := json.Unmarshal([]byte(`{}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestPlayerReservedHandleIsGameMaster(t *testing.T) {
	if !Player("gamemaster").IsGameMaster() {
		t.Fatal("expected reserved handle to map to GameMaster")
	}
	if !Player("").IsGameMaster() {
		t.Fatal("expected empty handle to map to GameMaster")
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("advance: %w", Wrap(CodeNotFound, "game 7 not found", errors.New("no rows")))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected %v to match ErrNotFound", err)
	}
	if errors.Is(err, ErrConflict) {
		t.Fatal("unexpected conflict match")
	}
	if got := CodeOf(err); got != CodeNotFound {
		t.Fatalf("CodeOf = %s, want %s", got, CodeNotFound)
	}
	if got := CodeOf(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf = %s, want %s", got, CodeUnknown)
	}
	if CodeNotFound.HTTPStatus() != http.StatusNotFound {
		t.Fatal("expected 404 for not found")
	}
	if CodeInvalidArgument.HTTPStatus() != http.StatusBadRequest {
		t.Fatal("expected 400 for invalid argument")
	}
	if CodeAlreadyConcluded.HTTPStatus() != http.StatusInternalServerError {
		t.Fatal("expected 500 for already concluded")
	}
}
