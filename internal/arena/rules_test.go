package arena

import (
	"errors"
	"math"
	"testing"
)

func TestResolveNextSpeaker(t *testing.T) {
	active := []string{"Alice", "Bob", "Carol"}
	tests := []struct {
		name    string
		text    string
		current Speaker
		want    Speaker
	}{
		{
			name:    "first valid mention wins",
			text:    "hello @Alice and @Bob",
			current: Player("Carol"),
			want:    Player("Alice"),
		},
		{
			name:    "self mention skipped",
			text:    "I am @Carol, over to @bob.",
			current: Player("Carol"),
			want:    Player("Bob"),
		},
		{
			name:    "only self mention defaults to game master",
			text:    "@Carol speaks for @Carol",
			current: Player("Carol"),
			want:    GameMaster(),
		},
		{
			name:    "no mention defaults to game master",
			text:    "the wind howls",
			current: Player("Alice"),
			want:    GameMaster(),
		},
		{
			name:    "inactive handle ignored",
			text:    "@Dave you there? @alice then",
			current: GameMaster(),
			want:    Player("Alice"),
		},
		{
			name:    "game master addressable",
			text:    "@GameMaster what now?",
			current: Player("Bob"),
			want:    GameMaster(),
		},
		{
			name:    "partial handle is not a mention",
			text:    "@Alicette and @Bob",
			current: GameMaster(),
			want:    Player("Bob"),
		},
		{
			name:    "email address is not a mention",
			text:    "write to carol@Alice.com or ask @Bob",
			current: GameMaster(),
			want:    Player("Bob"),
		},
		{
			name:    "game master self mention skipped",
			text:    "@GameMaster rules. @Carol, begin.",
			current: GameMaster(),
			want:    Player("Carol"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveNextSpeaker(tt.text, tt.current, active)
			if !got.Is(tt.want) || got.Handle() != tt.want.Handle() {
				t.Fatalf("ResolveNextSpeaker(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestResolveNextSpeakerPrefersLongestHandle(t *testing.T) {
	active := []string{"Ali", "Alice"}
	got := ResolveNextSpeaker("go @Alice!", GameMaster(), active)
	if got.Handle() != "Alice" {
		t.Fatalf("next = %v, want Alice", got)
	}
}

func TestEliminationDue(t *testing.T) {
	for turn := 0; turn < 12; turn++ {
		current := CurrentData{CurrentTurn: turn}
		if EliminationDue(current, 4) {
			t.Fatalf("elimination due at turn %d, want first at 12", turn)
		}
	}
	if !EliminationDue(CurrentData{CurrentTurn: 12}, 4) {
		t.Fatal("expected elimination at turn 12 with 4 players")
	}
	if EliminationDue(CurrentData{CurrentTurn: 20, LastEliminationTurn: 12}, 4) {
		t.Fatal("elimination due before interval elapsed since last elimination")
	}
	if !EliminationDue(CurrentData{CurrentTurn: 24, LastEliminationTurn: 12}, 4) {
		t.Fatal("expected second elimination at turn 24")
	}
}

func TestComputePayoutInvariant(t *testing.T) {
	for _, cost := range []int64{1, 7, 10, 99, 100, 101, 12345} {
		for players := 2; players <= 12; players++ {
			p := ComputePayout(cost, players)
			pot := cost * int64(players)
			if p.Pot != pot {
				t.Fatalf("pot = %d, want %d", p.Pot, pot)
			}
			if p.Reward+p.Fee != pot {
				t.Fatalf("cost %d players %d: reward %d + fee %d != %d", cost, players, p.Reward, p.Fee, pot)
			}
			if p.Fee != pot/10 {
				t.Fatalf("cost %d players %d: fee = %d, want %d", cost, players, p.Fee, pot/10)
			}
		}
	}
	if got := ComputePayout(100, 3).Reward; got != 270 {
		t.Fatalf("reward = %d, want 270", got)
	}
}

func TestRemoveActive(t *testing.T) {
	active := []string{"Alice", "Bob", "Carol"}
	remaining, removed, ok := RemoveActive(active, "@bob")
	if !ok || removed != "Bob" {
		t.Fatalf("RemoveActive = %q, %v; want Bob, true", removed, ok)
	}
	if len(remaining) != 2 || remaining[0] != "Alice" || remaining[1] != "Carol" {
		t.Fatalf("remaining = %v", remaining)
	}
	if len(active) != 3 {
		t.Fatalf("input mutated: %v", active)
	}
	if _, _, ok := RemoveActive(active, "Dave"); ok {
		t.Fatal("expected unknown handle to be rejected")
	}
}

func TestSpeakerForFallsBackWhenEliminated(t *testing.T) {
	current := CurrentData{ActivePlayers: []string{"Alice", "Carol"}, NextPlayer: Player("Bob")}
	if got := SpeakerFor(current); !got.IsGameMaster() {
		t.Fatalf("SpeakerFor = %v, want GameMaster", got)
	}
	current.NextPlayer = Player("carol")
	if got := SpeakerFor(current); got.Handle() != "Carol" {
		t.Fatalf("SpeakerFor = %v, want Carol", got)
	}
}

func TestValidateHandle(t *testing.T) {
	for _, bad := range []string{"", "  ", "gamemaster", "two words", "a@b"} {
		if err := ValidateHandle(bad); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("ValidateHandle(%q) = %v, want invalid argument", bad, err)
		}
	}
	if err := ValidateHandle("NightStalker0"); err != nil {
		t.Fatalf("ValidateHandle: %v", err)
	}
}

func TestMentionEndsAtNonHandleRune(t *testing.T) {
	active := []string{"Al", "Carol", "Zoë"}
	tests := []struct {
		text string
		want string
	}{
		{text: "hey @Alé, your turn", want: GameMasterHandle},
		{text: "hey @Al, your turn", want: "Al"},
		{text: "ask @Zoë.", want: "Zoë"},
		{text: "ask @Zoëy or @Carol", want: "Carol"},
		{text: "café@Carol", want: GameMasterHandle},
	}
	for _, tt := range tests {
		if got := ResolveNextSpeaker(tt.text, GameMaster(), active); got.Handle() != tt.want {
			t.Fatalf("ResolveNextSpeaker(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
	if got := Mentions("@Alé and @Zoë", active); len(got) != 1 || got[0] != "Zoë" {
		t.Fatalf("Mentions = %v, want [Zoë]", got)
	}
}

func TestStakeAndCreditBounds(t *testing.T) {
	if !StakeFits(math.MaxInt64/3, 3) {
		t.Fatal("largest stake for 3 players rejected")
	}
	if StakeFits(math.MaxInt64/3+1, 3) {
		t.Fatal("overflowing stake accepted")
	}
	if StakeFits(math.MaxInt64/2-1, 3) {
		t.Fatal("stake of MaxInt64/2-1 for 3 players accepted")
	}
	if !CreditFits(math.MaxInt64-10, 10) || CreditFits(math.MaxInt64-10, 11) {
		t.Fatal("credit bound off by one")
	}
}
