package board

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestMoveJSON(t *testing.T) {
	tests := []struct {
		name string
		move Move
		want string
	}{
		{
			"jumping",
			NewMove(MoveJumping, Vec2{6, 7}, Vec2{5, 5}),
			`{"type":"jumpingMove","from":[6,7],"to":[5,5]}`,
		},
		{
			"sliding",
			NewMove(MoveSliding, Vec2{4, 6}, Vec2{4, 4}),
			`{"type":"slidingMove","from":[4,6],"to":[4,4]}`,
		},
		{
			"en passant",
			NewMove(MoveEnPassant, Vec2{4, 3}, Vec2{3, 2}),
			`{"type":"enPassant","from":[4,3],"to":[3,2]}`,
		},
		{
			"promotion",
			NewPromotion(Vec2{0, 1}, Vec2{0, 0}, Queen),
			`{"type":"promotion","from":[0,1],"to":[0,0],"into":"queen"}`,
		},
		{
			"castle",
			NewCastle(Vec2{4, 7}, Vec2{6, 7}, Vec2{7, 7}, Vec2{5, 7}),
			`{"type":"castle","from":[4,7],"to":[6,7],"rookFrom":[7,7],"rookTo":[5,7]}`,
		},
		{
			"turn end",
			NewTurnEnd(),
			`{"type":"turnEnd","from":[-1,-1],"to":[-1,-1]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.move)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Fatalf("Marshal = %s, want %s", data, tt.want)
			}
			var back Move
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if back != tt.move {
				t.Fatalf("round trip = %+v, want %+v", back, tt.move)
			}
		})
	}
}

func TestMoveUnmarshalRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown type", `{"type":"teleport","from":[0,0],"to":[1,1]}`},
		{"promotion without into", `{"type":"promotion","from":[0,1],"to":[0,0]}`},
		{"castle without rook squares", `{"type":"castle","from":[4,7],"to":[6,7]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Move
			if err := json.Unmarshal([]byte(tt.data), &m); err == nil {
				t.Fatalf("Unmarshal accepted %s", tt.data)
			}
		})
	}
}

func TestVec2JSON(t *testing.T) {
	data, err := json.Marshal(Vec2{3, 5})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "[3,5]" {
		t.Fatalf("Marshal = %s, want [3,5]", data)
	}
	var v Vec2
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v != (Vec2{3, 5}) {
		t.Fatalf("round trip = %v", v)
	}
}

func TestPieceJSON(t *testing.T) {
	one := 1
	tests := []struct {
		name  string
		piece Piece
		want  string
	}{
		{
			"fresh king",
			Piece{Kind: King, Owner: White},
			`{"kind":"king","owner":"white","hasMoved":false}`,
		},
		{
			"double-advanced pawn",
			Piece{Kind: Pawn, Owner: Black, HasMoved: true, TurnsSinceDoubleAdvance: &one},
			`{"kind":"pawn","owner":"black","hasMoved":true,"turnsSinceDoubleAdvance":1}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.piece)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Fatalf("Marshal = %s, want %s", data, tt.want)
			}
			var back Piece
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !reflect.DeepEqual(back, tt.piece) {
				t.Fatalf("round trip = %+v, want %+v", back, tt.piece)
			}
		})
	}
}

func TestTileJSON(t *testing.T) {
	data, err := json.Marshal(Tile{Floor: FloorLight})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"floor":"light","piece":null}` {
		t.Fatalf("Marshal = %s", data)
	}
}

func TestBoardSetupJSON(t *testing.T) {
	classic := ClassicSetup()
	data, err := json.Marshal(classic)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `[["rook","knight","bishop","queen","king","bishop","knight","rook"],` +
		`["pawn","pawn","pawn","pawn","pawn","pawn","pawn","pawn"]]`
	if string(data) != want {
		t.Fatalf("Marshal = %s, want %s", data, want)
	}
	var back BoardSetup
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back, classic) {
		t.Fatal("round trip changed the setup")
	}

	var sparse BoardSetup
	sparse[0][4] = King.Ptr()
	data, err = json.Marshal(sparse)
	if err != nil {
		t.Fatalf("Marshal sparse: %v", err)
	}
	var sparseBack BoardSetup
	if err := json.Unmarshal(data, &sparseBack); err != nil {
		t.Fatalf("Unmarshal sparse: %v", err)
	}
	if !reflect.DeepEqual(sparseBack, sparse) {
		t.Fatal("round trip changed the sparse setup")
	}
}

func TestTimerJSON(t *testing.T) {
	running := Timer{running: true, endTime: 1600}
	data, err := json.Marshal(running)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"type":"running","endTime":1600}` {
		t.Fatalf("Marshal = %s", data)
	}
	paused := NewTimer(300)
	data, err = json.Marshal(paused)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"type":"paused","timeRemaining":300}` {
		t.Fatalf("Marshal = %s", data)
	}
	var back Timer
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != paused {
		t.Fatalf("round trip = %+v, want %+v", back, paused)
	}
}

func TestBoardRoundTrip(t *testing.T) {
	b, err := New("g1", "alice", "bob", ClassicSetup(), ClassicSetup())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, ok := b.EvaluateTurn(4, 1); !ok {
		t.Fatal("EvaluateTurn rejected e4")
	}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Board
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(&back, b) {
		t.Fatal("round trip changed the board")
	}
}
