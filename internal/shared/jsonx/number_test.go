package jsonx

import (
	"encoding/json"
	"testing"
)

func TestFlexIDAcceptsNumbersAndStrings(t *testing.T) {
	cases := map[string]int64{
		`42`:     42,
		`"42"`:   42,
		`" 42 "`: 42,
		`"7.0"`:  7,
		`null`:   0,
		`""`:     0,
	}

	for input, want := range cases {
		var id FlexID
		if err := json.Unmarshal([]byte(input), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", input, err)
		}
		if id.Int64() != want {
			t.Fatalf("unmarshal %s: got %d, want %d", input, id.Int64(), want)
		}
	}
}

func TestFlexIDRejectsNonNumeric(t *testing.T) {
	var id FlexID
	if err := json.Unmarshal([]byte(`"abc"`), &id); err == nil {
		t.Fatal("expected error for non-numeric string")
	}
}

func TestFlexIDMarshalsAsNumber(t *testing.T) {
	payload := struct {
		WorkflowID FlexID `json:"workflow_id"`
	}{WorkflowID: 99}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"workflow_id":99}` {
		t.Fatalf("got %s", data)
	}
}
