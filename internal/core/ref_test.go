package core

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestRefUnmarshal(t *testing.T) {
	cases := []struct {
		name      string
		in        string
		wantID    string
		populated bool
	}{
		{"bare id", `"cat-1"`, "cat-1", false},
		{"object with id", `{"id":"cat-2","name":"Food","type":"expense"}`, "cat-2", true},
		{"object with mongo id", `{"_id":"cat-3","name":"Rent"}`, "cat-3", true},
		{"null", `null`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var r Ref[Category]
			if err := json.Unmarshal([]byte(tc.in), &r); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if r.ID() != tc.wantID {
				t.Fatalf("expected id %q, got %q", tc.wantID, r.ID())
			}
			if _, ok := r.Value(); ok != tc.populated {
				t.Fatalf("expected populated=%v", tc.populated)
			}
		})
	}
}

func TestRefUnmarshalRejectsOtherShapes(t *testing.T) {
	for _, in := range []string{`42`, `{"name":"no id"}`, `[1]`} {
		var r Ref[Account]
		if err := json.Unmarshal([]byte(in), &r); err == nil {
			t.Fatalf("%s: expected error", in)
		}
	}
}

func TestRefMarshal(t *testing.T) {
	b, err := json.Marshal(RefID[Category]("cat-1"))
	if err != nil || string(b) != `"cat-1"` {
		t.Fatalf("id ref: %s %v", b, err)
	}

	pop := Populated("cat-2", Category{ID: "cat-2", Name: "Food", Kind: CategoryExpense})
	b, err = json.Marshal(pop)
	if err != nil {
		t.Fatalf("populated ref: %v", err)
	}
	var back Category
	if err := json.Unmarshal(b, &back); err != nil || back.Name != "Food" {
		t.Fatalf("populated ref should render the document, got %s", b)
	}
}
