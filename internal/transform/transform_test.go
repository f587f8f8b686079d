package transform

import (
	"reflect"
	"testing"
)

func TestApplyChain(t *testing.T) {
	got, err := Apply([]string{"trim", "title"}, "  frank herbert ", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Frank Herbert" {
		t.Errorf("expected Frank Herbert, got %v", got)
	}
}

func TestSplitDropsBlanksAndTrims(t *testing.T) {
	got, err := Apply([]string{"split:;"}, "scifi; classic ;;  ", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []any{"scifi", "classic"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTransformsDistributeOverArrays(t *testing.T) {
	got, err := Apply([]string{"split:,", "upper"}, "a,b", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []any{"A", "B"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCast(t *testing.T) {
	if got, _ := Apply([]string{"cast:int"}, "42", nil); got != int64(42) {
		t.Errorf("expected int64 42, got %v (%T)", got, got)
	}
	if got, _ := Apply([]string{"cast:float"}, "3.5", nil); got != 3.5 {
		t.Errorf("expected 3.5, got %v", got)
	}
	if got, _ := Apply([]string{"cast:bool"}, "TRUE", nil); got != true {
		t.Errorf("expected true, got %v", got)
	}
	if got, _ := Apply([]string{"cast:string"}, 7, nil); got != "7" {
		t.Errorf("expected \"7\", got %v", got)
	}
	if _, err := Apply([]string{"cast:int"}, "not a number", nil); err == nil {
		t.Error("expected cast error")
	}
}

func TestReplacePrefixSuffix(t *testing.T) {
	got, err := Apply([]string{"replace:_= ", "prefix:c ", "suffix:!"}, "hello_world", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "c hello world!" {
		t.Errorf("unexpected result: %v", got)
	}
}

func TestCoalesceReadsRow(t *testing.T) {
	row := map[string]any{"fallback": "backup"}

	got, err := Apply([]string{"coalesce:fallback"}, "", row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "backup" {
		t.Errorf("expected backup, got %v", got)
	}

	got, err = Apply([]string{"coalesce:fallback"}, "primary", row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "primary" {
		t.Errorf("non-empty value must win, got %v", got)
	}
}

func TestNilPassesThrough(t *testing.T) {
	got, err := Apply([]string{"upper", "cast:int"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestValidate(t *testing.T) {
	valid := []string{"trim", "upper", "split:;", "cast:int", "replace:a=b", "coalesce:col"}
	for _, spec := range valid {
		if err := Validate(spec); err != nil {
			t.Errorf("expected %q valid: %v", spec, err)
		}
	}

	invalid := []string{"explode", "cast:date", "split:", "replace:ab", "cast:"}
	for _, spec := range invalid {
		if err := Validate(spec); err == nil {
			t.Errorf("expected %q invalid", spec)
		}
	}
}

func TestValidateAllReportsPosition(t *testing.T) {
	err := ValidateAll([]string{"trim", "bogus"})
	if err == nil {
		t.Fatal("expected error")
	}
}
