package config

import (
	"reflect"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	if got := getEnv("TEST_STR", "fallback"); got != "value" {
		t.Errorf("got %q", got)
	}
	if got := getEnv("TEST_STR_MISSING", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
}

func TestDurationEnv(t *testing.T) {
	t.Setenv("TEST_DUR", "250ms")
	if got := durationEnv("TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("got %v", got)
	}
	t.Setenv("TEST_DUR_BAD", "soon")
	if got := durationEnv("TEST_DUR_BAD", time.Second); got != time.Second {
		t.Errorf("got %v, want fallback", got)
	}
}

func TestBoolEnv(t *testing.T) {
	tests := []struct {
		val      string
		fallback bool
		want     bool
	}{
		{"1", false, true},
		{"true", false, true},
		{"0", true, false},
		{"false", true, false},
		{"maybe", true, true},
		{"", false, false},
	}
	for _, tc := range tests {
		t.Setenv("TEST_BOOL", tc.val)
		if got := boolEnv("TEST_BOOL", tc.fallback); got != tc.want {
			t.Errorf("boolEnv(%q, %v) = %v, want %v", tc.val, tc.fallback, got, tc.want)
		}
	}
}

func TestIntEnv(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := intEnv("TEST_INT", 7); got != 42 {
		t.Errorf("got %d", got)
	}
	t.Setenv("TEST_INT_BAD", "many")
	if got := intEnv("TEST_INT_BAD", 7); got != 7 {
		t.Errorf("got %d, want fallback", got)
	}
}

func TestListEnv(t *testing.T) {
	t.Setenv("TEST_LIST", "helmet, vest ,gloves,")
	want := []string{"helmet", "vest", "gloves"}
	if got := listEnv("TEST_LIST", nil); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	t.Setenv("TEST_LIST_EMPTY", " , ,")
	fallback := []string{"helmet"}
	if got := listEnv("TEST_LIST_EMPTY", fallback); !reflect.DeepEqual(got, fallback) {
		t.Errorf("got %v, want fallback", got)
	}
}
