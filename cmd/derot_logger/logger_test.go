package main

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFlattenStatus(t *testing.T) {
	var status interface{}
	if err := json.Unmarshal([]byte(`{
		"State": "tracking",
		"AngleDeg": 1.5,
		"LimitsEnabled": true,
		"Mount": {"Alt": 30, "Az": [1, 2]}
	}`), &status); err != nil {
		t.Fatal(err)
	}
	fields := make(map[string]interface{})
	flattenStatus(fields, status, "")
	want := map[string]interface{}{
		"State":         "tracking",
		"AngleDeg":      1.5,
		"LimitsEnabled": true,
		"Mount.Alt":     30.0,
		"Mount.Az.0":    1.0,
		"Mount.Az.1":    2.0,
	}
	if diff := cmp.Diff(fields, want); diff != "" {
		t.Errorf("unexpected fields: got(-)/want(+):\n%s", diff)
	}
}
