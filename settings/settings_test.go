package settings

import (
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStore(t *testing.T) {
	s := &Store{Path: filepath.Join(t.TempDir(), "settings.yaml")}
	if _, err := s.Load(); !errors.Is(err, ErrNoSettings) {
		t.Fatalf("Load() = %v, want ErrNoSettings", err)
	}
	want := Settings{
		HomePos:       12,
		MaxCW:         -1536,
		MaxCCW:        1536,
		LimitsEnabled: true,
		WLAN:          WLAN{SSID: "dome", Password: "secret", Security: 3},
	}
	if err := s.Save(want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("unexpected settings: got(-)/want(+):\n%s", diff)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := ioutil.WriteFile(path, []byte("home_pos: [1"), 0600); err != nil {
		t.Fatal(err)
	}
	s := &Store{Path: path}
	if _, err := s.Load(); err == nil || errors.Is(err, ErrNoSettings) {
		t.Errorf("Load() = %v, want a parse error", err)
	}
}

func TestDefaults(t *testing.T) {
	d := Defaults(0.05970731707)
	if d.MaxCW != 1507 || d.MaxCCW != -1507 || !d.Clockwise || d.LimitsEnabled || d.HomePos != 0 {
		t.Errorf("Defaults() = %+v", d)
	}
}
