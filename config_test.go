package main_test

import (
	"context"
	_ "embed"
	"strings"
	"testing"

	main "github.com/kappatan/kappatan"
)

//go:embed example.toml
var exampleToml string

func eqcase[T comparable](t *testing.T, name string, val T, eq T) {
	t.Helper()
	if val != eq {
		t.Errorf("wrong %s: want %#v, got %#v", name, eq, val)
	}
}

func TestExampleConfig(t *testing.T) {
	cfg, _, err := main.Load(context.Background(), strings.NewReader(exampleToml))
	if err != nil {
		t.Errorf("failed to load example.toml: %v", err)
	}

	eqcase(t, "DB.KV", cfg.DB.KV, "")
	eqcase(t, "DB.KVFlag", cfg.DB.KVFlag, "")
	eqcase(t, "HTTP.Listen", cfg.HTTP.Listen, ":4959")
	eqcase(t, "Points.Account", cfg.Points.Account, int64(75244893))
	eqcase(t, "TMI.CID", cfg.TMI.CID, `hof5gwx0su6owfnys0nyan9c87zr6t`)
	eqcase(t, "TMI.RedirectURL", cfg.TMI.RedirectURL, `http://localhost`)
	eqcase(t, "TMI.TokenFile", cfg.TMI.TokenFile, `/var/kappatan/tmi_refresh`)
	eqcase(t, "TMI.Rate.Every", cfg.TMI.Rate.Every, 30)
	eqcase(t, "TMI.Rate.Num", cfg.TMI.Rate.Num, 20)
	eqcase(t, "Twitch[`bocchi`].Channels[0]", cfg.Twitch[`bocchi`].Channels[0], `#bocchi`)
	eqcase(t, "Twitch[`bocchi`].Rate.Every", cfg.Twitch[`bocchi`].Rate.Every, 10.1)
	eqcase(t, "Twitch[`bocchi`].Rate.Num", cfg.Twitch[`bocchi`].Rate.Num, 2)
	eqcase(t, "Twitch[`bocchi`].Ignore[0]", cfg.Twitch[`bocchi`].Ignore[0], `nightbot`)
	substrings := []struct {
		name string
		val  string
		has  string
	}{
		{"SecretFile", cfg.SecretFile, "/key"},
		{"DB.SQL", cfg.DB.SQL, "file:"},
		{"TMI.SecretFile", cfg.TMI.SecretFile, "/twitch_client_secret"},
	}
	for _, c := range substrings {
		if !strings.Contains(c.val, c.has) {
			t.Errorf("wrong %s: %q does not contain %q", c.name, c.val, c.has)
		}
	}
}
