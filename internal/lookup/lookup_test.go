package lookup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

func mustDate(t *testing.T, raw string) crawler.Date {
	t.Helper()
	d, err := crawler.ParseDate(raw)
	require.NoError(t, err)
	return d
}

func TestFileName(t *testing.T) {
	t.Parallel()

	name := FileName(mustDate(t, "2021-04-22"), mustDate(t, "2022-04-22"), crawler.EventTypeOnline)
	assert.Equal(t, "event_lookup__2021_04_22__2022_04_22__ONLINE.json", name)

	name = FileName(mustDate(t, "2020-01-01"), mustDate(t, "2020-12-31"), crawler.EventTypeInternationalLAN)
	assert.Equal(t, "event_lookup__2020_01_01__2020_12_31__INTLLAN.json", name)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	doc := crawler.LookupDocument{}.MergeEvents([]crawler.EventRecord{{
		EventID:    "9999",
		EventURL:   "https://www.hltv.org/events/9999/fixture-cup",
		EventStart: mustDate(t, "2021-05-01"),
		EventEnd:   mustDate(t, "2021-05-03"),
	}})
	doc.AttachMatches("9999", []crawler.MatchRecord{{
		Teams:   []string{"Alpha", "Beta"},
		DemoID:  "88888",
		DemoURL: "https://www.hltv.org/download/demo/88888",
	}})

	path, err := Save(dir, "lookup.json", doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lookup.json"), path)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, loaded, "9999")
	assert.Equal(t, "2021-05-03", loaded["9999"].EventData.EventEnd.String())
	require.Len(t, loaded["9999"].Matches, 1)
	assert.Equal(t, "88888", loaded["9999"].Matches[0].DemoID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSaveOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := crawler.LookupDocument{}.MergeEvents([]crawler.EventRecord{{EventID: "1", EventNameFull: "old"}})
	second := crawler.LookupDocument{}.MergeEvents([]crawler.EventRecord{{EventID: "1", EventNameFull: "new"}})

	_, err := Save(dir, "l.json", first)
	require.NoError(t, err)
	path, err := Save(dir, "l.json", second)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded["1"].EventData.EventNameFull)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)
}
