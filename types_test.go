package samp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchMType(t *testing.T) {
	cases := []struct {
		pattern, mtype string
		want           bool
	}{
		{"*", "table.load.fits", true},
		{"table.load.fits", "table.load.fits", true},
		{"table.load.*", "table.load.fits", true},
		{"table.*", "table.load.fits", true},
		{"samp.app.*", "samp.app.ping", true},
		{"samp.app.*", "samp.application", false},
		{"table.load.fits", "table.load.votable", false},
		{"table.load", "table.load.fits", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchMType(tc.pattern, tc.mtype), "%s ~ %s", tc.pattern, tc.mtype)
	}
}

func TestSubscriptionsMatches(t *testing.T) {
	subs := Subscriptions{"samp.app.*": {}, MTypeTableLoadFITS: {}}
	assert.True(t, subs.Matches(MTypePing))
	assert.True(t, subs.Matches(MTypeTableLoadFITS))
	assert.False(t, subs.Matches(MTypeTableHighlightRow))
	assert.Equal(t, []string{"samp.app.*", MTypeTableLoadFITS}, subs.MTypes())
}

func TestMessageWire(t *testing.T) {
	msg := NewMessage(MTypeTableLoadFITS, Params{"url": "file:///x.fits"})
	msg.Extra = map[string]any{"samp.msgid": "m1"}

	got, err := messageFromWire(msg.wire())
	require.NoError(t, err)
	assert.Equal(t, msg.MType, got.MType)
	assert.Equal(t, "file:///x.fits", got.Params["url"])
	assert.Equal(t, "m1", got.Extra["samp.msgid"])

	_, err = messageFromWire(map[string]any{keyParams: map[string]any{}})
	assert.Error(t, err)
	_, err = messageFromWire("nope")
	assert.Error(t, err)
}

func TestResponseWire(t *testing.T) {
	got, err := responseFromWire(ErrorResponse("boom").wire())
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "boom", got.ErrorText)
	assert.False(t, got.IsOK())

	got, err = responseFromWire(Response{}.wire())
	require.NoError(t, err)
	assert.True(t, got.IsOK())
}

func TestParamsGetters(t *testing.T) {
	p := Params{"row": "12", "ra": "10.5", "n": 3, "rows": []any{"1", "2", "5"}}

	row, ok := p.Int("row")
	assert.True(t, ok)
	assert.Equal(t, 12, row)

	ra, ok := p.Float("ra")
	assert.True(t, ok)
	assert.Equal(t, 10.5, ra)

	s, ok := p.String("n")
	assert.True(t, ok)
	assert.Equal(t, "3", s)

	rows, ok := p.Ints("rows")
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2, 5}, rows)

	p.Set("bad", []any{"1", "x"})
	_, ok = p.Ints("bad")
	assert.False(t, ok)
}

func TestTableMessages(t *testing.T) {
	sel := SelectRowsParams{URL: "file:///t.fits", TableID: "t.fits", Name: "t.fits", Rows: []int{3, 6, 15}}
	msg := sel.Message()
	assert.Equal(t, MTypeTableSelectRows, msg.MType)
	assert.Equal(t, []any{"3", "6", "15"}, msg.Params["row-list"])

	back, err := ParseSelectRows(msg.Params)
	require.NoError(t, err)
	assert.Equal(t, sel, back)

	hl, err := ParseHighlightRow(HighlightRowParams{URL: "u", Row: 7}.Message().Params)
	require.NoError(t, err)
	assert.Equal(t, 7, hl.Row)

	_, err = ParseTableLoad(Params{"name": "x"})
	assert.Error(t, err)
}

func TestMetadataMerge(t *testing.T) {
	md := DefaultMetadata().Merge(Metadata{MetaName: "Custom", MetaDescriptionText: " "})
	assert.Equal(t, "Custom", md.Name())
	assert.Equal(t, "Go SAMP Module", md[MetaDescriptionText])
	assert.Equal(t, DefaultIconURL, md[MetaIconURL])
	assert.Equal(t, []string{MetaClientVersion, MetaDescriptionText, MetaDocumentationURL, MetaIconURL, MetaName}, md.Keys())
}
