package samp

import (
	"fmt"
	"strconv"
)

// Typed parameter sets for the table.* MTypes exchanged with tools like TOPCAT.

// TableLoadParams is the payload of table.load.fits and table.load.votable.
type TableLoadParams struct {
	URL     string
	TableID string
	Name    string
}

func (t TableLoadParams) Message() Message {
	p := Params{"url": t.URL}
	if t.TableID != "" {
		p["table-id"] = t.TableID
	}
	if t.Name != "" {
		p["name"] = t.Name
	}
	return NewMessage(MTypeTableLoadFITS, p)
}

func ParseTableLoad(p Params) (TableLoadParams, error) {
	url, err := requireString(p, "url")
	if err != nil {
		return TableLoadParams{}, err
	}
	out := TableLoadParams{URL: url}
	out.TableID, _ = p.String("table-id")
	out.Name, _ = p.String("name")
	return out, nil
}

// HighlightRowParams is the payload of table.highlight.row.
type HighlightRowParams struct {
	URL     string
	TableID string
	Name    string
	Row     int
}

func (h HighlightRowParams) Message() Message {
	return NewMessage(MTypeTableHighlightRow, Params{
		"url":      h.URL,
		"table-id": h.TableID,
		"name":     h.Name,
		"row":      strconv.Itoa(h.Row),
	})
}

func ParseHighlightRow(p Params) (HighlightRowParams, error) {
	url, err := requireString(p, "url")
	if err != nil {
		return HighlightRowParams{}, err
	}
	row, ok := p.Int("row")
	if !ok {
		return HighlightRowParams{}, fmt.Errorf("missing or invalid param %q", "row")
	}
	out := HighlightRowParams{URL: url, Row: row}
	out.TableID, _ = p.String("table-id")
	out.Name, _ = p.String("name")
	return out, nil
}

// SelectRowsParams is the payload of table.select.rowList.
type SelectRowsParams struct {
	URL     string
	TableID string
	Name    string
	Rows    []int
}

func (s SelectRowsParams) Message() Message {
	return NewMessage(MTypeTableSelectRows, Params{
		"url":      s.URL,
		"table-id": s.TableID,
		"name":     s.Name,
		"row-list": EncodeInts(s.Rows),
	})
}

func ParseSelectRows(p Params) (SelectRowsParams, error) {
	url, err := requireString(p, "url")
	if err != nil {
		return SelectRowsParams{}, err
	}
	rows, ok := p.Ints("row-list")
	if !ok {
		return SelectRowsParams{}, fmt.Errorf("missing or invalid param %q", "row-list")
	}
	out := SelectRowsParams{URL: url, Rows: rows}
	out.TableID, _ = p.String("table-id")
	out.Name, _ = p.String("name")
	return out, nil
}
