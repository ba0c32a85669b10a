// internal/pages/devices.go
package pages

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/flowcheck/internal/locator"
)

// Device is one row of the device list. Fields holds whatever the row
// rendered: configured fields that were missing are absent, and data-*
// attributes on the row are kept as extra fields.
type Device struct {
	Name   string            `json:"name" yaml:"name"`
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Text   string            `json:"text" yaml:"text"`
}

func (d Device) String() string {
	if len(d.Fields) == 0 {
		return d.Name
	}
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, d.Fields[k]))
	}
	return fmt.Sprintf("%s (%s)", d.Name, strings.Join(parts, ", "))
}

// RowSpec holds the CSS selectors used to pick rows out of the list container
// and fields out of each row.
type RowSpec struct {
	Row    string
	Name   string
	Fields map[string]string
}

// Validate compiles every selector.
func (s RowSpec) Validate() error {
	if strings.TrimSpace(s.Row) == "" {
		return fmt.Errorf("row selector is required")
	}
	check := func(what, sel string) error {
		if sel == "" {
			return nil
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("%s selector %q: %w", what, sel, err)
		}
		return nil
	}
	if err := check("row", s.Row); err != nil {
		return err
	}
	if err := check("name", s.Name); err != nil {
		return err
	}
	for key, sel := range s.Fields {
		if err := check("field "+key, sel); err != nil {
			return err
		}
	}
	return nil
}

// ParseDevices extracts devices from the outer HTML of the list container.
// A container without rows yields an empty, non-nil slice. Table header rows
// (no td cells) are skipped.
func ParseDevices(fragment string, spec RowSpec) ([]Device, error) {
	doc, err := parseFragment(fragment)
	if err != nil {
		return nil, fmt.Errorf("failed to parse device list: %w", err)
	}

	devices := []Device{}
	eachRow(doc, spec, func(row *goquery.Selection) {
		devices = append(devices, parseRow(row, spec))
	})
	return devices, nil
}

func eachRow(doc *goquery.Document, spec RowSpec, fn func(row *goquery.Selection)) {
	doc.Find(spec.Row).Each(func(_ int, row *goquery.Selection) {
		if goquery.NodeName(row) == "tr" && row.Find("td").Length() == 0 {
			return
		}
		fn(row)
	})
}

// countRows is ParseDevices without the per-row work.
func countRows(fragment string, spec RowSpec) (int, error) {
	doc, err := parseFragment(fragment)
	if err != nil {
		return 0, err
	}
	n := 0
	eachRow(doc, spec, func(*goquery.Selection) { n++ })
	return n, nil
}

func parseRow(row *goquery.Selection, spec RowSpec) Device {
	d := Device{Text: locator.NormalizeSpace(row.Text())}

	if spec.Name != "" {
		d.Name = locator.NormalizeSpace(row.Find(spec.Name).First().Text())
	}
	if d.Name == "" {
		d.Name = d.Text
	}

	for key, sel := range spec.Fields {
		match := row.Find(sel)
		if match.Length() == 0 {
			continue
		}
		if d.Fields == nil {
			d.Fields = make(map[string]string)
		}
		d.Fields[key] = locator.NormalizeSpace(match.First().Text())
	}

	for _, attr := range row.Nodes[0].Attr {
		key, ok := strings.CutPrefix(attr.Key, "data-")
		if !ok || key == "" {
			continue
		}
		key = strings.ReplaceAll(key, "-", "_")
		if _, taken := d.Fields[key]; taken {
			continue
		}
		if d.Fields == nil {
			d.Fields = make(map[string]string)
		}
		d.Fields[key] = attr.Val
	}
	return d
}

// parseFragment parses fragment in the context its root element needs, so a
// bare <tbody> or <tr> survives the HTML parser's table rules.
func parseFragment(fragment string) (*goquery.Document, error) {
	parent := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	switch leadingTag(fragment) {
	case "tbody", "thead", "tfoot", "caption", "colgroup":
		parent = &html.Node{Type: html.ElementNode, Data: "table", DataAtom: atom.Table}
	case "tr":
		parent = &html.Node{Type: html.ElementNode, Data: "tbody", DataAtom: atom.Tbody}
	case "td", "th":
		parent = &html.Node{Type: html.ElementNode, Data: "tr", DataAtom: atom.Tr}
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return nil, err
	}
	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return goquery.NewDocumentFromNode(root), nil
}

func leadingTag(fragment string) string {
	s := strings.TrimSpace(fragment)
	if !strings.HasPrefix(s, "<") {
		return ""
	}
	s = s[1:]
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	if end < 0 {
		end = len(s)
	}
	return strings.ToLower(s[:end])
}
