package xmlrpc

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
)

// Fault is an XML-RPC fault. It is returned as an error by Client.Call and can be
// returned by a HandlerFunc to control the fault code sent to the caller.
type Fault struct {
	Code   int
	String string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("xmlrpc fault %d: %s", f.Code, f.String)
}

// Standard fault codes used by Server.
const (
	FaultParse          = -32700
	FaultMethodNotFound = -32601
	FaultInvalidParams  = -32602
	FaultInternal       = -32603
	FaultApplication    = 1
)

// EncodeCall builds a methodCall document.
func EncodeCall(method string, params []any) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&b, []byte(method)); err != nil {
		return nil, err
	}
	b.WriteString("</methodName><params>")
	for i, p := range params {
		b.WriteString("<param>")
		if err := encodeValue(&b, p); err != nil {
			return nil, errors.Wrapf(err, "param %d of %s", i, method)
		}
		b.WriteString("</param>")
	}
	b.WriteString("</params></methodCall>")
	return b.Bytes(), nil
}

// EncodeResponse builds a methodResponse document carrying a single value.
func EncodeResponse(v any) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString("<methodResponse><params><param>")
	if err := encodeValue(&b, v); err != nil {
		return nil, err
	}
	b.WriteString("</param></params></methodResponse>")
	return b.Bytes(), nil
}

// EncodeFault builds a methodResponse document carrying a fault.
func EncodeFault(f *Fault) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString("<methodResponse><fault>")
	// A map of int and string always encodes.
	_ = encodeValue(&b, map[string]any{
		"faultCode":   f.Code,
		"faultString": f.String,
	})
	b.WriteString("</fault></methodResponse>")
	return b.Bytes()
}

func encodeValue(b *bytes.Buffer, v any) error {
	b.WriteString("<value>")
	switch t := v.(type) {
	case nil:
		b.WriteString("<string></string>")
	case string:
		b.WriteString("<string>")
		if err := xml.EscapeText(b, []byte(t)); err != nil {
			return err
		}
		b.WriteString("</string>")
	case bool:
		if t {
			b.WriteString("<boolean>1</boolean>")
		} else {
			b.WriteString("<boolean>0</boolean>")
		}
	case int:
		fmt.Fprintf(b, "<int>%d</int>", t)
	case int32:
		fmt.Fprintf(b, "<int>%d</int>", t)
	case int64:
		fmt.Fprintf(b, "<int>%d</int>", t)
	case float64:
		b.WriteString("<double>" + strconv.FormatFloat(t, 'f', -1, 64) + "</double>")
	case []byte:
		b.WriteString("<base64>" + base64.StdEncoding.EncodeToString(t) + "</base64>")
	case []string:
		b.WriteString("<array><data>")
		for _, s := range t {
			if err := encodeValue(b, s); err != nil {
				return err
			}
		}
		b.WriteString("</data></array>")
	case []any:
		b.WriteString("<array><data>")
		for _, e := range t {
			if err := encodeValue(b, e); err != nil {
				return err
			}
		}
		b.WriteString("</data></array>")
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		if err := encodeStruct(b, m); err != nil {
			return err
		}
	case map[string]any:
		if err := encodeStruct(b, t); err != nil {
			return err
		}
	default:
		return errors.Errorf("xmlrpc: cannot encode value of type %T", v)
	}
	b.WriteString("</value>")
	return nil
}

func encodeStruct(b *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("<struct>")
	for _, k := range keys {
		b.WriteString("<member><name>")
		if err := xml.EscapeText(b, []byte(k)); err != nil {
			return err
		}
		b.WriteString("</name>")
		if err := encodeValue(b, m[k]); err != nil {
			return errors.Wrapf(err, "member %q", k)
		}
		b.WriteString("</member>")
	}
	b.WriteString("</struct>")
	return nil
}

// node is a parsed XML element: tag name, child elements and the concatenated
// character data directly under it.
type node struct {
	name     string
	text     string
	children []*node
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func parseTree(r io.Reader) (*node, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		root  *node
		stack []*node
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "xmlrpc: parse")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New("xmlrpc: unbalanced document")
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += string(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("xmlrpc: empty document")
	}
	return root, nil
}

// DecodeCall parses a methodCall document.
func DecodeCall(r io.Reader) (string, []any, error) {
	root, err := parseTree(r)
	if err != nil {
		return "", nil, err
	}
	if root.name != "methodCall" {
		return "", nil, errors.Errorf("xmlrpc: expected methodCall, got %s", root.name)
	}
	nameNode := root.child("methodName")
	if nameNode == nil {
		return "", nil, errors.New("xmlrpc: missing methodName")
	}
	method := strings.TrimSpace(nameNode.text)

	params, err := decodeParams(root.child("params"))
	if err != nil {
		return "", nil, errors.Wrapf(err, "method %s", method)
	}
	return method, params, nil
}

// DecodeResponse parses a methodResponse document. A fault is returned as a
// *Fault error.
func DecodeResponse(r io.Reader) (any, error) {
	root, err := parseTree(r)
	if err != nil {
		return nil, err
	}
	if root.name != "methodResponse" {
		return nil, errors.Errorf("xmlrpc: expected methodResponse, got %s", root.name)
	}

	if fault := root.child("fault"); fault != nil {
		vn := fault.child("value")
		if vn == nil {
			return nil, errors.New("xmlrpc: fault without value")
		}
		v, err := decodeValue(vn)
		if err != nil {
			return nil, err
		}
		m, _ := v.(map[string]any)
		f := &Fault{}
		switch code := m["faultCode"].(type) {
		case int:
			f.Code = code
		case string:
			f.Code, _ = strconv.Atoi(code)
		}
		f.String, _ = m["faultString"].(string)
		return nil, f
	}

	params, err := decodeParams(root.child("params"))
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return nil, nil
	}
	return params[0], nil
}

func decodeParams(n *node) ([]any, error) {
	if n == nil {
		return nil, nil
	}
	out := make([]any, 0, len(n.children))
	for _, p := range n.children {
		if p.name != "param" {
			continue
		}
		vn := p.child("value")
		if vn == nil {
			return nil, errors.New("xmlrpc: param without value")
		}
		v, err := decodeValue(vn)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeValue(n *node) (any, error) {
	if len(n.children) == 0 {
		// No type element: the value is a string.
		return n.text, nil
	}

	t := n.children[0]
	switch t.name {
	case "string", "dateTime.iso8601":
		return t.text, nil
	case "int", "i4", "i8":
		i, err := strconv.Atoi(strings.TrimSpace(t.text))
		if err != nil {
			return nil, errors.Wrapf(err, "xmlrpc: bad %s", t.name)
		}
		return i, nil
	case "boolean":
		switch strings.TrimSpace(t.text) {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
		return nil, errors.Errorf("xmlrpc: bad boolean %q", t.text)
	case "double":
		f, err := strconv.ParseFloat(strings.TrimSpace(t.text), 64)
		if err != nil {
			return nil, errors.Wrap(err, "xmlrpc: bad double")
		}
		return f, nil
	case "base64":
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(t.text))
		if err != nil {
			return nil, errors.Wrap(err, "xmlrpc: bad base64")
		}
		return string(raw), nil
	case "nil":
		return nil, nil
	case "array":
		data := t.child("data")
		out := []any{}
		if data == nil {
			return out, nil
		}
		for _, c := range data.children {
			if c.name != "value" {
				continue
			}
			v, err := decodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case "struct":
		out := map[string]any{}
		for _, m := range t.children {
			if m.name != "member" {
				continue
			}
			nn := m.child("name")
			vn := m.child("value")
			if nn == nil || vn == nil {
				return nil, errors.New("xmlrpc: incomplete struct member")
			}
			v, err := decodeValue(vn)
			if err != nil {
				return nil, err
			}
			out[nn.text] = v
		}
		return out, nil
	}
	return nil, errors.Errorf("xmlrpc: unsupported type %s", t.name)
}
