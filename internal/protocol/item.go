// Package protocol implements the binary device synchronization protocol:
// a typed wire codec driven by single-character format strings, the
// session state machine negotiating versions and exchanging objects, and
// the TCP acceptor. Reads are fed incrementally; the codec announces how
// many bytes it needs next, so a session never blocks on a partial packet.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Wire formats for date and timestamp values.
const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// Item is one unit of the wire codec. Decoding is incremental: Expect
// announces how many bytes Feed needs next, and reports done when the
// value is complete. Start resets the item for the next value.
type Item interface {
	Start()

	// Expect returns the number of bytes needed next. ok is false once
	// the value is complete and available through Value.
	Expect() (n int, ok bool)

	// Feed consumes exactly the bytes announced by Expect.
	Feed(data []byte) error

	// Value returns the decoded value once Expect reported completion.
	Value() any

	// Pack appends the encoding of values to buf. Non-composite items
	// take exactly one value.
	Pack(buf *bytes.Buffer, values ...any) error
}

func packOne(values []any) (any, error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("protocol: packing %d values into a single item", len(values))
	}
	return values[0], nil
}

// IntegerItem codes a 32-bit signed big-endian integer as a Go int.
type IntegerItem struct {
	done  bool
	value int
}

// NewInteger creates an integer item.
func NewInteger() *IntegerItem { return &IntegerItem{} }

func (i *IntegerItem) Start() { i.done = false; i.value = 0 }

func (i *IntegerItem) Expect() (int, bool) {
	if i.done {
		return 0, false
	}
	return 4, true
}

func (i *IntegerItem) Feed(data []byte) error {
	i.value = int(int32(binary.BigEndian.Uint32(data)))
	i.done = true
	return nil
}

func (i *IntegerItem) Value() any { return i.value }

func (i *IntegerItem) Pack(buf *bytes.Buffer, values ...any) error {
	value, err := packOne(values)
	if err != nil {
		return err
	}
	n, ok := value.(int)
	if !ok {
		if b, isBool := value.(bool); isBool {
			// Booleans ride as integers on the wire.
			n = 0
			if b {
				n = 1
			}
		} else {
			return fmt.Errorf("protocol: packing %T as integer", value)
		}
	}
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], uint32(int32(n)))
	buf.Write(raw[:])
	return nil
}

// DataItem codes a fixed, well-known number of raw bytes.
type DataItem struct {
	count int
	done  bool
	value []byte
}

// NewData creates a raw bytes item of the given size.
func NewData(count int) *DataItem { return &DataItem{count: count} }

func (d *DataItem) Start() { d.done = false; d.value = nil }

func (d *DataItem) Expect() (int, bool) {
	if d.done {
		return 0, false
	}
	return d.count, true
}

func (d *DataItem) Feed(data []byte) error {
	d.value = append([]byte(nil), data...)
	d.done = true
	return nil
}

func (d *DataItem) Value() any { return d.value }

func (d *DataItem) Pack(buf *bytes.Buffer, values ...any) error {
	value, err := packOne(values)
	if err != nil {
		return err
	}
	raw, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("protocol: packing %T as raw bytes", value)
	}
	buf.Write(raw)
	return nil
}

// StringItem codes a UTF-8 string as its byte length followed by the
// bytes. The empty string is valid.
type StringItem struct {
	state  int
	length int
	value  string
}

// NewString creates a string item.
func NewString() *StringItem { return &StringItem{} }

func (s *StringItem) Start() { s.state = 0; s.length = 0; s.value = "" }

func (s *StringItem) Expect() (int, bool) {
	switch s.state {
	case 0:
		return 4, true
	case 1:
		return s.length, true
	}
	return 0, false
}

func (s *StringItem) Feed(data []byte) error {
	switch s.state {
	case 0:
		s.length = int(int32(binary.BigEndian.Uint32(data)))
		if s.length > 0 {
			s.state = 1
		} else {
			s.value = ""
			s.state = 2
		}
	case 1:
		s.value = string(data)
		s.state = 2
	}
	return nil
}

func (s *StringItem) Value() any { return s.value }

func (s *StringItem) Pack(buf *bytes.Buffer, values ...any) error {
	value, err := packOne(values)
	if err != nil {
		return err
	}
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("protocol: packing %T as string", value)
	}
	packString(buf, str)
	return nil
}

func packString(buf *bytes.Buffer, s string) {
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], uint32(int32(len(s))))
	buf.Write(raw[:])
	buf.WriteString(s)
}

// FixedSizeStringItem codes a string that cannot be empty: an empty
// string on the wire decodes to nil, and nil packs as an empty string.
// Used for optional references such as parent ids.
type FixedSizeStringItem struct {
	str StringItem
}

// NewFixedSizeString creates an optional string item.
func NewFixedSizeString() *FixedSizeStringItem { return &FixedSizeStringItem{} }

func (f *FixedSizeStringItem) Start() { f.str.Start() }

func (f *FixedSizeStringItem) Expect() (int, bool) { return f.str.Expect() }

func (f *FixedSizeStringItem) Feed(data []byte) error { return f.str.Feed(data) }

func (f *FixedSizeStringItem) Value() any {
	if f.str.value == "" {
		return nil
	}
	return f.str.value
}

func (f *FixedSizeStringItem) Pack(buf *bytes.Buffer, values ...any) error {
	value, err := packOne(values)
	if err != nil {
		return err
	}
	if value == nil {
		packString(buf, "")
		return nil
	}
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("protocol: packing %T as optional string", value)
	}
	packString(buf, str)
	return nil
}

// timeItem is the shared decoder of the three date/time items. The zero
// time.Time codes as the empty string and stands for "no value".
type timeItem struct {
	str    FixedSizeStringItem
	layout string
	value  time.Time
}

func (t *timeItem) Start() { t.str.Start(); t.value = time.Time{} }

func (t *timeItem) Expect() (int, bool) { return t.str.Expect() }

func (t *timeItem) Feed(data []byte) error {
	if err := t.str.Feed(data); err != nil {
		return err
	}
	if _, ok := t.str.Expect(); ok {
		return nil
	}
	raw := t.str.Value()
	if raw == nil {
		t.value = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(t.layout, raw.(string), time.Local)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", raw, err)
	}
	t.value = parsed
	return nil
}

func (t *timeItem) Value() any { return t.value }

func (t *timeItem) Pack(buf *bytes.Buffer, values ...any) error {
	value, err := packOne(values)
	if err != nil {
		return err
	}
	when, ok := value.(time.Time)
	if !ok {
		return fmt.Errorf("protocol: packing %T as timestamp", value)
	}
	if when.IsZero() {
		packString(buf, "")
		return nil
	}
	packString(buf, when.Format(t.layout))
	return nil
}

// DateItem codes a date in YYYY-MM-DD format; the zero time is "no date".
type DateItem struct{ timeItem }

// NewDate creates a date item.
func NewDate() *DateItem {
	d := &DateItem{}
	d.layout = dateLayout
	return d
}

// DateTimeItem codes a timestamp in YYYY-MM-DD HH:MM:SS format; the zero
// time is "no timestamp".
type DateTimeItem struct{ timeItem }

// NewDateTime creates a timestamp item.
func NewDateTime() *DateTimeItem {
	d := &DateTimeItem{}
	d.layout = dateTimeLayout
	return d
}

// InfiniteDateTimeItem is a DateTimeItem whose missing value reads as
// "infinitely far in the future". On the wire the two are identical; the
// distinction matters to the caller, which treats the zero time as an
// open-ended date rather than an absent one.
type InfiniteDateTimeItem struct{ timeItem }

// NewInfiniteDateTime creates an open-ended timestamp item.
func NewInfiniteDateTime() *InfiniteDateTimeItem {
	d := &InfiniteDateTimeItem{}
	d.layout = dateTimeLayout
	return d
}

// CompositeItem codes a fixed succession of items. Its value is a []any,
// except when it holds a single child, whose value passes through
// unwrapped.
type CompositeItem struct {
	items []Item
	state int
	value []any
	done  bool
}

// NewComposite creates a composite of the given items.
func NewComposite(items ...Item) *CompositeItem {
	c := &CompositeItem{items: items}
	c.Start()
	return c
}

func (c *CompositeItem) append(item Item) { c.items = append(c.items, item) }

func (c *CompositeItem) Start() {
	c.state = 0
	c.value = nil
	c.done = false
	for _, item := range c.items {
		item.Start()
	}
}

func (c *CompositeItem) Expect() (int, bool) {
	for c.state < len(c.items) {
		n, ok := c.items[c.state].Expect()
		if ok {
			return n, true
		}
		c.value = append(c.value, c.items[c.state].Value())
		c.state++
	}
	c.done = true
	return 0, false
}

func (c *CompositeItem) Feed(data []byte) error {
	return c.items[c.state].Feed(data)
}

func (c *CompositeItem) Value() any {
	if len(c.items) == 1 {
		return c.value[0]
	}
	return c.value
}

func (c *CompositeItem) Pack(buf *bytes.Buffer, values ...any) error {
	if len(values) != len(c.items) {
		return fmt.Errorf("protocol: packing %d values into a composite of %d items", len(values), len(c.items))
	}
	for i, value := range values {
		if err := c.items[i].Pack(buf, value); err != nil {
			return err
		}
	}
	return nil
}

// ListItem codes a 4-byte element count followed by that many encodings
// of the element item. Its value is a []any.
type ListItem struct {
	item  Item
	state int
	count int
	value []any
}

// NewList creates a list of the given element item.
func NewList(item Item) *ListItem {
	l := &ListItem{item: item}
	l.Start()
	return l
}

func (l *ListItem) append(item Item) {
	if c, ok := l.item.(*CompositeItem); ok {
		c.append(item)
	}
}

func (l *ListItem) Start() {
	l.state = 0
	l.count = 0
	l.value = nil
	l.item.Start()
}

func (l *ListItem) Expect() (int, bool) {
	switch l.state {
	case 0:
		return 4, true
	case 1:
		for {
			n, ok := l.item.Expect()
			if ok {
				return n, true
			}
			l.value = append(l.value, l.item.Value())
			l.count--
			if l.count == 0 {
				l.state = 2
				return 0, false
			}
			l.item.Start()
		}
	}
	return 0, false
}

func (l *ListItem) Feed(data []byte) error {
	switch l.state {
	case 0:
		l.count = int(int32(binary.BigEndian.Uint32(data)))
		if l.count > 0 {
			l.item.Start()
			l.state = 1
		} else {
			l.state = 2
		}
		return nil
	}
	return l.item.Feed(data)
}

func (l *ListItem) Value() any { return l.value }

func (l *ListItem) Pack(buf *bytes.Buffer, values ...any) error {
	value, err := packOne(values)
	if err != nil {
		return err
	}
	elements, ok := value.([]any)
	if !ok {
		// Lists of ids are the common case; accept them directly.
		if ids, isStrings := value.([]string); isStrings {
			elements = make([]any, len(ids))
			for i, id := range ids {
				elements[i] = id
			}
		} else {
			return fmt.Errorf("protocol: packing %T as list", value)
		}
	}
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], uint32(int32(len(elements))))
	buf.Write(raw[:])
	for _, element := range elements {
		if composite, isComposite := l.item.(*CompositeItem); isComposite && len(composite.items) > 1 {
			row, isRow := element.([]any)
			if !isRow {
				return fmt.Errorf("protocol: packing %T as composite list element", element)
			}
			if err := composite.Pack(buf, row...); err != nil {
				return err
			}
			continue
		}
		if err := l.item.Pack(buf, element); err != nil {
			return err
		}
	}
	return nil
}
