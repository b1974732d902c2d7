package protocol

import (
	"fmt"
	"strings"
)

// Format characters:
//
//	i    32-bit signed integer, big endian
//	s    UTF-8 string, length-prefixed
//	z    optional string; empty on the wire reads as nil
//	d    date, YYYY-MM-DD, zero time when absent
//	t    timestamp, YYYY-MM-DD HH:MM:SS, zero time when absent
//	f    timestamp whose absence means "infinitely far in the future"
//	Nb   N raw bytes (N decimal, e.g. 20b)
//	[..] list, 4-byte count followed by the elements
var formatMap = map[byte]func() Item{
	'i': func() Item { return NewInteger() },
	's': func() Item { return NewString() },
	'z': func() Item { return NewFixedSizeString() },
	'd': func() Item { return NewDate() },
	't': func() Item { return NewDateTime() },
	'f': func() Item { return NewInfiniteDateTime() },
}

// container is what items nest into while parsing: composites and lists
// of composites.
type container interface {
	Item
	append(item Item)
}

// Parse compiles a format string into an item tree. A format consisting
// of a single bracketed group compiles to the list itself rather than a
// one-element composite.
func Parse(format string) (Item, error) {
	if strings.HasPrefix(format, "[") && strings.HasSuffix(format, "]") {
		inner, err := Parse(format[1 : len(format)-1])
		if err != nil {
			return nil, err
		}
		return NewList(inner), nil
	}

	current := container(NewComposite())
	var stack []container
	count := -1

	for i := 0; i < len(format); i++ {
		c := format[i]
		switch {
		case c == '[':
			list := NewList(NewComposite())
			current.append(list)
			stack = append(stack, current)
			current = list
		case c == ']':
			if len(stack) == 0 {
				return nil, fmt.Errorf("protocol: unbalanced brackets in format %q", format)
			}
			current = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		case c == 'b':
			if count < 0 {
				return nil, fmt.Errorf("protocol: raw bytes without a size in format %q", format)
			}
			current.append(NewData(count))
			count = -1
		case c >= '0' && c <= '9':
			if count < 0 {
				count = 0
			}
			count = count*10 + int(c-'0')
		default:
			factory, ok := formatMap[c]
			if !ok {
				return nil, fmt.Errorf("protocol: unknown format character %q in %q", c, format)
			}
			current.append(factory())
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("protocol: unbalanced brackets in format %q", format)
	}
	current.Start()
	return current, nil
}

// MustParse is Parse for the compile-time-constant formats the session
// uses; a bad format is a programming error.
func MustParse(format string) Item {
	item, err := Parse(format)
	if err != nil {
		panic(err)
	}
	return item
}
