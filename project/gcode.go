// Minimal G-code command model: opcode plus letter-keyed numeric
// parameters, with free whitespace ("G1X10 Y5", "g1 x 10"). String-tail
// opcodes (M32, M117) keep the raw remainder; quoted filenames are
// split shlex-style.
package project

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"
)

type Command struct {
	Opcode string
	params map[byte]float64
	Text   string
	Raw    string
}

// stringTailOpcodes take the rest of the line as a single argument.
var stringTailOpcodes = map[string]bool{
	"M32":  true,
	"M117": true,
}

// Parse_command parses one line. A blank or comment-only line returns
// (nil, nil).
func Parse_command(raw string) (*Command, error) {
	line := raw
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	letter, num, rest, err := scanWord(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, raw)
	}
	if letter == 'N' {
		// line number prefix; the command follows
		letter, num, rest, err = scanWord(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, raw)
		}
	}
	if letter != 'G' && letter != 'M' && letter != 'T' {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, raw)
	}
	cmd := &Command{
		Opcode: fmt.Sprintf("%c%d", letter, int(num)),
		params: map[byte]float64{},
		Raw:    raw,
	}
	if stringTailOpcodes[cmd.Opcode] {
		cmd.Text = strings.TrimSpace(rest)
		return cmd, nil
	}
	for rest != "" {
		var l byte
		var v float64
		l, v, rest, err = scanWord(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, raw)
		}
		cmd.params[l] = v
	}
	return cmd, nil
}

// scanWord reads one letter-number pair, tolerating whitespace between
// and around them.
func scanWord(s string) (byte, float64, string, error) {
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return 0, 0, "", fmt.Errorf("empty word")
	}
	letter := s[0]
	if letter >= 'a' && letter <= 'z' {
		letter -= 'a' - 'A'
	}
	if letter < 'A' || letter > 'Z' {
		return 0, 0, "", fmt.Errorf("expected letter, got %q", s[0])
	}
	s = strings.TrimLeft(s[1:], " \t")
	n := 0
	for n < len(s) {
		c := s[n]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' {
			n++
			continue
		}
		break
	}
	if n == 0 {
		// bare letter, e.g. "G28 X"; treat as letter with value 0
		return letter, 0, s, nil
	}
	v, err := strconv.ParseFloat(s[:n], 64)
	if err != nil {
		return 0, 0, "", err
	}
	return letter, v, s[n:], nil
}

func (c *Command) Has(letter byte) bool {
	_, ok := c.params[letter]
	return ok
}

func (c *Command) Get(letter byte, def float64) float64 {
	if v, ok := c.params[letter]; ok {
		return v
	}
	return def
}

func (c *Command) Has_any_xyze() bool {
	return c.Has('X') || c.Has('Y') || c.Has('Z') || c.Has('E')
}

// File_arg resolves the string tail as a single (possibly quoted) path.
func (c *Command) File_arg() (string, error) {
	parts, err := shlex.Split(c.Text)
	if err != nil || len(parts) == 0 {
		return "", fmt.Errorf("%w: missing filename in %q", ErrSyntax, c.Raw)
	}
	return parts[0], nil
}
