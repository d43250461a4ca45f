package project

import (
	"errors"
	"testing"
)

func TestParseBasicMove(t *testing.T) {
	cmd, err := Parse_command("G1 X10 E5 F600")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Opcode != "G1" {
		t.Fatalf("opcode %q", cmd.Opcode)
	}
	if cmd.Get('X', 0) != 10 || cmd.Get('E', 0) != 5 || cmd.Get('F', 0) != 600 {
		t.Fatalf("params wrong: %+v", cmd)
	}
	if cmd.Has('Y') {
		t.Fatalf("phantom Y parameter")
	}
}

func TestParseFreeWhitespaceAndCase(t *testing.T) {
	cmd, err := Parse_command("g1x10y-5.5 z 2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Opcode != "G1" || cmd.Get('X', 0) != 10 || cmd.Get('Y', 0) != -5.5 || cmd.Get('Z', 0) != 2 {
		t.Fatalf("parsed %+v", cmd)
	}
}

func TestParseLineNumberPrefix(t *testing.T) {
	cmd, err := Parse_command("N12 G1 X1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Opcode != "G1" || cmd.Get('X', 0) != 1 {
		t.Fatalf("parsed %+v", cmd)
	}
}

func TestParseSelectorWithoutValue(t *testing.T) {
	cmd, err := Parse_command("G28 X Y")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Opcode != "G28" || !cmd.Has('X') || !cmd.Has('Y') || cmd.Has('Z') {
		t.Fatalf("parsed %+v", cmd)
	}
}

func TestParseCommentAndBlank(t *testing.T) {
	if cmd, err := Parse_command("  ; just a comment"); cmd != nil || err != nil {
		t.Fatalf("comment line should parse to nothing, got %v %v", cmd, err)
	}
	cmd, err := Parse_command("G21 ; metric please")
	if err != nil || cmd.Opcode != "G21" {
		t.Fatalf("trailing comment broke parse: %v %v", cmd, err)
	}
}

func TestParseStringTail(t *testing.T) {
	cmd, err := Parse_command(`M117 phase two`)
	if err != nil || cmd.Text != "phase two" {
		t.Fatalf("M117 text %q err %v", cmd.Text, err)
	}
	cmd, err = Parse_command(`M32 "calibration cube.gcode"`)
	if err != nil {
		t.Fatalf("parse M32: %v", err)
	}
	name, err := cmd.File_arg()
	if err != nil || name != "calibration cube.gcode" {
		t.Fatalf("File_arg %q err %v", name, err)
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	for _, line := range []string{"X10", "G1 X10 Q??", "!!"} {
		if _, err := Parse_command(line); !errors.Is(err, ErrSyntax) {
			t.Fatalf("%q should be a syntax error, got %v", line, err)
		}
	}
}

func TestParseToolSelect(t *testing.T) {
	cmd, err := Parse_command("T1")
	if err != nil || cmd.Opcode != "T1" {
		t.Fatalf("tool select parsed as %v err %v", cmd, err)
	}
}
