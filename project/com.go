// Host communication channels. A Com feeds lines from a file, stream or
// serial port to the command loop without ever blocking it, and carries
// exactly one reply per parsed command back to the host. Reads happen on
// a feeder goroutine; the event loop polls Tend.
package project

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tarm/serial"

	"p3c/common/logger"
)

type Response struct {
	ok     bool
	pairs  [][2]string
	reason string
}

var ResponseOk = Response{ok: true}

func OkResponse(pairs ...[2]string) Response {
	return Response{ok: true, pairs: pairs}
}

func ErrResponse(reason string) Response {
	return Response{reason: reason}
}

func (r Response) String() string {
	if !r.ok {
		return "!! " + r.reason
	}
	if len(r.pairs) == 0 {
		return "ok"
	}
	var b strings.Builder
	b.WriteString("ok")
	for _, p := range r.pairs {
		b.WriteByte(' ')
		b.WriteString(p[0])
		b.WriteByte(':')
		b.WriteString(p[1])
	}
	return b.String()
}

type Com struct {
	name     string
	lines    chan string
	w        io.Writer
	closer   io.Closer
	pending  *Command
	dieOnEof bool
	eof      bool
}

// newCom starts the feeder goroutine over r.
func newCom(name string, r io.Reader, w io.Writer, closer io.Closer, dieOnEof bool) *Com {
	c := &Com{
		name:     name,
		lines:    make(chan string, 64),
		w:        w,
		closer:   closer,
		dieOnEof: dieOnEof,
	}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
		close(c.lines)
	}()
	return c
}

// NewFileCom reads commands from a gcode file. Replies are dropped.
func NewFileCom(path string) (*Com, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrHardware, path, err)
	}
	return newCom(path, f, nil, f, true), nil
}

// NewStdioCom talks to the host over stdin/stdout.
func NewStdioCom() *Com {
	return newCom("stdio", os.Stdin, os.Stdout, nil, false)
}

// NewSerialCom talks to the host over a serial device.
func NewSerialCom(device string, baud int) (*Com, error) {
	cfg := &serial.Config{Name: device, Baud: baud}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open serial %s: %v", ErrHardware, device, err)
	}
	return newCom(device, port, port, port, false), nil
}

func (c *Com) Name() string {
	return c.name
}

// Tend polls for input. Returns true once a command is pending; the
// same command stays pending until Reply is called.
func (c *Com) Tend() bool {
	for c.pending == nil && !c.eof {
		select {
		case line, ok := <-c.lines:
			if !ok {
				c.eof = true
				return false
			}
			cmd, err := Parse_command(line)
			if err != nil {
				logger.Warnf("com %s: %v", c.name, err)
				c.write(ErrResponse(err.Error()))
				continue
			}
			if cmd == nil {
				continue
			}
			c.pending = cmd
		default:
			return false
		}
	}
	return c.pending != nil
}

func (c *Com) Get_command() *Command {
	return c.pending
}

// Reply sends the command's single response and unblocks the next line.
func (c *Com) Reply(resp Response) {
	c.write(resp)
	c.pending = nil
}

func (c *Com) write(resp Response) {
	if c.w == nil {
		return
	}
	if _, err := fmt.Fprintln(c.w, resp.String()); err != nil {
		logger.Errorf("com %s: write reply: %v", c.name, err)
	}
}

// Is_at_eof reports a fully drained fixed-length source.
func (c *Com) Is_at_eof() bool {
	return c.dieOnEof && c.eof && c.pending == nil
}

// Is_closed reports end of any source, including the host stream.
func (c *Com) Is_closed() bool {
	return c.eof && c.pending == nil
}

func (c *Com) Close() {
	if c.closer != nil {
		_ = c.closer.Close()
	}
}
