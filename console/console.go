// Package console accepts line commands from a serial port and a named
// pipe and hands them to the control loop.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/zap"
)

// Config holds the command sources. Empty paths disable a source.
type Config struct {
	Pipe   string `yaml:"pipe"`   // named pipe, e.g. "/run/coopdoor/cmd"
	Serial string `yaml:"serial"` // e.g. "/dev/serial0"
	Baud   int    `yaml:"baud" env-default:"115200"`
}

// Inbox carries commands from reader goroutines to the control loop.
type Inbox struct {
	ch  chan Command
	mu  sync.Mutex // serializes producers
	log *zap.Logger
}

// NewInbox returns an Inbox buffering size commands.
func NewInbox(size int, log *zap.Logger) *Inbox {
	if log == nil {
		log = zap.NewNop()
	}
	return &Inbox{ch: make(chan Command, size), log: log}
}

// Submit queues cmd without blocking. It returns false when the inbox is
// full and cmd was dropped.
func (in *Inbox) Submit(cmd Command) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	select {
	case in.ch <- cmd:
		return true
	default:
		in.log.Warn("command dropped, inbox full", zap.Stringer("command", cmd))
		return false
	}
}

// SubmitAll queues cmds as one batch: either all of them or, when the inbox
// cannot take the whole batch, none.
func (in *Inbox) SubmitAll(cmds []Command) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	// the loop only drains, so free space can grow but not shrink here
	if cap(in.ch)-len(in.ch) < len(cmds) {
		in.log.Warn("batch dropped, inbox full", zap.Int("commands", len(cmds)))
		return false
	}
	for _, cmd := range cmds {
		in.ch <- cmd
	}
	return true
}

// Next returns the next queued command without blocking.
func (in *Inbox) Next() (Command, bool) {
	select {
	case cmd := <-in.ch:
		return cmd, true
	default:
		return Command{}, false
	}
}

// Console reads commands from its configured sources.
type Console struct {
	inbox *Inbox
	log   *zap.Logger

	pipe       string
	serialPath string
	port       *serial.Port
	mu         sync.Mutex // serializes replies

	ctx    context.Context
	cancel context.CancelFunc
}

// New opens the configured sources. Start begins reading.
func New(cfg Config, inbox *Inbox, log *zap.Logger) (*Console, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Console{
		inbox:  inbox,
		log:    log.Named("console"),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Pipe != "" {
		os.Remove(cfg.Pipe)
		if err := syscall.Mkfifo(cfg.Pipe, 0660); err != nil {
			cancel()
			return nil, fmt.Errorf("create named pipe %s: %w", cfg.Pipe, err)
		}
		c.pipe = cfg.Pipe
	}

	if cfg.Serial != "" {
		port, err := serial.OpenPort(&serial.Config{
			Name:        cfg.Serial,
			Baud:        cfg.Baud,
			ReadTimeout: 500 * time.Millisecond,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("open serial %s: %w", cfg.Serial, err)
		}
		c.port, c.serialPath = port, cfg.Serial
	}
	return c, nil
}

// Start launches one reader goroutine per source.
func (c *Console) Start() {
	if c.pipe != "" {
		go c.readPipe()
	}
	if c.port != nil {
		go c.readSerial()
	}
}

func (c *Console) readPipe() {
	c.log.Info("listening", zap.String("pipe", c.pipe))
	for c.ctx.Err() == nil {
		// Blocks until a writer connects.
		file, err := os.OpenFile(c.pipe, os.O_RDONLY, 0)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Error("pipe open", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		c.scan(file)
		file.Close()
	}
}

func (c *Console) scan(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if c.ctx.Err() != nil {
			return
		}
		c.handleLine(scanner.Text())
	}
}

func (c *Console) readSerial() {
	c.log.Info("listening", zap.String("serial", c.serialPath))
	buf := make([]byte, 128)
	var line []byte
	for c.ctx.Err() == nil {
		n, err := c.port.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			if c.ctx.Err() == nil {
				c.log.Error("serial read", zap.Error(err))
			}
			return
		}
		for _, b := range buf[:n] {
			switch b {
			case '\r', '\n':
				if len(line) > 0 {
					c.handleLine(string(line))
					line = line[:0]
				}
			default:
				if len(line) < 256 {
					line = append(line, b)
				}
			}
		}
	}
}

func (c *Console) handleLine(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	cmd, err := Parse(line)
	if err != nil {
		c.log.Warn("parse error", zap.String("line", line), zap.Error(err))
		c.Reply("error: " + err.Error())
		return
	}
	c.log.Debug("command", zap.Stringer("command", cmd))
	if !c.inbox.Submit(cmd) {
		c.Reply("busy")
	}
}

// Reply writes a line back to the serial port, if there is one.
func (c *Console) Reply(line string) {
	if c.port == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.port.Write([]byte(line + "\r\n")); err != nil {
		c.log.Warn("serial write", zap.Error(err))
	}
}

// Close stops the readers and removes the pipe.
func (c *Console) Close() error {
	c.cancel()
	var errs []error
	if c.port != nil {
		errs = append(errs, c.port.Close())
	}
	if c.pipe != "" {
		// Unblock a reader waiting for a writer.
		if f, err := os.OpenFile(c.pipe, os.O_WRONLY|syscall.O_NONBLOCK, 0); err == nil {
			f.Close()
		}
		errs = append(errs, os.Remove(c.pipe))
	}
	return errors.Join(errs...)
}
