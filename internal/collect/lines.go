// Package collect gathers operator input under a wall-clock deadline.
package collect

import (
	"bufio"
	"context"
	"io"
	"sync"
)

const lineBuffer = 256

// Lines reads r line by line on one background goroutine. Reads are never
// interrupted; callers race the channel against their own deadline instead.
type Lines struct {
	ch chan string

	mu  sync.Mutex
	err error
}

// NewLines starts reading r. The goroutine exits at end of input.
func NewLines(r io.Reader) *Lines {
	l := &Lines{ch: make(chan string, lineBuffer)}
	go l.read(r)
	return l
}

func (l *Lines) read(r io.Reader) {
	defer close(l.ch)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		l.ch <- sc.Text()
	}
	if err := sc.Err(); err != nil {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
	}
}

// C returns the channel of input lines. It is closed at end of input.
func (l *Lines) C() <-chan string { return l.ch }

// Next blocks for the next line. It returns io.EOF once input is exhausted.
func (l *Lines) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-l.ch:
		if !ok {
			return "", l.Err()
		}
		return line, nil
	}
}

// Err returns the read error that ended input, or io.EOF.
func (l *Lines) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	return io.EOF
}

// Drain discards lines already read but not yet consumed and returns how many.
func (l *Lines) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-l.ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}
