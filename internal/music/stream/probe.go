package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// probeBytes is how much of the head Probe looks at.
const probeBytes = 3072

// Probe sniffs the head of r without consuming it. Text, JSON and empty
// output are rejected; anything else (including unknown binary) is left
// for the decoder to judge.
func Probe(r *bufio.Reader) (*mimetype.MIME, error) {
	head, err := r.Peek(probeBytes)
	if len(head) == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrNotAudio, err)
	}

	mt := mimetype.Detect(head)
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") || m.Is("application/json") {
			return mt, fmt.Errorf("%w: detected %s", ErrNotAudio, mt.String())
		}
	}
	return mt, nil
}

// probeWithin runs Probe but gives up after d. The caller must kill the
// producer on error so the peeking goroutine unblocks.
func probeWithin(ctx context.Context, r *bufio.Reader, d time.Duration) (*mimetype.MIME, error) {
	type result struct {
		mt  *mimetype.MIME
		err error
	}
	ch := make(chan result, 1)
	go func() {
		mt, err := Probe(r)
		ch <- result{mt, err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.mt, res.err
	case <-timer.C:
		return nil, fmt.Errorf("%w: no output within %s", ErrNotAudio, d)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
