package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/conorfennell/brainquiz/internal/scheduler"
	"github.com/conorfennell/brainquiz/internal/web"
)

// lockedWriter lets background lookups print while the session reads input.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

// runReview walks the due cards on a terminal. A line starting with '?' looks
// the rest of the line up in the background; "q" ends the session.
func runReview(ctx context.Context, sess *scheduler.Session, in io.Reader, w io.Writer, look web.Looker) error {
	out := &lockedWriter{w: w}
	scanner := bufio.NewScanner(in)

	var lookups sync.WaitGroup
	defer lookups.Wait()

	// readLine returns the next line that is not a lookup.
	readLine := func() (string, bool) {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if query, ok := strings.CutPrefix(line, "?"); ok {
				if look == nil {
					out.printf("Lookup is not configured.\n")
					continue
				}
				lookups.Add(1)
				go func() {
					defer lookups.Done()
					res, err := look.Summary(ctx, query)
					if err != nil {
						out.printf("\nLookup failed: %v\n", err)
						return
					}
					out.printf("\n%s\n", res)
				}()
				continue
			}
			return line, true
		}
		return "", false
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		card, ok := sess.Start()
		if !ok {
			out.printf("No cards due. Come back later.\n")
			return scanner.Err()
		}

		if card.Topic != "" {
			out.printf("\n[%s]\n", card.Topic)
		}
		out.printf("Q: %s\n", card.Question)
		if card.Image != "" {
			out.printf("Image: %s\n", card.Image)
		}
		out.printf("Press Enter to show the answer (q to quit, ?topic to look up).\n")

		line, ok := readLine()
		if !ok || line == "q" {
			return scanner.Err()
		}

		card, err := sess.Reveal()
		if err != nil {
			return err
		}
		out.printf("A: %s\n", card.Answer)

		var correct bool
		for {
			out.printf("Did you remember? [y/n] ")
			line, ok := readLine()
			if !ok || line == "q" {
				return scanner.Err()
			}
			switch strings.ToLower(line) {
			case "y", "yes":
				correct = true
			case "n", "no":
				correct = false
			default:
				continue
			}
			break
		}

		res, err := sess.Submit(ctx, correct)
		if err != nil {
			return err
		}
		if res.StreakIncreased {
			out.printf("Streak: %d days\n", res.Stats.Streak)
		}
	}
}
