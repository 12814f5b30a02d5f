package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/reactor/internal/demo"
	"github.com/zjrosen/reactor/internal/pubsub"
	"github.com/zjrosen/reactor/internal/reactor"
)

// activityBuffer holds a whole unmount burst of the library.
const activityBuffer = 256

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the library scenario and print its activity stream",
	Long: `Mount the demo library, add two books, create a member, print the
stats and unmount again. Every registration, delivery and error is printed
as it happens.

With --typo a subscriber for "books:dataUpdate" is added. It retries until
its attempts run out, then reports the published name it probably meant.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().Bool("typo", false, "add a subscriber with a misspelled event name")
	demoCmd.Flags().Duration("wait", 10*time.Second, "with --typo, how long to wait for the subscriber error")
	demoCmd.Flags().BoolP("verbose", "v", false, "write log entries to stderr")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	if cfgErr != nil {
		return cfgErr
	}

	var logOut io.Writer = io.Discard
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logOut = os.Stderr
	}
	cleanup, err := initLogging(logOut)
	if err != nil {
		return err
	}
	defer cleanup()

	typo, _ := cmd.Flags().GetBool("typo")
	wait, _ := cmd.Flags().GetDuration("wait")
	var opts []demo.Option
	if typo {
		opts = append(opts, demo.WithTypo())
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := startSession(ctx, cfg, configPath(), false, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	out := &lockedWriter{w: cmd.OutOrStdout()}
	errSeen := make(chan struct{}, 1)
	printed := printActivity(ctx, out, s.tree.Activity(), errSeen)

	if err := s.Mount(); err != nil {
		return fmt.Errorf("mounting library: %w", err)
	}
	if err := runScenario(s, out); err != nil {
		return err
	}
	if typo {
		select {
		case <-errSeen:
		case <-time.After(wait):
			_, _ = fmt.Fprintf(out, "=> no subscriber error within %s\n", wait)
		}
	}
	if err := s.Unmount(); err != nil {
		return fmt.Errorf("unmounting library: %w", err)
	}

	s.tree.Close()
	<-printed
	return nil
}

func runScenario(s *session, out io.Writer) error {
	for _, title := range []string{"Dune", "Emma"} {
		book, err := s.AddBook(title)
		if err != nil {
			return fmt.Errorf("adding %q: %w", title, err)
		}
		_, _ = fmt.Fprintf(out, "=> added book #%d %q\n", book.ID, book.Title)
	}

	id, err := s.CreateMember("ada")
	if err != nil {
		return fmt.Errorf("creating member: %w", err)
	}
	_, _ = fmt.Fprintf(out, "=> created member %s\n", id)

	stats, err := s.Stats()
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}
	_, _ = fmt.Fprintf(out, "=> %d books, %d members, %d updates delivered\n", stats.Books, stats.Members, stats.Updates)
	return nil
}

// printActivity prints the activity stream with times relative to the first
// entry. The returned channel closes when the stream ends.
func printActivity(ctx context.Context, out io.Writer, broker *pubsub.Broker[reactor.Activity], errSeen chan<- struct{}) <-chan struct{} {
	events := broker.SubscribeBuffered(ctx, activityBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var start time.Time
		for ev := range events {
			if start.IsZero() {
				start = ev.Timestamp
			}
			_, _ = fmt.Fprintf(out, "%8s  %s\n", ev.Timestamp.Sub(start).Round(time.Millisecond), ev.Payload)
			if ev.Payload.Kind == reactor.ActivityError {
				select {
				case errSeen <- struct{}{}:
				default:
				}
			}
		}
	}()
	return done
}

// lockedWriter serializes writes from the scenario and the activity printer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
