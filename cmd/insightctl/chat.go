package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"scanalytics-backend/internal/client"
	"scanalytics-backend/internal/insight"
	"scanalytics-backend/internal/storage"
	"scanalytics-backend/internal/utils"
)

// ChatCmd runs the interview in the terminal. Lines starting with a slash are
// session commands; everything else is sent as a user message.
type ChatCmd struct {
	URL string `short:"u" long:"url" description:"chat server base URL (overrides client.base_url)"`
}

func (c *ChatCmd) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	baseURL := cfg.Client.BaseURL
	if c.URL != "" {
		baseURL = c.URL
	}

	backend, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := client.NewSession(client.New(baseURL, utils.NewHTTPClient(cfg.StreamClientTimeout())), storage.NewSelectionStore(backend))
	states, unsubscribe := sess.Subscribe()
	defer unsubscribe()
	<-states

	return repl(ctx, sess, states, os.Stdin, os.Stdout)
}

func repl(ctx context.Context, sess *client.Session, states <-chan client.State, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Describe your business. Commands: /reset, /done, /quit")
	lines := readLines(in)
	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case text, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(text)
		}

		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/reset":
			sess.Reset()
			fmt.Fprintln(out, "conversation cleared")
			continue
		case "/done":
			err := sess.Commit()
			if errors.Is(err, client.ErrNotReady) {
				fmt.Fprintln(out, "nothing to save yet")
				continue
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "saved %d KPIs\n", len(sess.State().Live.Queries))
			return nil
		}

		if err := sess.Submit(ctx, line); err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		gen := sess.State().Generation
		if !watch(ctx, states, gen, out) {
			fmt.Fprintln(out)
			return nil
		}
	}
}

// readLines feeds stdin lines to a channel so the prompt can also wait on
// the interrupt signal.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// watch renders snapshots of call gen until it settles or fails.
func watch(ctx context.Context, states <-chan client.State, gen uint64, out io.Writer) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case st, ok := <-states:
			if !ok {
				return false
			}
			if st.Generation != gen {
				continue
			}
			if st.InFlight {
				if st.Live != nil {
					fmt.Fprintf(out, "\r\033[K%s", progress(*st.Live))
				}
				continue
			}
			fmt.Fprint(out, "\r\033[K")
			if st.Notice != "" {
				fmt.Fprintln(out, st.Notice)
				return true
			}
			if st.Live != nil {
				render(out, *st.Live)
			}
			return true
		}
	}
}

func progress(r insight.Result) string {
	text := r.Response
	if len(text) > 60 {
		text = "..." + text[len(text)-57:]
	}
	return fmt.Sprintf("%s [%d KPIs]", strings.ReplaceAll(text, "\n", " "), len(r.Queries))
}

func render(out io.Writer, r insight.Result) {
	fmt.Fprintln(out, r.Response)
	for i, q := range r.Queries {
		fmt.Fprintf(out, "  %d. %s: %s\n", i+1, q.Name, q.Description)
	}
}
