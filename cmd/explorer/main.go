// cmd/explorer/main.go
package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"wiki-explorer/internal/client"
	"wiki-explorer/internal/common/config"
	"wiki-explorer/internal/common/logger"
	"wiki-explorer/internal/explorer"
	"wiki-explorer/internal/render"
)

// printer shows the session live: status lines on state changes and the
// article text as it streams.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	last explorer.State
}

func (p *printer) SessionChanged(s explorer.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.State == p.last {
		return
	}
	switch s.State {
	case explorer.StateDisambiguating:
		fmt.Fprintf(p.out, "Looking up %q...\n", s.Query)
	case explorer.StateStreaming:
		fmt.Fprintf(p.out, "\n--- %s ---\n", s.Topic)
	case explorer.StateIdle:
		if p.last == explorer.StateStreaming {
			fmt.Fprintln(p.out)
		}
	}
	p.last = s.State
}

func (p *printer) ContentAppended(delta string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, delta)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if err := cfg.ValidateClient(); err != nil {
		zapLog.Fatal("client configuration invalid", zap.Error(err))
	}

	session := explorer.NewSession(explorer.FromClient(client.NewClient(cfg.Client, log)), log)
	session.Subscribe(&printer{out: os.Stdout})
	term := render.Terminal{Width: cfg.Client.Width}

	// Ctrl-C cancels a running search; when idle it exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			if sig == os.Interrupt && session.Snapshot().Busy() {
				session.Cancel()
				continue
			}
			fmt.Fprintln(os.Stdout)
			os.Exit(0)
		}
	}()

	fmt.Fprintf(os.Stdout, "Wiki explorer (%s). Enter a topic, a number to follow, or \"q\" to quit.\n", cfg.Article.Language)
	r := &repl{session: session, term: term, out: os.Stdout, log: zapLog}
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stdout, "> ")
		if !in.Scan() {
			return
		}
		if !r.handle(context.Background(), in.Text()) {
			return
		}
	}
}

// repl turns one input line into a search and prints its outcome.
type repl struct {
	session *explorer.Session
	term    render.Terminal
	out     io.Writer
	log     *zap.Logger
	// links are the topics of the article on screen, numbered from 1.
	links []string
}

// handle runs one input line. It returns false when the user quits.
func (r *repl) handle(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "q" || input == "quit" {
		return false
	}

	var runErr error
	if topic, ok := pick(input, r.session.Snapshot(), r.links); ok {
		runErr = r.session.Select(ctx, topic)
	} else {
		runErr = r.session.Search(ctx, input)
	}
	if stderrors.Is(runErr, explorer.ErrQueryRequired) {
		fmt.Fprintln(r.out, runErr.Error())
		return true
	}

	// Numbers only follow links of an article that is fully on screen.
	r.links = nil
	snap := r.session.Snapshot()
	switch {
	case stderrors.Is(runErr, context.Canceled):
		fmt.Fprintln(r.out, "(cancelled)")
	case snap.Err != "":
		fmt.Fprintf(r.out, "Error: %s\n", snap.Err)
	}

	if snap.State == explorer.StateChoicePending {
		if err := r.term.Choices(r.out, snap.Query, snap.Choices); err != nil {
			r.log.Error("write choices failed", zap.Error(err))
		}
		return true
	}
	if snap.Article != nil && runErr == nil {
		fmt.Fprintln(r.out)
		links, err := r.term.Article(r.out, snap.Article)
		if err != nil {
			r.log.Error("write article failed", zap.Error(err))
		}
		r.links = links
	}
	return true
}

// pick maps a numeric input to a pending choice or an article link.
func pick(input string, snap explorer.Snapshot, links []string) (string, bool) {
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 {
		return "", false
	}
	if snap.State == explorer.StateChoicePending {
		if n <= len(snap.Choices) {
			return snap.Choices[n-1].Topic, true
		}
		return "", false
	}
	if n <= len(links) {
		return links[n-1], true
	}
	return "", false
}
