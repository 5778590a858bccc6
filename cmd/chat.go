package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/iksnae/questchat/internal"
	"github.com/iksnae/questchat/internal/broker"
	"github.com/iksnae/questchat/internal/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var chatSessionID string

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat with the configured guild or quest.

Each line you type is sent as a message. The agent's reply streams in as it
arrives. Finished turns are saved to the local history.

Commands:
  /stop            stop the running turn
  /answer <text>   answer a pending clarification question
  /dismiss         dismiss a pending clarification question
  /quit            leave the chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := chatTarget()
		if !target.Addressable() {
			return fmt.Errorf("no chat target: set --guild or --quest (or guild/quest in the config file)")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		engine, err := connectEngine(ctx, target, chatSessionID)
		if err != nil {
			return err
		}
		defer engine.Close()

		loop := newChatLoop(engine, store, newRenderer(cmd.OutOrStdout()))
		return loop.run(ctx, cmd.InOrStdin())
	},
}

// connectEngine dials the dashboard WebSocket and builds an engine for target.
// A non-empty sessionID resumes that session and, for guild targets, replays it.
func connectEngine(ctx context.Context, target internal.Target, sessionID string) (*internal.Engine, error) {
	wsURL, err := cfg.WebSocketURL()
	if err != nil {
		return nil, err
	}
	ws := transport.NewWebSocket(transport.Options{
		URL:            wsURL,
		ReconnectDelay: cfg.GetReconnectDelay(),
		Logger:         internal.Logger(),
	})

	dialCtx, cancel := context.WithTimeout(ctx, cfg.GetRequestTimeout())
	defer cancel()
	if err := ws.Connect(dialCtx); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	client := broker.NewClient(cfg.Server, cfg.GetRequestTimeout())
	return internal.NewEngine(internal.Options{
		Target:    target,
		SessionID: sessionID,
		Transport: ws,
		Starter:   client,
		Stopper:   client,
	}), nil
}

// transcriptPrinter prints entries once they stop changing. An entry is
// printed when a later entry appears or when the turn ends. User entries
// from index liveFrom on were typed here and are not echoed back.
type transcriptPrinter struct {
	mu       sync.Mutex
	r        *renderer
	engine   *internal.Engine
	printed  int
	liveFrom int
}

func newTranscriptPrinter(engine *internal.Engine, r *renderer) *transcriptPrinter {
	p := &transcriptPrinter{r: r, engine: engine}
	if engine.Replaying() {
		p.liveFrom = math.MaxInt
	}
	return p
}

func (p *transcriptPrinter) flush(all bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.engine.Entries()
	upto := len(entries)
	if !all {
		upto--
	}
	for ; p.printed < upto; p.printed++ {
		e := entries[p.printed]
		if e.Role == internal.RoleUser && p.printed >= p.liveFrom {
			continue
		}
		p.r.entry(e)
	}
}

// attach subscribes the printer and returns a function that detaches it
func (p *transcriptPrinter) attach() func() {
	disposers := []func(){
		p.engine.Subscribe(internal.EventEntryAppended, func(internal.Event) { p.flush(false) }),
		p.engine.Subscribe(internal.EventStreamingChanged, func(ev internal.Event) {
			if !ev.IsStreaming {
				p.flush(true)
			}
		}),
		p.engine.Subscribe(internal.EventReplayComplete, func(internal.Event) {
			p.flush(true)
			p.mu.Lock()
			defer p.mu.Unlock()
			p.liveFrom = p.printed
		}),
		p.engine.Subscribe(internal.EventClarificationRequested, func(ev internal.Event) {
			p.flush(true)
			p.mu.Lock()
			defer p.mu.Unlock()
			p.r.clarification(ev.Clarification)
		}),
		p.engine.Subscribe(internal.EventQuestLinked, func(ev internal.Event) {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.r.note("Linked to quest " + ev.QuestID)
		}),
	}
	// replay may have finished before the subscription
	if !p.engine.Replaying() {
		p.mu.Lock()
		stale := p.liveFrom == math.MaxInt
		p.mu.Unlock()
		if stale {
			p.flush(true)
			p.mu.Lock()
			p.liveFrom = p.printed
			p.mu.Unlock()
		}
	}
	return func() {
		for _, d := range disposers {
			d()
		}
	}
}

func (p *transcriptPrinter) note(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.r.note(msg)
}

// chatLoop drives one interactive session
type chatLoop struct {
	engine  *internal.Engine
	store   *internal.Store
	printer *transcriptPrinter
	now     func() time.Time
}

func newChatLoop(engine *internal.Engine, store *internal.Store, r *renderer) *chatLoop {
	return &chatLoop{
		engine:  engine,
		store:   store,
		printer: newTranscriptPrinter(engine, r),
		now:     time.Now,
	}
}

// run reads lines from in until EOF, /quit or ctx is done
func (l *chatLoop) run(ctx context.Context, in io.Reader) error {
	detach := l.printer.attach()
	defer detach()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	saves := make(chan struct{}, 1)
	unsubscribe := l.engine.Subscribe(internal.EventChatComplete, func(internal.Event) {
		select {
		case saves <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	// stdin reads cannot be interrupted, so the reader lives outside the group
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-saves:
				l.save()
			}
		}
	})

	g.Go(func() error {
		defer cancel()
		l.printer.note(fmt.Sprintf("Chatting with %s. Type /quit to leave.", l.engine.Target()))
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if quit := l.handleLine(gctx, g, line); quit {
					return nil
				}
			}
		}
	})

	err := g.Wait()
	l.printer.flush(true)
	l.save()
	return err
}

// handleLine applies one input line and reports whether the user quit
func (l *chatLoop) handleLine(ctx context.Context, g *errgroup.Group, line string) bool {
	text := strings.TrimSpace(line)
	if text == "" {
		return false
	}

	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true

	case "/stop":
		if !l.engine.IsStreaming() {
			l.printer.note("Nothing is running.")
			return false
		}
		l.engine.StopChat(ctx)
		l.printer.note("Stopped.")
		return false

	case "/dismiss":
		l.engine.DismissClarification()
		return false

	case "/answer":
		if l.engine.PendingClarification() == nil {
			l.printer.note("No question is waiting for an answer.")
			return false
		}
		if arg == "" {
			l.printer.note("Usage: /answer <text>")
			return false
		}
		text = arg

	case "/help":
		l.printer.note("Commands: /stop, /answer <text>, /dismiss, /quit")
		return false
	}

	g.Go(func() error {
		l.engine.SendMessage(ctx, internal.SendRequest{Message: text})
		return nil
	})
	return false
}

// save writes the current transcript to history when it has a session id
func (l *chatLoop) save() {
	if l.store == nil {
		return
	}
	snap := l.engine.State()
	if snap.CurrentSessionID == "" || len(snap.Entries) == 0 {
		return
	}
	session, err := internal.NewNormalizer().NormalizeSnapshot(snap, l.engine.Target(), internal.SourceLive, l.now())
	if err != nil {
		internal.LogDebug("Not saving transcript: %v", err)
		return
	}
	written, err := l.store.SaveSession(session)
	if err != nil {
		internal.LogWarn("Failed to save transcript: %v", err)
		return
	}
	if written {
		internal.LogDebug("Saved session %s (%d entries)", session.ID, len(session.Entries))
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Resume an existing session id")
}
