package driver

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Bounded buffer sizes for event callbacks: console and page-error
// buffers cap at a fixed size and drop the oldest entry once full; the
// network buffer is reset at the start of each stage rather than
// capped, since each stage only needs responses observed during its
// own wait window.
const (
	consoleBufferCap   = 50
	pageErrorBufferCap = 300
)

// ConsoleMessage is one captured console.log/warn/error call.
type ConsoleMessage struct {
	Level string
	Text  string
}

// NetworkResponse is one observed response to a request the page issued.
type NetworkResponse struct {
	URL      string
	Status   int64
	MimeType string
}

// DialogEvent records a native JS dialog (alert/confirm/beforeunload) the
// page tried to open; these are always auto-accepted since the facade
// never blocks on human input.
type DialogEvent struct {
	Type    string
	Message string
}

// subscriptions owns the bounded in-memory buffers fed by
// chromedp.ListenTarget, and the registered handler used by the Signal
// Detector and Recovery Manager to inspect recent page activity without
// re-querying the DOM.
type subscriptions struct {
	mu  sync.Mutex
	ctx context.Context

	console    []ConsoleMessage
	pageErrors []string
	dialogs    []DialogEvent
	responses  []NetworkResponse
}

func newSubscriptions(ctx context.Context) *subscriptions {
	s := &subscriptions{ctx: ctx}
	chromedp.ListenTarget(ctx, s.handle)
	return s
}

func (s *subscriptions) handle(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventJavascriptDialogOpening:
		s.mu.Lock()
		s.dialogs = append(s.dialogs, DialogEvent{Type: string(e.Type), Message: e.Message})
		s.mu.Unlock()
		go func() { _ = chromedp.Run(s.ctx, page.HandleJavaScriptDialog(true)) }()

	case *runtime.EventConsoleAPICalled:
		text := ""
		for _, arg := range e.Args {
			if arg.Value != nil {
				text += string(arg.Value) + " "
			}
		}
		s.appendConsole(ConsoleMessage{Level: string(e.Type), Text: text})

	case *runtime.EventExceptionThrown:
		text := ""
		if e.ExceptionDetails != nil {
			text = e.ExceptionDetails.Text
		}
		s.appendPageError(text)

	case *network.EventResponseReceived:
		s.mu.Lock()
		s.responses = append(s.responses, NetworkResponse{
			URL:      e.Response.URL,
			Status:   e.Response.Status,
			MimeType: e.Response.MimeType,
		})
		s.mu.Unlock()
	}
}

func (s *subscriptions) appendConsole(m ConsoleMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, m)
	if len(s.console) > consoleBufferCap {
		s.console = s.console[len(s.console)-consoleBufferCap:]
	}
}

func (s *subscriptions) appendPageError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageErrors = append(s.pageErrors, text)
	if len(s.pageErrors) > pageErrorBufferCap {
		s.pageErrors = s.pageErrors[len(s.pageErrors)-pageErrorBufferCap:]
	}
}

// ResetStage clears the network response buffer at the start of a new
// stage wait window.
func (s *subscriptions) ResetStage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = nil
}

// RecentConsole returns a snapshot copy of the console buffer.
func (s *subscriptions) RecentConsole() []ConsoleMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConsoleMessage, len(s.console))
	copy(out, s.console)
	return out
}

// RecentPageErrors returns a snapshot copy of the page-error buffer.
func (s *subscriptions) RecentPageErrors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.pageErrors))
	copy(out, s.pageErrors)
	return out
}

// RecentResponses returns a snapshot copy of the current stage's
// observed network responses.
func (s *subscriptions) RecentResponses() []NetworkResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NetworkResponse, len(s.responses))
	copy(out, s.responses)
	return out
}

// RecentDialogs returns a snapshot copy of observed dialog events.
func (s *subscriptions) RecentDialogs() []DialogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DialogEvent, len(s.dialogs))
	copy(out, s.dialogs)
	return out
}

// ResetStage is exposed on Driver so callers don't need the unexported
// subscriptions type.
func (d *Driver) ResetStage()                        { d.subs.ResetStage() }
func (d *Driver) RecentConsole() []ConsoleMessage    { return d.subs.RecentConsole() }
func (d *Driver) RecentPageErrors() []string         { return d.subs.RecentPageErrors() }
func (d *Driver) RecentResponses() []NetworkResponse { return d.subs.RecentResponses() }
func (d *Driver) RecentDialogs() []DialogEvent       { return d.subs.RecentDialogs() }
