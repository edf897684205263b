package cli

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/opentrace-console/internal/client/gate"
	"github.com/dmitrijs2005/opentrace-console/internal/client/session"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	route(ctx context.Context, v session.View) session.Decision

	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Whoami(ctx context.Context) error
	Passwd(ctx context.Context) error

	Resources(ctx context.Context) error
	Select(ctx context.Context, args []string) error
	Add(ctx context.Context) error
	Edit(ctx context.Context, args []string) error
	Delete(ctx context.Context, kind gate.Kind, args []string) error

	Campaigns(ctx context.Context) error
	Events(ctx context.Context) error
	Tags(ctx context.Context) error

	Dashboard(ctx context.Context) error
	Live(ctx context.Context) error
	Analytics(ctx context.Context, args []string) error
	Funnels(ctx context.Context) error
	Retention(ctx context.Context, args []string) error
	Monitor(ctx context.Context) error
	Refresh(ctx context.Context) error
	Stop(ctx context.Context) error

	Theme(ctx context.Context, args []string) error
	Lang(ctx context.Context, args []string) error
}

// command binds a REPL verb to the screen it belongs to. The guard decides
// on view before run is called.
type command struct {
	view  session.View
	usage string
	run   func(a execIface, ctx context.Context, args []string) error
}

func noArgs(fn func(execIface, context.Context) error) func(execIface, context.Context, []string) error {
	return func(a execIface, ctx context.Context, _ []string) error { return fn(a, ctx) }
}

func deleteOf(kind gate.Kind) func(execIface, context.Context, []string) error {
	return func(a execIface, ctx context.Context, args []string) error { return a.Delete(ctx, kind, args) }
}

var commands = map[string]command{
	"login":  {view: session.ViewLogin, usage: "login", run: noArgs(execIface.Login)},
	"logout": {view: session.ViewProfile, usage: "logout", run: noArgs(execIface.Logout)},
	"whoami": {view: session.ViewProfile, usage: "whoami", run: noArgs(execIface.Whoami)},
	"passwd": {view: session.ViewProfile, usage: "passwd", run: noArgs(execIface.Passwd)},

	"resources": {view: session.ViewResources, usage: "resources", run: noArgs(execIface.Resources)},
	"select":    {view: session.ViewResources, usage: "select <id>", run: execIface.Select},
	"add":       {view: session.ViewResources, usage: "add", run: noArgs(execIface.Add)},
	"edit":      {view: session.ViewResources, usage: "edit <id>", run: execIface.Edit},
	"delete":    {view: session.ViewResources, usage: "delete <id>", run: deleteOf(gate.KindResource)},

	"campaigns":       {view: session.ViewCampaigns, usage: "campaigns", run: noArgs(execIface.Campaigns)},
	"delete-campaign": {view: session.ViewCampaigns, usage: "delete-campaign <id>", run: deleteOf(gate.KindCampaign)},
	"events":          {view: session.ViewEvents, usage: "events", run: noArgs(execIface.Events)},
	"delete-event":    {view: session.ViewEvents, usage: "delete-event <id>", run: deleteOf(gate.KindEvent)},
	"tags":            {view: session.ViewTags, usage: "tags", run: noArgs(execIface.Tags)},
	"delete-tag":      {view: session.ViewTags, usage: "delete-tag <id>", run: deleteOf(gate.KindTag)},
	"funnels":         {view: session.ViewFunnels, usage: "funnels", run: noArgs(execIface.Funnels)},
	"delete-funnel":   {view: session.ViewFunnels, usage: "delete-funnel <id>", run: deleteOf(gate.KindFunnel)},

	"dashboard": {view: session.ViewDashboard, usage: "dashboard", run: noArgs(execIface.Dashboard)},
	"live":      {view: session.ViewLive, usage: "live", run: noArgs(execIface.Live)},
	"analytics": {view: session.ViewAnalytics, usage: "analytics <24h|7d|30d|custom [start] [end]>", run: execIface.Analytics},
	"refresh":   {view: session.ViewDashboard, usage: "refresh", run: noArgs(execIface.Refresh)},
	"retention": {view: session.ViewRetention, usage: "retention [24h|7d|30d|custom [from] [to]]", run: execIface.Retention},
	"monitor":   {view: session.ViewMonitor, usage: "monitor", run: noArgs(execIface.Monitor)},
	"stop":      {view: session.ViewLanding, usage: "stop", run: noArgs(execIface.Stop)},

	"theme": {view: session.ViewLanding, usage: "theme [dark|light]", run: execIface.Theme},
	"lang":  {view: session.ViewLanding, usage: "lang [en|ua|pl|de]", run: execIface.Lang},
}

func helpText() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, commands[name].usage)
	}
	sort.Strings(names)
	return "Available commands: help, " + strings.Join(names, ", ") + ", exit"
}

// runREPL starts a read–eval–print loop for the OpenTrace console.
//
// It reads a line from reader, parses the first token as the command and
// asks the guard whether the command's screen may be entered. A redirect is
// reported instead of running the command: "login" when signed out,
// "passwd" when the first-login password change is still pending. Errors
// from handlers are printed and the loop continues. The loop exits on EOF,
// on "exit" or "quit", or when ctx is done.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Printf("ot %s> ", statusFn())
		line, err := readLine(reader)
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "help":
			printlnFn(helpText())
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		cmd, ok := commands[name]
		if !ok {
			printlnFn("Unknown command:", name)
			continue
		}

		if d := a.route(ctx, cmd.view); !d.Allow {
			printlnFn(redirectMessage(d.Redirect))
			continue
		}

		if err := cmd.run(a, ctx, args); err != nil {
			printlnFn("Error:", err)
		}
	}
}

func redirectMessage(v session.View) string {
	switch v {
	case session.ViewLogin:
		return "Not signed in. Use 'login' first."
	case session.ViewProfile:
		return "Please change your password first ('passwd')."
	}
	return "Redirected to " + string(v)
}

// usageError is returned by handlers called with bad arguments.
func usageError(name string) error {
	return fmt.Errorf("usage: %s", commands[name].usage)
}
