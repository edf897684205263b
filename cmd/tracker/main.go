// Command tracker sends a single tracking event, the way the browser
// snippet does. It is handy for checking a resource's setup:
//
//	tracker -id ot_web_ab12c -type page_view -url "https://shop.example/?utm_source=tg"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dmitrijs2005/opentrace-console/internal/client/config"
	"github.com/dmitrijs2005/opentrace-console/internal/flagx"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
	"github.com/dmitrijs2005/opentrace-console/internal/tracker"
)

func main() {
	cfg := config.LoadConfig()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	var (
		uid, typ, pageURL, ref, res, lang string
		rules                             bool
	)
	fs := flag.NewFlagSet("tracker", flag.ExitOnError)
	fs.StringVar(&uid, "id", "", "resource tracking uid (ot_web_...)")
	fs.StringVar(&typ, "type", tracker.TypePageView, "event type")
	fs.StringVar(&pageURL, "url", "", "page URL; utm_* and click ids are read from its query")
	fs.StringVar(&ref, "ref", "", "referrer")
	fs.StringVar(&res, "res", "1920x1080", "screen resolution")
	fs.StringVar(&lang, "lang", "en-US", "browser language")
	fs.BoolVar(&rules, "rules", false, "print the visit rules matching -url and send them as events")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-id", "-type", "-url", "-ref", "-res", "-lang", "-rules"}))

	t, err := tracker.New(tracker.Options{
		Endpoint:   cfg.TrackingEndpoint(),
		ResourceID: uid,
		Resolution: res,
		Language:   lang,
		Timeout:    cfg.RequestTimeout,
	}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx := context.Background()
	t.Collect(ctx, typ, pageURL, ref, nil)

	if rules {
		rs, err := t.Rules(ctx)
		if err != nil {
			logger.Warn(ctx, "rules not loaded", "error", err)
		}
		for _, name := range tracker.VisitMatches(rs, tracker.PagePath(pageURL)) {
			fmt.Println("rule matched:", name)
			t.Collect(ctx, name, pageURL, ref, map[string]any{"auto": true})
		}
	}

	t.Wait()
	fmt.Printf("session %s: %d delivered, %d dropped\n", t.SessionID(), t.Delivered(), t.Dropped())
	if t.Dropped() > 0 {
		os.Exit(1)
	}
}
