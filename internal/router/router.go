// Package router maps raw utterances to handling routes.
//
// Routing is not an intent classifier: it is an ordered list of
// prefix/substring predicates evaluated in a fixed sequence. The first
// matching rule wins; anything unmatched falls through to plain chat, so
// routing is total.
package router

import (
	"strings"

	"slmassist/internal/logging"
)

// Kind identifies the handling path for an utterance.
type Kind int

const (
	// KindChat sends the utterance to the model, optionally grounded on a
	// loaded PDF.
	KindChat Kind = iota

	// KindOpenApp launches a local application.
	KindOpenApp

	// KindOpenURL opens a URL in the default browser.
	KindOpenURL

	// KindFetch retrieves remote text over HTTP.
	KindFetch

	// KindFillForm fills AcroForm fields in the loaded PDF.
	KindFillForm

	// KindTranscribe runs speech-to-text on an audio file.
	KindTranscribe

	// KindSchedule records a task with the scheduling stub.
	KindSchedule
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindOpenApp:
		return "open_app"
	case KindOpenURL:
		return "open_url"
	case KindFetch:
		return "fetch"
	case KindFillForm:
		return "fill_pdf"
	case KindTranscribe:
		return "transcribe"
	case KindSchedule:
		return "schedule"
	}
	return "unknown"
}

// Route is the resolved handling path plus the arguments the matching tool
// (or the chat branch) needs.
type Route struct {
	Kind Kind

	// App is the application name for KindOpenApp.
	App string

	// URL is the target for KindOpenURL and KindFetch.
	URL string

	// Fields holds parsed form assignments for KindFillForm. Empty when the
	// fill grammar did not match; the tool surfaces the usage error.
	Fields map[string]string

	// AudioPath is the file argument for KindTranscribe.
	AudioPath string

	// Raw carries the full utterance for KindSchedule and KindChat.
	Raw string

	// Grounded marks a chat route that should be answered against the
	// loaded PDF's extracted text.
	Grounded bool
}

// Resolve maps an utterance to a route. It is total: unmatched input always
// resolves to plain chat. Keyword matching is case-insensitive; extracted
// arguments preserve the original casing.
//
// Rule order matters because some patterns are substrings of others
// ("open app" vs "open url", "fill pdf" vs the grounded-chat "pdf" check).
func Resolve(utterance string, pdfLoaded bool) Route {
	lower := strings.ToLower(utterance)
	r := resolve(utterance, lower, pdfLoaded)
	logging.RoutingDebug("resolved %q -> %s (pdf_loaded=%v)", utterance, r.Kind, pdfLoaded)
	return r
}

func resolve(utterance, lower string, pdfLoaded bool) Route {
	if strings.HasPrefix(lower, "open safari") {
		return Route{Kind: KindOpenApp, App: "Safari"}
	}

	if strings.HasPrefix(lower, "open app ") {
		return Route{Kind: KindOpenApp, App: strings.TrimSpace(utterance[len("open app "):])}
	}

	if strings.HasPrefix(lower, "go to ") {
		return Route{Kind: KindOpenURL, URL: firstToken(utterance[len("go to "):])}
	}
	if strings.HasPrefix(lower, "open url ") {
		return Route{Kind: KindOpenURL, URL: firstToken(utterance[len("open url "):])}
	}

	if strings.HasPrefix(lower, "fetch data from ") {
		return Route{Kind: KindFetch, URL: strings.TrimSpace(utterance[len("fetch data from "):])}
	}

	if strings.HasPrefix(lower, "fill pdf") && pdfLoaded {
		// A non-matching fill grammar still routes here with an empty
		// assignment set; the tool reports usage, not the router.
		fields, _ := ParseAssignments(utterance)
		return Route{Kind: KindFillForm, Fields: fields}
	}

	if pdfLoaded && (strings.Contains(lower, "pdf") || strings.Contains(lower, "summarize")) {
		return Route{Kind: KindChat, Raw: utterance, Grounded: true}
	}

	if lower == "transcribe" || strings.HasPrefix(lower, "transcribe ") {
		return Route{Kind: KindTranscribe, AudioPath: strings.TrimSpace(utterance[len("transcribe"):])}
	}

	if strings.Contains(lower, "schedule") || strings.Contains(lower, "daily") {
		return Route{Kind: KindSchedule, Raw: utterance}
	}

	return Route{Kind: KindChat, Raw: utterance}
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
