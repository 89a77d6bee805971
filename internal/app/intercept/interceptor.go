// Package intercept holds the network interceptors the hub installs while
// related operations are in flight. They apply to the hub's own outbound HTTP
// traffic and are mirrored to the browser shim as declarative rules.
package intercept

import (
	"maps"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

type Kind string

const (
	KindLocale Kind = "locale"
	KindOrigin Kind = "origin"
)

// Interceptor is a predicate/effect pair. Effect may edit the request in place
// and returns a non-empty URL to redirect instead of sending it.
type Interceptor struct {
	Kind     Kind
	Effect   func(req *http.Request) (redirect string)
	urls     []string
	patterns []*regexp.Regexp
	action   string
	params   map[string]string
}

// Rule is the declarative form of an interceptor, applied by the browser
// shim to page traffic the hub never sees.
type Rule struct {
	Kind   Kind              `json:"kind"`
	URLs   []string          `json:"urls"`
	Action string            `json:"action"`
	Params map[string]string `json:"params,omitempty"`
}

const (
	ActionSetQuery     = "setQuery"
	ActionRemoveHeader = "removeHeader"
)

func New(kind Kind, patterns []string, effect func(*http.Request) string) *Interceptor {
	i := &Interceptor{Kind: kind, Effect: effect, urls: patterns}
	for _, p := range patterns {
		i.patterns = append(i.patterns, compileGlob(p))
	}
	return i
}

// Describe sets the action the shim performs for this interceptor.
func (i *Interceptor) Describe(action string, params map[string]string) *Interceptor {
	i.action = action
	i.params = params
	return i
}

func (i *Interceptor) Rule() Rule {
	return Rule{
		Kind:   i.Kind,
		URLs:   slices.Clone(i.urls),
		Action: i.action,
		Params: maps.Clone(i.params),
	}
}

func (i *Interceptor) Match(u *url.URL) bool {
	s := u.String()
	for _, rx := range i.patterns {
		if rx.MatchString(s) {
			return true
		}
	}
	return false
}

// compileGlob turns a URL pattern such as https://*.example.com/* into a regexp.
func compileGlob(p string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(p)
	return regexp.MustCompile("^" + strings.ReplaceAll(quoted, `\*`, ".*") + "$")
}

var challengeURLs = []string{
	"https://google.com/recaptcha/api2/anchor*",
	"https://google.com/recaptcha/api2/bframe*",
	"https://www.google.com/recaptcha/api2/anchor*",
	"https://www.google.com/recaptcha/api2/bframe*",
	"https://google.com/recaptcha/enterprise/anchor*",
	"https://google.com/recaptcha/enterprise/bframe*",
	"https://www.google.com/recaptcha/enterprise/anchor*",
	"https://www.google.com/recaptcha/enterprise/bframe*",
	"https://recaptcha.net/recaptcha/api2/anchor*",
	"https://recaptcha.net/recaptcha/api2/bframe*",
	"https://www.recaptcha.net/recaptcha/api2/anchor*",
	"https://www.recaptcha.net/recaptcha/api2/bframe*",
	"https://recaptcha.net/recaptcha/enterprise/anchor*",
	"https://recaptcha.net/recaptcha/enterprise/bframe*",
	"https://www.recaptcha.net/recaptcha/enterprise/anchor*",
	"https://www.recaptcha.net/recaptcha/enterprise/bframe*",
}

var serviceURLs = []string{
	"https://google.com/*",
	"https://www.google.com/*",
	"https://recaptcha.net/*",
	"https://www.recaptcha.net/*",
	"https://api.wit.ai/*",
	"https://speech.googleapis.com/*",
	"https://*.speech-to-text.watson.cloud.ibm.com/*",
	"https://*.stt.speech.microsoft.com/*",
}

// ChallengeLocale forces hl=en on challenge iframe URLs.
func ChallengeLocale() *Interceptor {
	return New(KindLocale, challengeURLs, func(req *http.Request) string {
		u := *req.URL
		q := u.Query()
		if q.Get("hl") == "en" {
			return ""
		}
		q.Set("hl", "en")
		u.RawQuery = q.Encode()
		return u.String()
	}).Describe(ActionSetQuery, map[string]string{"hl": "en"})
}

// OriginStripper drops an Origin header equal to origin on requests to the
// captcha vendor and recognition service domains.
func OriginStripper(origin string) *Interceptor {
	return New(KindOrigin, serviceURLs, func(req *http.Request) string {
		if origin != "" && req.Header.Get("Origin") == origin {
			req.Header.Del("Origin")
		}
		return ""
	}).Describe(ActionRemoveHeader, map[string]string{"name": "Origin", "value": origin})
}
