package intercept

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableRegisterIsIdempotent(t *testing.T) {
	tbl := NewTable()
	i := ChallengeLocale()

	assert.True(t, tbl.Register(i))
	assert.False(t, tbl.Register(i))
	assert.Equal(t, 1, tbl.Len())

	assert.True(t, tbl.Unregister(KindLocale))
	assert.False(t, tbl.Unregister(KindLocale))
	assert.Equal(t, 0, tbl.Len())
}

func TestGlobPatterns(t *testing.T) {
	i := OriginStripper("x")
	for _, raw := range []string{
		"https://speech.googleapis.com/v1p1beta1/speech:recognize?key=k",
		"https://eu.stt.speech.microsoft.com/speech/recognition",
		"https://www.recaptcha.net/recaptcha/api2/payload",
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.True(t, i.Match(u), raw)
	}
	u, _ := url.Parse("https://example.com/recaptcha")
	assert.False(t, i.Match(u))
}

func TestChallengeLocaleRedirectsToEnglish(t *testing.T) {
	i := ChallengeLocale()
	req := httptest.NewRequest(http.MethodGet, "https://www.google.com/recaptcha/api2/bframe?hl=de&k=abc", nil)
	require.True(t, i.Match(req.URL))

	redirect := i.Effect(req)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "en", u.Query().Get("hl"))
	assert.Equal(t, "abc", u.Query().Get("k"))

	req = httptest.NewRequest(http.MethodGet, "https://www.google.com/recaptcha/api2/bframe?hl=en", nil)
	assert.Empty(t, i.Effect(req))
}

func TestOriginStripperOnlyRemovesOwnOrigin(t *testing.T) {
	i := OriginStripper("chrome-extension://buster")

	req := httptest.NewRequest(http.MethodPost, "https://speech.googleapis.com/v1/x", nil)
	req.Header.Set("Origin", "chrome-extension://buster")
	i.Effect(req)
	assert.Empty(t, req.Header.Get("Origin"))

	req.Header.Set("Origin", "https://other.test")
	i.Effect(req)
	assert.Equal(t, "https://other.test", req.Header.Get("Origin"))
}

func TestManagerRefCounting(t *testing.T) {
	tbl := NewTable()
	m := NewManager(tbl, nil, OriginStripper("o"))

	r1 := m.Acquire(KindOrigin)
	r2 := m.Acquire(KindOrigin)
	assert.True(t, m.Active(KindOrigin))
	assert.Equal(t, 1, tbl.Len())
	assert.Equal(t, 2, m.Refs(KindOrigin))

	r1()
	r1() // double release counts once
	assert.True(t, m.Active(KindOrigin), "still held by the second operation")

	r2()
	assert.False(t, m.Active(KindOrigin))
	assert.Equal(t, 0, m.Refs(KindOrigin))
}

func TestManagerConcurrentHolders(t *testing.T) {
	tbl := NewTable()
	m := NewManager(tbl, nil, OriginStripper("o"))

	var wg sync.WaitGroup
	for n := 0; n < 50; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := m.Acquire(KindOrigin)
			assert.True(t, tbl.Has(KindOrigin))
			release()
		}()
	}
	wg.Wait()
	assert.False(t, tbl.Has(KindOrigin))
}

func TestManagerHoldFollowsCondition(t *testing.T) {
	tbl := NewTable()
	m := NewManager(tbl, nil, ChallengeLocale(), OriginStripper("o"))

	m.Hold(KindLocale, true)
	m.Hold(KindLocale, true)
	assert.Equal(t, 1, m.Refs(KindLocale))

	m.Hold(KindLocale, false)
	m.Hold(KindLocale, false)
	assert.False(t, m.Active(KindLocale))
	assert.Equal(t, 0, m.Refs(KindLocale))
}

func TestManagerUnknownKind(t *testing.T) {
	m := NewManager(NewTable(), nil)
	release := m.Acquire(KindOrigin)
	assert.NotPanics(t, release)
	assert.False(t, m.Active(KindOrigin))
}

func TestTransportAppliesRegisteredInterceptors(t *testing.T) {
	var gotOrigin, gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrigin = r.Header.Get("Origin")
		gotURL = r.URL.String()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tbl := NewTable()
	strip := New(KindOrigin, []string{srv.URL + "/*"}, func(req *http.Request) string {
		if req.Header.Get("Origin") == "mine" {
			req.Header.Del("Origin")
		}
		return ""
	})
	locale := New(KindLocale, []string{srv.URL + "/challenge*"}, func(req *http.Request) string {
		if req.URL.Query().Get("hl") == "en" {
			return ""
		}
		return srv.URL + "/challenge?hl=en"
	})
	client := &http.Client{Transport: tbl.Transport(srv.Client().Transport)}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/recognize", nil)
	req.Header.Set("Origin", "mine")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "mine", gotOrigin, "nothing registered yet")

	tbl.Register(strip)
	tbl.Register(locale)

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/recognize", nil)
	req.Header.Set("Origin", "mine")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, gotOrigin)
	assert.Equal(t, "mine", req.Header.Get("Origin"), "caller request untouched")

	resp, err = client.Get(srv.URL + "/challenge?hl=fr")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/challenge?hl=en", gotURL)
}

func TestTableObserversSeeRuleChanges(t *testing.T) {
	tbl := NewTable()
	var seen [][]Rule
	tbl.Observe(func(rules []Rule) { seen = append(seen, rules) })
	mgr := NewManager(tbl, nil, ChallengeLocale(), OriginStripper("chrome-extension://buster"))

	mgr.Hold(KindLocale, true)
	mgr.Hold(KindLocale, true)
	release := mgr.Acquire(KindOrigin)
	release()
	mgr.Hold(KindLocale, false)

	require.Len(t, seen, 4, "no-op holds must not notify")
	require.Len(t, seen[0], 1)
	assert.Equal(t, KindLocale, seen[0][0].Kind)
	assert.Equal(t, ActionSetQuery, seen[0][0].Action)
	assert.Equal(t, map[string]string{"hl": "en"}, seen[0][0].Params)
	assert.Contains(t, seen[0][0].URLs, "https://www.google.com/recaptcha/api2/bframe*")

	require.Len(t, seen[1], 2)
	assert.Equal(t, KindOrigin, seen[1][1].Kind)
	assert.Equal(t, ActionRemoveHeader, seen[1][1].Action)
	assert.Equal(t, "chrome-extension://buster", seen[1][1].Params["value"])

	assert.Len(t, seen[2], 1)
	assert.Empty(t, seen[3])
}
