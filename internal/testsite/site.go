// Package testsite serves a small fake CatLux site for tests.
package testsite

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	Username     = "student"
	Password     = "secret"
	Token        = "tok-123"
	CategoryPath = "/probearbeiten/klasse-5/mathe"
	sessionName  = "PHPSESSID"
	sessionValue = "fake-session"
)

// Doc is one listed exam group
type Doc struct {
	ID        string
	Title     string
	Reference string
	// NoSolution makes the solution link answer 404
	NoSolution bool
}

// Site is a fake CatLux server. Pages holds the listing; page n of the
// category serves Pages[n-1].
type Site struct {
	*httptest.Server

	Pages [][]Doc

	mu         sync.Mutex
	delay      time.Duration
	failLogins int
	failPage   int
	notPDF     map[string]bool
	logins     int
	loginPosts int
	downloads  []string
}

// New starts a site listing pages
func New(pages ...[]Doc) *Site {
	s := &Site{Pages: pages, notPDF: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc(CategoryPath, s.handleListing)
	mux.HandleFunc("/files/", s.handleFile)
	s.Server = httptest.NewServer(mux)
	return s
}

// CategoryURL is the absolute listing URL
func (s *Site) CategoryURL() string {
	return s.URL + CategoryPath
}

// SetDelay delays every document download by d
func (s *Site) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// FailLogins answers the next n login page requests with 503
func (s *Site) FailLogins(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLogins = s.logins + n
}

// FailPage answers listing page n with 500
func (s *Site) FailPage(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPage = n
}

// ServeHTML makes the named document answer with an HTML page
func (s *Site) ServeHTML(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notPDF[name] = true
}

// LoginPosts counts credential submissions
func (s *Site) LoginPosts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginPosts
}

// Downloads returns the document names served so far
func (s *Site) Downloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.downloads...)
}

func (s *Site) authenticated(r *http.Request) bool {
	c, err := r.Cookie(sessionName)
	return err == nil && c.Value == sessionValue
}

func (s *Site) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.mu.Lock()
		s.logins++
		fail := s.logins <= s.failLogins
		s.mu.Unlock()
		if fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, loginPage(""))
		return
	}

	s.mu.Lock()
	s.loginPosts++
	s.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("FORM_SUBMIT") != "tl_login" || r.PostForm.Get("REQUEST_TOKEN") != Token {
		http.Error(w, "invalid request token", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("username") != Username || r.PostForm.Get("password") != Password {
		fmt.Fprint(w, loginPage(`<p class="error">Anmeldung fehlgeschlagen</p>`))
		return
	}

	http.SetCookie(w, &http.Cookie{Name: sessionName, Value: sessionValue, Path: "/"})
	fmt.Fprint(w, `<html><body><div class="mod_logout"><form><input type="hidden" name="FORM_SUBMIT" value="tl_logout"></form></div></body></html>`)
}

func loginPage(message string) string {
	return `<html><body>
<form id="search"><input type="hidden" name="REQUEST_TOKEN" value="other"><input name="keywords"></form>
<form method="post">` + message + `
<input type="hidden" name="FORM_SUBMIT" value="tl_login">
<input type="hidden" name="REQUEST_TOKEN" value="` + Token + `">
<input type="text" name="username"><input type="password" name="password">
</form></body></html>`
}

func (s *Site) handleListing(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	n, err := strconv.Atoi(r.URL.Query().Get("p"))
	if err != nil || n < 1 {
		n = 1
	}

	s.mu.Lock()
	fail := n == s.failPage
	s.mu.Unlock()
	if fail {
		http.Error(w, "listing unavailable", http.StatusInternalServerError)
		return
	}

	var b strings.Builder
	b.WriteString("<html><body><div class=\"mod_documents\">")
	if n <= len(s.Pages) {
		for _, d := range s.Pages[n-1] {
			fmt.Fprintf(&b, `<div class="doc item list row">
  <h3 class="title">%s</h3>
  <span class="category">Mathematik</span>
  <span class="number">%s</span>
  <a href="/files/%s?dl=pdf">Probe</a>
  <a href="/files/%s_solution?dl=pdf">Lösung</a>
</div>`, d.Title, d.Reference, d.ID, d.ID)
		}
	}
	b.WriteString("</div></body></html>")
	fmt.Fprint(w, b.String())
}

func (s *Site) handleFile(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/files/")
	id := strings.TrimSuffix(name, "_solution")
	doc, ok := s.find(id)
	if !ok || (doc.NoSolution && id != name) {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	delay, html := s.delay, s.notPDF[name]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if html {
		fmt.Fprint(w, "<html><body>Bitte anmelden</body></html>")
		return
	}

	s.mu.Lock()
	s.downloads = append(s.downloads, name)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/pdf")
	fmt.Fprintf(w, "%%PDF-1.4\n%% %s\n%%%%EOF\n", name)
}

func (s *Site) find(id string) (Doc, bool) {
	for _, page := range s.Pages {
		for _, d := range page {
			if d.ID == id {
				return d, true
			}
		}
	}
	return Doc{}, false
}
