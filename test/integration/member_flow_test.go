// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

//go:build integration

package integration

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/memberauth/memberauth/internal/auth"
	"github.com/memberauth/memberauth/internal/auth/postgres"
	"github.com/memberauth/memberauth/internal/session"
	"github.com/memberauth/memberauth/internal/web"
)

type browser struct {
	base   string
	client *http.Client
}

func newBrowser(base string) *browser {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &browser{base: base, client: &http.Client{Jar: jar, Timeout: 10 * time.Second}}
}

func (b *browser) do(method, path string, form url.Values) (int, map[string]any) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(env.ctx, method, b.base+path, body)
	Expect(err).NotTo(HaveOccurred())
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := b.client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	var decoded map[string]any
	if len(raw) > 0 {
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
	}
	return resp.StatusCode, decoded
}

func (b *browser) dropCookie(name string) {
	u, err := url.Parse(b.base)
	Expect(err).NotTo(HaveOccurred())
	b.client.Jar.SetCookies(u, []*http.Cookie{{Name: name, Value: "", MaxAge: -1, Path: "/"}})
}

var _ = Describe("Member flow", func() {
	var srv *httptest.Server

	BeforeEach(func() {
		env.reset()

		repo := postgres.NewCredentialRepository(env.pool)
		hasher, err := auth.NewArgon2idHasher("site-salt", auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
		Expect(err).NotTo(HaveOccurred())
		svc, err := auth.NewCredentialService(repo, hasher)
		Expect(err).NotTo(HaveOccurred())

		sessions, err := session.NewRedisStore(env.redis, session.PrefixSession, time.Hour)
		Expect(err).NotTo(HaveOccurred())
		remember, err := session.NewRedisStore(env.redis, session.PrefixRememberMe, 24*time.Hour)
		Expect(err).NotTo(HaveOccurred())

		s, err := web.NewServer(web.Options{
			Manager:        auth.ManagerConfig{LoginHashSalt: "login-salt"},
			SessionCookie:  session.CookieOptions{Name: "sid"},
			RememberCookie: session.CookieOptions{Name: "rmcookie"},
		}, web.Deps{
			Sessions: sessions,
			Remember: remember,
			Store:    repo,
			Hasher:   hasher,
			Service:  svc,
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		Expect(err).NotTo(HaveOccurred())
		srv = httptest.NewServer(s.Handler())
	})

	AfterEach(func() {
		srv.Close()
	})

	It("registers, logs in, edits the profile and deletes the account", func() {
		b := newBrowser(srv.URL)

		status, body := b.do(http.MethodPost, "/register", url.Values{
			"email": {"Alice@Example.com"}, "password": {"secret1"}, "name": {"Alice"},
		})
		Expect(status).To(Equal(http.StatusCreated))
		Expect(body["member_id"]).To(BeNumerically("==", 1))

		status, _ = b.do(http.MethodPost, "/login", url.Values{"email": {"alice@example.com"}, "password": {"secret1"}})
		Expect(status).To(Equal(http.StatusOK))

		status, body = b.do(http.MethodPatch, "/me", url.Values{"attr.nickname": {"ally"}})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["updated"]).To(BeTrue())

		status, body = b.do(http.MethodGet, "/me", nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["email"]).To(Equal("Alice@Example.com"))
		Expect(body["attributes"]).To(HaveKeyWithValue("nickname", "ally"))

		status, _ = b.do(http.MethodPost, "/me/password", url.Values{"old_password": {"secret1"}, "password": {"secret2"}})
		Expect(status).To(Equal(http.StatusNoContent))

		status, body = b.do(http.MethodPost, "/me/check-password", url.Values{"password": {"secret2"}})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["valid"]).To(BeTrue())

		status, _ = b.do(http.MethodDelete, "/me", nil)
		Expect(status).To(Equal(http.StatusNoContent))

		var members int
		Expect(env.pool.QueryRow(env.ctx, `SELECT count(*) FROM members`).Scan(&members)).To(Succeed())
		Expect(members).To(BeZero())
	})

	It("keeps a single session per member", func() {
		phone, laptop := newBrowser(srv.URL), newBrowser(srv.URL)
		status, _ := phone.do(http.MethodPost, "/register", url.Values{"email": {"a@x.com"}, "password": {"secret1"}})
		Expect(status).To(Equal(http.StatusCreated))

		status, _ = phone.do(http.MethodPost, "/login", url.Values{"email": {"a@x.com"}, "password": {"secret1"}})
		Expect(status).To(Equal(http.StatusOK))
		status, _ = laptop.do(http.MethodPost, "/login", url.Values{"email": {"a@x.com"}, "password": {"secret1"}})
		Expect(status).To(Equal(http.StatusOK))

		status, _ = phone.do(http.MethodGet, "/me", nil)
		Expect(status).To(Equal(http.StatusUnauthorized))
		status, _ = laptop.do(http.MethodGet, "/me", nil)
		Expect(status).To(Equal(http.StatusOK))
	})

	It("restores a login from the remember-me cookie", func() {
		b := newBrowser(srv.URL)
		status, _ := b.do(http.MethodPost, "/register", url.Values{"email": {"a@x.com"}, "password": {"secret1"}})
		Expect(status).To(Equal(http.StatusCreated))
		status, _ = b.do(http.MethodPost, "/login", url.Values{"email": {"a@x.com"}, "password": {"secret1"}, "remember": {"1"}})
		Expect(status).To(Equal(http.StatusOK))

		b.dropCookie("sid")

		status, body := b.do(http.MethodGet, "/me", nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["email"]).To(Equal("a@x.com"))
	})

	It("rejects a wrong password without creating a session", func() {
		b := newBrowser(srv.URL)
		status, _ := b.do(http.MethodPost, "/register", url.Values{"email": {"a@x.com"}, "password": {"secret1"}})
		Expect(status).To(Equal(http.StatusCreated))

		status, body := b.do(http.MethodPost, "/login", url.Values{"email": {"a@x.com"}, "password": {"nope"}})
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body["code"]).To(Equal("AUTH_LOGIN_FAILED"))

		keys, err := env.redis.Keys(env.ctx, session.PrefixSession+"*").Result()
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(BeEmpty())
	})
})
