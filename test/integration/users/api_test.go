// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

//go:build integration

package users_test

import (
	"context"
	"net/http"
	"path"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const (
	joEmail    = "jo@example.com"
	joPassword = "secret123"
)

func signupJo() response {
	GinkgoHelper()
	resp := call(http.MethodPost, "/signup", map[string]string{
		"name":            "Jo Traveller",
		"email":           joEmail,
		"password":        joPassword,
		"passwordConfirm": joPassword,
	}, "")
	Expect(resp.status).To(Equal(http.StatusOK), "signup: %v", resp.body)
	return resp
}

// lastResetSecret returns the secret at the end of the most recent reset link.
func lastResetSecret() string {
	GinkgoHelper()
	sent := env.mailer.Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Kind == "reset" {
			return path.Base(sent[i].URL)
		}
	}
	Fail("no reset mail recorded")
	return ""
}

var _ = Describe("Users API", func() {
	BeforeEach(func() {
		truncateUsers(context.Background())
	})

	Describe("signup", func() {
		It("opens a session whose token resolves to the new user", func() {
			resp := signupJo()
			Expect(resp.token()).NotTo(BeEmpty())
			Expect(resp.cookie("jwt")).NotTo(BeNil())
			Expect(resp.cookie("jwt").HttpOnly).To(BeTrue())
			Expect(resp.user()).NotTo(HaveKey("password"))
			Expect(resp.user()).NotTo(HaveKey("passwordHash"))

			me := call(http.MethodGet, "/me", nil, resp.token())
			Expect(me.status).To(Equal(http.StatusOK))
			Expect(me.user()["email"]).To(Equal(joEmail))
			Expect(me.user()["role"]).To(Equal("user"))
		})

		It("rejects a second account for the same email in any case", func() {
			signupJo()
			resp := call(http.MethodPost, "/signup", map[string]string{
				"name":            "Jo Again",
				"email":           "JO@Example.com",
				"password":        joPassword,
				"passwordConfirm": joPassword,
			}, "")
			Expect(resp.status).To(Equal(http.StatusBadRequest))
			Expect(resp.body["message"]).To(Equal("Email is already registered"))
		})
	})

	Describe("login", func() {
		BeforeEach(func() { signupJo() })

		It("accepts the right password", func() {
			resp := call(http.MethodPost, "/login", map[string]string{"email": joEmail, "password": joPassword}, "")
			Expect(resp.status).To(Equal(http.StatusOK))
			Expect(resp.token()).NotTo(BeEmpty())
		})

		It("answers unknown email and wrong password identically", func() {
			wrong := call(http.MethodPost, "/login", map[string]string{"email": joEmail, "password": "wrong-password"}, "")
			unknown := call(http.MethodPost, "/login", map[string]string{"email": "nobody@example.com", "password": joPassword}, "")

			Expect(wrong.status).To(Equal(http.StatusUnauthorized))
			Expect(unknown.status).To(Equal(http.StatusUnauthorized))
			Expect(wrong.body).To(Equal(unknown.body))
			Expect(wrong.body["message"]).To(Equal("Incorrect email or password"))
		})
	})

	Describe("password reset", func() {
		BeforeEach(func() { signupJo() })

		It("exchanges the mailed secret exactly once", func() {
			resp := call(http.MethodPost, "/forgotPassword", map[string]string{"email": joEmail}, "")
			Expect(resp.status).To(Equal(http.StatusOK))
			Expect(resp.body).NotTo(HaveKey("token"), "secret is only delivered by mail")
			secret := lastResetSecret()

			body := map[string]string{"password": "brand-new-pass", "passwordConfirm": "brand-new-pass"}
			resp = call(http.MethodPatch, "/resetPassword/"+secret, body, "")
			Expect(resp.status).To(Equal(http.StatusOK))
			Expect(resp.token()).NotTo(BeEmpty())

			resp = call(http.MethodPatch, "/resetPassword/"+secret, body, "")
			Expect(resp.status).To(Equal(http.StatusBadRequest))
			Expect(resp.body["message"]).To(Equal("Token is invalid or has expired"))

			login := call(http.MethodPost, "/login", map[string]string{"email": joEmail, "password": "brand-new-pass"}, "")
			Expect(login.status).To(Equal(http.StatusOK))
		})

		It("reports an unknown address", func() {
			resp := call(http.MethodPost, "/forgotPassword", map[string]string{"email": "nobody@example.com"}, "")
			Expect(resp.status).To(Equal(http.StatusNotFound))
			Expect(resp.body["message"]).To(Equal("There is no user with this address"))
		})
	})

	Describe("password change", func() {
		It("invalidates tokens issued before the change", func() {
			old := signupJo().token()

			// Token issue times have one-second resolution.
			time.Sleep(1100 * time.Millisecond)

			resp := call(http.MethodPatch, "/updatePassword", map[string]string{
				"currentPassword": joPassword,
				"newPassword":     "another-pass",
				"passwordConfirm": "another-pass",
			}, old)
			Expect(resp.status).To(Equal(http.StatusOK), "update: %v", resp.body)
			fresh := resp.token()

			stale := call(http.MethodGet, "/me", nil, old)
			Expect(stale.status).To(Equal(http.StatusUnauthorized))
			Expect(stale.body["message"]).To(Equal("User recently changed password. Please login again"))

			Expect(call(http.MethodGet, "/me", nil, fresh).status).To(Equal(http.StatusOK))
		})
	})

	Describe("access control", func() {
		It("requires a token", func() {
			resp := call(http.MethodGet, "/me", nil, "")
			Expect(resp.status).To(Equal(http.StatusUnauthorized))
			Expect(resp.body["message"]).To(Equal("Please login to access this"))
		})

		It("restricts user lookup to admins", func() {
			resp := signupJo()
			id, _ := resp.user()["id"].(string)

			Expect(call(http.MethodGet, "/"+id, nil, resp.token()).status).To(Equal(http.StatusForbidden))

			_, err := env.pool.Exec(context.Background(), "UPDATE users SET role = 'admin' WHERE email = $1", joEmail)
			Expect(err).NotTo(HaveOccurred())

			lookup := call(http.MethodGet, "/"+id, nil, resp.token())
			Expect(lookup.status).To(Equal(http.StatusOK))
			Expect(lookup.user()["id"]).To(Equal(id))
		})

		It("stops resolving tokens of a deactivated account", func() {
			tok := signupJo().token()

			Expect(call(http.MethodDelete, "/deleteMe", nil, tok).status).To(Equal(http.StatusNoContent))

			resp := call(http.MethodGet, "/me", nil, tok)
			Expect(resp.status).To(Equal(http.StatusUnauthorized))

			login := call(http.MethodPost, "/login", map[string]string{"email": joEmail, "password": joPassword}, "")
			Expect(login.status).To(Equal(http.StatusUnauthorized))
		})
	})
})
