// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/tourbook/tourbook/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// bindJSON decodes the request body into dst. An empty body leaves dst zero.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return auth.InvalidInput("Invalid input data: request body must be a JSON object")
	}
	return nil
}

func (a *API) sendSession(c *gin.Context, status int, session *auth.Session) {
	a.setSessionCookie(c, session.Token)
	c.JSON(status, gin.H{
		"status": "success",
		"token":  session.Token.Value,
		"data":   gin.H{"user": session.User},
	})
}

func (a *API) signup(c *gin.Context) {
	var in auth.SignupInput
	if err := bindJSON(c, &in); err != nil {
		a.abort(c, err)
		return
	}

	session, err := a.auth.Signup(c.Request.Context(), in, a.origin(c)+BasePath+"/me")
	if err != nil {
		a.abort(c, err)
		return
	}
	a.sendSession(c, http.StatusOK, session)
}

func (a *API) login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		a.abort(c, err)
		return
	}

	session, err := a.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.abort(c, err)
		return
	}
	a.sendSession(c, http.StatusOK, session)
}

func (a *API) logout(c *gin.Context) {
	a.setLoggedOutCookie(c)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (a *API) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		a.abort(c, err)
		return
	}

	secret, err := a.reset.RequestReset(c.Request.Context(), req.Email, a.origin(c)+BasePath+"/resetPassword")
	if err != nil {
		a.abort(c, err)
		return
	}

	body := gin.H{"status": "success", "message": "Token sent to email!"}
	if a.cfg.ExposeResetToken {
		body["token"] = secret
	}
	c.JSON(http.StatusOK, body)
}

func (a *API) resetPassword(c *gin.Context) {
	var in auth.PasswordChange
	if err := bindJSON(c, &in); err != nil {
		a.abort(c, err)
		return
	}

	session, err := a.reset.ResetPassword(c.Request.Context(), c.Param("token"), in)
	if err != nil {
		a.abort(c, err)
		return
	}
	a.setSessionCookie(c, session.Token)
	c.JSON(http.StatusOK, gin.H{"status": "success", "token": session.Token.Value})
}

func (a *API) updatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		a.abort(c, err)
		return
	}

	user := CurrentUser(c)
	session, err := a.auth.UpdatePassword(c.Request.Context(), user.ID, req.CurrentPassword, auth.PasswordChange{
		Password:        req.NewPassword,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		a.abort(c, err)
		return
	}
	a.sendSession(c, http.StatusOK, session)
}

func (a *API) me(c *gin.Context) {
	user, err := a.auth.Me(c.Request.Context(), CurrentUser(c).ID)
	if err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"user": user}})
}

func (a *API) updateMe(c *gin.Context) {
	var in auth.ProfileUpdate
	if err := bindJSON(c, &in); err != nil {
		a.abort(c, err)
		return
	}

	user, err := a.auth.UpdateMe(c.Request.Context(), CurrentUser(c).ID, in)
	if err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"user": user}})
}

func (a *API) deleteMe(c *gin.Context) {
	if err := a.auth.Deactivate(c.Request.Context(), CurrentUser(c).ID); err != nil {
		a.abort(c, err)
		return
	}
	a.setLoggedOutCookie(c)
	c.Status(http.StatusNoContent)
}

func (a *API) getUser(c *gin.Context) {
	id, err := ulid.ParseStrict(c.Param("id"))
	if err != nil {
		a.abort(c, auth.InvalidInput("Invalid id: "+c.Param("id")))
		return
	}

	user, err := a.auth.GetUser(c.Request.Context(), id)
	if err != nil {
		a.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"user": user}})
}

func (a *API) session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"user": CurrentUser(c)}})
}

// origin is the scheme and host that emailed links point at.
func (a *API) origin(c *gin.Context) string {
	if a.cfg.PublicURL != "" {
		return a.cfg.PublicURL
	}
	if overHTTPS(c) {
		return "https://" + c.Request.Host
	}
	return "http://" + c.Request.Host
}
