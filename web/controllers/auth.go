package controllers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"go-qris/payment/browser"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) Login(c *gin.Context) {
	ip := c.ClientIP()
	if ok, wait := h.Logins.Allow(ip); !ok {
		seconds := int(math.Ceil(wait.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
		fail(c, http.StatusTooManyRequests, fmt.Sprintf("Too many login attempts. Try again in %d seconds.", seconds))
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if c.ShouldBindJSON(&body) != nil {
		fail(c, http.StatusBadRequest, "Failed to read body")
		return
	}

	if !h.Auth.CheckPassword(body.Password) {
		h.Logins.RecordFailure(ip)
		h.Logger.Warn("admin login failed", zap.String("ip", ip))
		fail(c, http.StatusUnauthorized, "Invalid password")
		return
	}
	h.Logins.Clear(ip)

	token, err := h.Auth.IssueToken()
	if err != nil {
		h.Logger.Error("failed to sign admin token", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to create token")
		return
	}
	h.Auth.SetCookie(c, token)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) LoginStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"authenticated": h.Auth.Authenticated(c),
	})
}

// CookieStatus reports whether cookies for the external store were uploaded.
func (h *Handler) CookieStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"isLoggedIn":  h.Cookies.Exists(),
		"cookiesPath": h.Cookies.Path(),
		"instructions": []string{
			"Log in to Tokopedia in a regular browser",
			"Export the cookies of tokopedia.com as JSON with a cookie editor extension",
			"POST them here as {\"cookies\": [...]}",
		},
	})
}

func (h *Handler) SaveCookies(c *gin.Context) {
	var body struct {
		Cookies []browser.Cookie `json:"cookies"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Cookies == nil {
		fail(c, http.StatusBadRequest, "Invalid cookies format. Expected an array of cookies.")
		return
	}

	if err := h.Cookies.Save(body.Cookies); err != nil {
		h.Logger.Error("failed to save cookies", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to save cookies")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Cookies saved successfully!",
		"cookiesCount": len(body.Cookies),
	})
}
