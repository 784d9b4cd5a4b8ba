// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package management exposes the local control surface: starting login
// flows, listing and removing authenticated sites, and draining
// notifications produced by background work.
package management

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/atlasbridge/atlasbridge/internal/auth"
	"github.com/atlasbridge/atlasbridge/internal/login"
)

// LoginService is the slice of the login manager the handlers need.
type LoginService interface {
	UserInitiatedOAuthLogin(ctx context.Context, site auth.SiteInfo, finalRedirectURL string) error
	InitRemoteAuth() (state, authURL string, err error)
	FinishRemoteAuth(ctx context.Context, state, code string) error
	UserInitiatedServerLogin(ctx context.Context, site auth.SiteInfo, creds login.ServerCredentials) (auth.DetailedSiteInfo, error)
}

// SiteService is the slice of the site registry the handlers need.
type SiteService interface {
	AllSites() []auth.DetailedSiteInfo
	ProductSites(product auth.Product) []auth.DetailedSiteInfo
	GetSiteForID(product auth.Product, siteID string) (auth.DetailedSiteInfo, bool)
	RemoveSite(product auth.Product, siteID string) (bool, error)
}

// CredentialService removes stored credentials during sign out.
type CredentialService interface {
	RemoveAuthInfo(ctx context.Context, site auth.DetailedSiteInfo) error
}

// Handler wires the management endpoints.
type Handler struct {
	login         LoginService
	sites         SiteService
	credentials   CredentialService
	notifications *NotificationBuffer
}

func NewHandler(loginSvc LoginService, sites SiteService, credentials CredentialService, notifications *NotificationBuffer) *Handler {
	if notifications == nil {
		notifications = NewNotificationBuffer()
	}
	return &Handler{
		login:         loginSvc,
		sites:         sites,
		credentials:   credentials,
		notifications: notifications,
	}
}

// Register mounts the management routes on a router group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.POST("/auth/oauth", h.startOAuthLogin)
	group.POST("/auth/remote/init", h.initRemoteAuth)
	group.POST("/auth/remote/finish", h.finishRemoteAuth)
	group.POST("/auth/server", h.serverLogin)
	group.GET("/sites", h.listSites)
	group.DELETE("/sites/:product/:id", h.removeSite)
	group.GET("/notifications", h.drainNotifications)
}

type oauthLoginRequest struct {
	Host             string `json:"host" binding:"required"`
	Product          string `json:"product" binding:"required"`
	FinalRedirectURL string `json:"finalRedirectUrl"`
}

// startOAuthLogin kicks off the interactive browser flow. The dance can
// take minutes, so the request returns immediately and the outcome lands in
// the notification buffer.
func (h *Handler) startOAuthLogin(c *gin.Context) {
	var req oauthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	product, ok := auth.ProductForKey(req.Product)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown product " + req.Product})
		return
	}

	site := auth.SiteInfo{Host: req.Host, Product: product}
	go func() {
		if err := h.login.UserInitiatedOAuthLogin(context.Background(), site, req.FinalRedirectURL); err != nil {
			log.WithError(err).WithField("host", site.Host).Warn("oauth login failed")
			h.notifications.Error("Authentication failed for "+site.Host, err)
			return
		}
		h.notifications.Info("Authenticated " + site.Host)
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *Handler) initRemoteAuth(c *gin.Context) {
	state, authURL, err := h.login.InitRemoteAuth()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state, "url": authURL})
}

type remoteFinishRequest struct {
	State string `json:"state" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

func (h *Handler) finishRemoteAuth(c *gin.Context) {
	var req remoteFinishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.login.FinishRemoteAuth(c.Request.Context(), req.State, req.Code); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "authenticated"})
}

type serverLoginRequest struct {
	Host        string `json:"host" binding:"required"`
	Product     string `json:"product" binding:"required"`
	Protocol    string `json:"protocol"`
	ContextPath string `json:"contextPath"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Token       string `json:"token"`
}

func (h *Handler) serverLogin(c *gin.Context) {
	var req serverLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	product, ok := auth.ProductForKey(req.Product)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown product " + req.Product})
		return
	}
	if req.Token == "" && (req.Username == "" || req.Password == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either token or username and password are required"})
		return
	}

	site := auth.SiteInfo{
		Host:        req.Host,
		Product:     product,
		Protocol:    req.Protocol,
		ContextPath: req.ContextPath,
	}
	creds := login.ServerCredentials{Username: req.Username, Password: req.Password, Token: req.Token}

	detailed, err := h.login.UserInitiatedServerLogin(c.Request.Context(), site, creds)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detailed)
}

func (h *Handler) listSites(c *gin.Context) {
	var sites []auth.DetailedSiteInfo
	if key := c.Query("product"); key != "" {
		product, ok := auth.ProductForKey(key)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown product " + key})
			return
		}
		sites = h.sites.ProductSites(product)
	} else {
		sites = h.sites.AllSites()
	}
	if sites == nil {
		sites = []auth.DetailedSiteInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"sites": sites})
}

// removeSite signs a site out: the credential goes first, then the registry
// entry, so a half-completed removal never leaves an orphaned secret.
func (h *Handler) removeSite(c *gin.Context) {
	product, ok := auth.ProductForKey(c.Param("product"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown product " + c.Param("product")})
		return
	}
	siteID := c.Param("id")

	site, found := h.sites.GetSiteForID(product, siteID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "site not found"})
		return
	}

	if err := h.credentials.RemoveAuthInfo(c.Request.Context(), site); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.sites.RemoveSite(product, siteID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *Handler) drainNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": h.notifications.Drain()})
}
