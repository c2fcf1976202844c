package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/ordersync-backend/internal/api/dto"
	"github.com/eshaffer321/ordersync-backend/internal/application/service"
)

// AccountsHandler runs the OAuth connect flow for merchant accounts.
type AccountsHandler struct {
	*Base
	connect *service.ConnectService
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(connect *service.ConnectService, logger *slog.Logger) *AccountsHandler {
	return &AccountsHandler{
		Base:    NewBase(nil, logger),
		connect: connect,
	}
}

// Connect handles GET /api/accounts/:accountId/connect - returns the
// platform authorization URL. ?redirect=true answers with a 302 instead.
func (h *AccountsHandler) Connect(c *gin.Context) {
	accountID, ok := h.ParseIDParam(c, "accountId")
	if !ok {
		return
	}

	authURL, err := h.connect.Connect(c.Request.Context(), accountID, h.connect.RedirectURI(requestOrigin(c)))
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	if ParseBoolQuery(c, "redirect", false) {
		c.Redirect(http.StatusFound, authURL)
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.ConnectResponse{Success: true, AuthorizationURL: authURL})
}

// Callback handles GET /oauth/callback?code=&state= - completes authorization.
func (h *AccountsHandler) Callback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		h.WriteError(c, http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeAuth, "authorization denied: "+reason))
		return
	}

	account, err := h.connect.Callback(c.Request.Context(), c.Query("code"), c.Query("state"), h.connect.RedirectURI(requestOrigin(c)))
	if err != nil {
		h.WriteErr(c, err)
		return
	}

	h.WriteJSON(c, http.StatusOK, dto.CallbackResponse{Success: true, AccountID: account.ID, Status: account.Status})
}

// requestOrigin collects what the redirect URI is derived from
func requestOrigin(c *gin.Context) service.RequestOrigin {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return service.RequestOrigin{
		ForwardedProto: c.GetHeader("X-Forwarded-Proto"),
		ForwardedHost:  c.GetHeader("X-Forwarded-Host"),
		Scheme:         scheme,
		Host:           c.Request.Host,
	}
}
