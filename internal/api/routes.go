package api

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"etkash_go_backend/internal/auth"
	"etkash_go_backend/internal/errors"
	"etkash_go_backend/internal/models"
	"etkash_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

type tokenUsageSummary struct {
	MonthlyTokenLimit int64 `json:"monthly_token_limit"`
	TokensUsed        int64 `json:"tokens_used"`
}

type userInfoBody struct {
	models.UserProfile
	TokenUsage *tokenUsageSummary   `json:"token_usage"`
	Rewards    []models.RewardView `json:"rewards"`
}

type chatMessageRequest struct {
	ClientID string `json:"client_id" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Tokens   int64  `json:"tokens"`
}

func SetupRoutes(r gin.IRouter, ledger services.QuotaLedger, users services.CredentialStore, chatService *services.ChatService, issuer *auth.TokenIssuer) {
	r.GET("/", home)
	r.GET("/health-check", healthCheck)

	r.GET("/token-usage/:user_id", getTokenUsageHandler(ledger))
	r.PUT("/token-usage/:user_id", updateTokenUsageHandler(ledger))
	r.GET("/user-info", auth.AuthMiddleware(issuer), getUserInfoHandler(users, ledger))

	api := r.Group("/api")
	{
		api.POST("/chat/session", startChatSessionHandler(chatService))
		api.GET("/chat/history", getChatHistoryHandler(chatService))
		api.POST("/chat/message", auth.AuthMiddleware(issuer), sendChatMessageHandler(chatService))
	}
}

func home(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ET Kash welcomes you to the backend of the project."})
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseUserID(c *gin.Context) (uint, bool) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		errors.HandleError(c, errors.New400Error("Invalid user id"))
		return 0, false
	}
	return uint(userID), true
}

func getTokenUsageHandler(ledger services.QuotaLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseUserID(c)
		if !ok {
			return
		}

		usage, err := ledger.GetQuota(c.Request.Context(), userID)
		if err != nil {
			errors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, usage.View())
	}
}

// updateTokenUsageHandler charges tokens_used tokens against the user's quota.
func updateTokenUsageHandler(ledger services.QuotaLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseUserID(c)
		if !ok {
			return
		}

		raw, present := c.GetQuery("tokens_used")
		if !present {
			errors.HandleError(c, errors.New400Error("tokens_used is required"))
			return
		}
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errors.HandleError(c, errors.New400Error("tokens_used must be an integer"))
			return
		}

		usage, err := ledger.Consume(c.Request.Context(), userID, amount)
		if err != nil {
			errors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":     "Token usage updated successfully",
			"tokens_used": usage.TokensUsed,
		})
	}
}

func getUserInfoHandler(users services.CredentialStore, ledger services.QuotaLedger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID, ok := auth.UserIDFromContext(c)
		if !ok {
			errors.HandleError(c, errors.New401Error(""))
			return
		}

		user, err := users.GetUserByID(ctx, userID)
		if err != nil {
			errors.HandleError(c, err)
			return
		}

		body := userInfoBody{
			UserProfile: user.Profile(),
			Rewards:     []models.RewardView{},
		}

		usage, err := ledger.GetQuota(ctx, userID)
		switch {
		case err == nil:
			body.TokenUsage = &tokenUsageSummary{
				MonthlyTokenLimit: usage.MonthlyTokenLimit,
				TokensUsed:        usage.TokensUsed,
			}
		case stderrors.Is(err, services.ErrQuotaNotFound):
		default:
			errors.HandleError(c, err)
			return
		}

		rewards, err := users.ListRewards(ctx, userID)
		if err != nil {
			errors.HandleError(c, err)
			return
		}
		for i := range rewards {
			body.Rewards = append(body.Rewards, rewards[i].View())
		}

		c.JSON(http.StatusOK, gin.H{
			"statusCode": http.StatusOK,
			"body":       body,
		})
	}
}

func startChatSessionHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.Query("client_id")
		if err := chatService.StartSession(c.Request.Context(), clientID); err != nil {
			errors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Chat session started for client %s", clientID)})
	}
}

func getChatHistoryHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		history, err := chatService.History(c.Request.Context(), c.Query("client_id"))
		if err != nil {
			errors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"chat_history": history})
	}
}

// sendChatMessageHandler records one metered chat turn for the caller. A zero
// or missing tokens field is estimated from the message.
func sendChatMessageHandler(chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok {
			errors.HandleError(c, errors.New401Error(""))
			return
		}

		var request chatMessageRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			errors.HandleError(c, errors.New400Error("client_id and message are required"))
			return
		}

		entry, usage, err := chatService.SendMessage(c.Request.Context(), userID, request.ClientID, request.Message, request.Tokens)
		if err != nil {
			errors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"entry":       entry,
			"token_usage": usage.View(),
		})
	}
}
