package auth

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"etkash_go_backend/internal/errors"
	"etkash_go_backend/internal/metrics"
	"etkash_go_backend/internal/models"
	"etkash_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const contextUserIDKey = "userID"

type signInRequest struct {
	Identifier string `json:"identifier" binding:"required"` // email or username
	Password   string `json:"password" binding:"required"`
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Birthday string `json:"birthday"`
}

type signInBody struct {
	models.UserProfile
	Token string `json:"token"`
}

func SetupRoutes(r gin.IRouter, users services.CredentialStore, issuer *TokenIssuer, limiter *SignInLimiter) {
	signInHandlers := []gin.HandlerFunc{signIn(users, issuer)}
	if limiter != nil {
		signInHandlers = append([]gin.HandlerFunc{limiter.Middleware()}, signInHandlers...)
	}
	r.POST("/signin", signInHandlers...)
	r.POST("/signout", signOut)
	r.POST("/register", register(users))
}

func signIn(users services.CredentialStore, issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := zerolog.Ctx(c.Request.Context())

		var req signInRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.HandleError(c, errors.New400Error("Identifier and password are required"))
			return
		}

		user, err := users.FindByIdentifier(c.Request.Context(), req.Identifier)
		if err != nil {
			if stderrors.Is(err, services.ErrUserNotFound) {
				burnPasswordCheck(req.Password)
				metrics.SignInTotal.WithLabelValues("invalid_credentials").Inc()
				errors.HandleError(c, errors.New401Error("Invalid credentials"))
				return
			}
			metrics.SignInTotal.WithLabelValues("error").Inc()
			errors.HandleError(c, err)
			return
		}

		if !CheckPassword(req.Password, user.Password) {
			metrics.SignInTotal.WithLabelValues("invalid_credentials").Inc()
			log.Info().Uint("userID", user.ID).Msg("Sign-in rejected")
			errors.HandleError(c, errors.New401Error("Invalid credentials"))
			return
		}

		token, err := issuer.Issue(strconv.FormatUint(uint64(user.ID), 10))
		if err != nil {
			metrics.SignInTotal.WithLabelValues("error").Inc()
			errors.HandleError(c, errors.LogAndReturn500(err))
			return
		}

		metrics.SignInTotal.WithLabelValues("success").Inc()
		log.Info().Uint("userID", user.ID).Msg("User signed in")
		c.JSON(http.StatusOK, gin.H{
			"statusCode": http.StatusOK,
			"body": signInBody{
				UserProfile: user.Profile(),
				Token:       token,
			},
		})
	}
}

// Tokens are stateless; signing out is the client discarding its token.
func signOut(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"statusCode": http.StatusOK,
		"body":       "Signed out successfully",
	})
}

func register(users services.CredentialStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.HandleError(c, errors.New400Error("A valid email, username and password are required"))
			return
		}

		birthday, err := models.ParseBirthday(req.Birthday)
		if err != nil {
			errors.HandleError(c, errors.New400Error("Birthday must be formatted as YYYY-MM-DD"))
			return
		}

		hash, err := HashPassword(req.Password)
		if err != nil {
			if stderrors.Is(err, bcrypt.ErrPasswordTooLong) {
				errors.HandleError(c, errors.New400Error("Password is too long"))
				return
			}
			errors.HandleError(c, errors.LogAndReturn500(err))
			return
		}

		user, err := users.CreateUser(c.Request.Context(), services.NewUser{
			Email:        req.Email,
			Username:     req.Username,
			PasswordHash: hash,
			Birthday:     birthday,
		})
		if err != nil {
			errors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"statusCode": http.StatusOK,
			"body":       "Registered successfully",
			"user":       user.Profile(),
		})
	}
}

// AuthMiddleware accepts a bearer token from the Authorization header, or from
// the token query parameter on websocket upgrades, and stores the caller's
// user id in the gin context.
func AuthMiddleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var token string
		if websocket.IsWebSocketUpgrade(c.Request) {
			token = c.Query("token")
		} else {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				errors.HandleError(c, errors.New401Error("Authorization header is required"))
				return
			}
			scheme, value, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || value == "" {
				errors.HandleError(c, errors.New401Error("Invalid authorization header"))
				return
			}
			token = value
		}
		if token == "" {
			errors.HandleError(c, errors.New401Error("Token is required"))
			return
		}

		subject, err := issuer.Validate(token)
		if err != nil {
			if stderrors.Is(err, ErrTokenExpired) {
				errors.HandleError(c, errors.New401Error("Token has expired"))
				return
			}
			errors.HandleError(c, errors.New401Error("Invalid token"))
			return
		}

		userID, err := strconv.ParseUint(subject, 10, 64)
		if err != nil || userID == 0 {
			errors.HandleError(c, errors.New401Error("Invalid token: User ID not found"))
			return
		}

		logger := zerolog.Ctx(ctx).With().Uint64("userID", userID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(ctx))
		c.Set(contextUserIDKey, uint(userID))
		c.Next()
	}
}

// UserIDFromContext returns the id stored by AuthMiddleware.
func UserIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get(contextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok
}
