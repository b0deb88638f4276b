package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/adiga-code/SimConnect/internal/service"
	"github.com/adiga-code/SimConnect/internal/storage"
	"go.uber.org/zap"
)

const (
	userIDKey  = authContextKey("userID")
	authHeader = "Authorization"
	// tokenParam lets EventSource clients authenticate the stream request,
	// since they cannot set headers.
	tokenParam = "token"
)

type authContextKey string

type AuthHandler struct {
	authService service.AuthService
}

func (a *AuthHandler) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, req *http.Request) {
		token := req.Header.Get(authHeader)
		if token == "" {
			token = req.URL.Query().Get(tokenParam)
		}
		userID, err := a.authService.CheckToken(token)
		if errors.Is(err, service.ErrUnauthorized) {
			http.Error(writer, err.Error(), http.StatusUnauthorized)
			return
		} else if err != nil {
			zap.L().Error("check token error", zap.Error(err))
			http.Error(writer, "Internal server error", http.StatusInternalServerError)
			return
		}
		ctx := context.WithValue(req.Context(), userIDKey, userID)
		next.ServeHTTP(writer, req.WithContext(ctx))
	})
}

func GetUserIDFromContext(ctx context.Context) internal.UserID {
	return ctx.Value(userIDKey).(internal.UserID)
}

type AuthData struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (a *AuthHandler) RegisterUser(writer http.ResponseWriter, req *http.Request) {
	var registerReq AuthData
	if !unmarshalRequest(writer, req, &registerReq) {
		return
	}
	if !a.ValidateAuthData(writer, registerReq) {
		return
	}
	token, err := a.authService.RegisterUser(req.Context(), registerReq.Login, registerReq.Password)
	if errors.Is(err, storage.ErrAlreadyExists) {
		http.Error(writer, err.Error(), http.StatusConflict)
		return
	} else if err != nil {
		zap.L().Error("register user error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	writer.Header().Set(authHeader, string(token))
	writer.WriteHeader(http.StatusOK)
}

func (a *AuthHandler) AuthUser(writer http.ResponseWriter, req *http.Request) {
	var authReq AuthData
	if !unmarshalRequest(writer, req, &authReq) {
		return
	}
	if !a.ValidateAuthData(writer, authReq) {
		return
	}
	token, err := a.authService.AuthUser(req.Context(), authReq.Login, authReq.Password)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, service.ErrIncorrectPassword) {
		http.Error(writer, err.Error(), http.StatusUnauthorized)
		return
	} else if err != nil {
		zap.L().Error("authentication user error", zap.Error(err))
		http.Error(writer, "Internal server error", http.StatusInternalServerError)
		return
	}
	writer.Header().Set(authHeader, string(token))
	writer.WriteHeader(http.StatusOK)
}

func (a *AuthHandler) ValidateAuthData(writer http.ResponseWriter, data AuthData) bool {
	if data.Login == "" {
		http.Error(writer, "Login is required", http.StatusBadRequest)
		return false
	}
	if data.Password == "" {
		http.Error(writer, "Password is required", http.StatusBadRequest)
		return false
	}
	return true
}
