/*
Package handler provides HTTP handler functions for account creation and sign-in.
*/
package handler

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"convochat/internal/app/store"
	"convochat/internal/pkg/auth/jwt"
	"convochat/internal/pkg/errs"
	"convochat/internal/pkg/logx"
	"convochat/internal/pkg/randx"
	"convochat/internal/pkg/req"
	"convochat/internal/pkg/resp"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt input limit
	maxUsernameLen = 50
)

type SignUpInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserView is the public part of an account.
type UserView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type AuthResponse struct {
	Token string   `json:"token"`
	User  UserView `json:"user"`
}

// HandleSignUp creates an account and returns a session token for it.
func HandleSignUp(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SignUpInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		input.Email = strings.TrimSpace(input.Email)
		input.Username = strings.TrimSpace(input.Username)

		if input.Email == "" || input.Username == "" || input.Password == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		if _, err := mail.ParseAddress(input.Email); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		if utf8.RuneCountInString(input.Username) > maxUsernameLen || strings.ContainsAny(input.Username, ", ") {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		passwordLen := utf8.RuneCountInString(input.Password)
		if passwordLen < minPasswordLen || len(input.Password) > maxPasswordLen {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidPassword))
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			logx.Error(err, "signup: password hashing failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		account := store.User{
			ID:           randx.UserID(),
			Email:        input.Email,
			Username:     input.Username,
			PasswordHash: string(hashedPassword),
			CreatedAt:    store.Now(),
		}

		if err := deps.Store.CreateUser(r.Context(), account); err != nil {
			if errors.Is(err, store.ErrConflict) {
				resp.RespondError(w, r, conflictError(deps, r, account))
				return
			}

			logx.Error(err, "signup: failed to create user")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		token, customErr := issueToken(deps, account)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		logx.Info("User signed up", "user_id", account.ID)
		resp.RespondCreated(w, r, AuthResponse{Token: token, User: viewOf(account)})
	}
}

// conflictError tells a duplicate email apart from a duplicate username.
func conflictError(deps *AppDeps, r *http.Request, account store.User) *errs.CustomError {
	if _, err := deps.Store.GetUserByEmail(r.Context(), account.Email); err == nil {
		logx.Warn("signup conflict: email already exists")
		return errs.NewError(errs.ErrEmailExists)
	}

	logx.Warn("signup conflict: username already exists", "username", account.Username)
	return errs.NewError(errs.ErrUsernameExists)
}

// HandleSignIn verifies email and password and issues a session token.
func HandleSignIn(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SignInInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Email == "" || input.Password == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		account, err := deps.Store.GetUserByEmail(r.Context(), strings.TrimSpace(input.Email))
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logx.Error(err, "signin: user lookup failed")
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(input.Password)); err != nil {
			logx.Warn("signin: password mismatch", "user_id", account.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		token, customErr := issueToken(deps, account)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, AuthResponse{Token: token, User: viewOf(account)})
	}
}

func issueToken(deps *AppDeps, account store.User) (string, *errs.CustomError) {
	ttl := deps.Config.TokenTTL
	if ttl <= 0 {
		ttl = jwt.SessionExpiration
	}

	payload := &jwt.Payload{
		UserID:   account.ID,
		Email:    account.Email,
		Username: account.Username,
	}

	token, err := jwt.GenerateToken(payload, deps.Config.JWTSecret, ttl)
	if err != nil {
		logx.Error(err, "jwt generation failed", "user_id", account.ID)
		return "", errs.NewError(errs.ErrUnknown)
	}
	return token, nil
}

func viewOf(u store.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, Username: u.Username}
}
