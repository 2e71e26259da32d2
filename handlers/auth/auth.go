package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"notebook-server/core"
	"time"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	DemoUsername = "demo"
	DemoPassword = "demo"

	DefaultTTL = 7 * 24 * time.Hour
)

type (
	Credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	LoginResponse struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
)

// Tokens issues and verifies HS256 access tokens whose subject is the
// username.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) Issue(username string) (string, error) {
	if username == "" {
		return "", errors.New("username is required")
	}

	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *Tokens) Parse(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// DisplayName resolves a presented token to the username it was issued for.
func (t *Tokens) DisplayName(tokenString string) (string, error) {
	claims, err := t.Parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// HandleLogin exchanges valid credentials for an access token.
func HandleLogin(users core.UserStore, tokens *Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			logrus.WithField("error", err).Error("Failed to decode login request")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		log := logrus.WithField("username", creds.Username)
		ok, err := users.Authenticate(r.Context(), creds.Username, creds.Password)
		if err != nil {
			log.WithField("error", err).Error("Failed to verify credentials")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to verify credentials"})
			return
		}
		if !ok {
			log.Warn("Rejected login")
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Invalid credentials"})
			return
		}

		token, err := tokens.Issue(creds.Username)
		if err != nil {
			log.WithField("error", err).Error("Failed to issue token")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to issue token"})
			return
		}

		log.Info("User logged in")
		render.JSON(w, r, LoginResponse{AccessToken: token, TokenType: "bearer"})
	}
}

// SeedDemoUser creates the demo account unless it already exists.
func SeedDemoUser(ctx context.Context, users core.UserStore) error {
	err := users.CreateUser(ctx, DemoUsername, DemoPassword)
	if errors.Is(err, core.ErrUserExists) {
		return nil
	}
	return err
}
