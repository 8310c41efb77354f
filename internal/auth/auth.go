// Package auth provides services for user authentication, including
// password hashing, JWT generation, and validation.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"
)

const (
	// accessTokenDuration defines the validity period for an access token.
	accessTokenDuration = 24 * time.Hour
	// refreshTokenDuration defines the validity period for a refresh token.
	refreshTokenDuration = 30 * 24 * time.Hour
	// bcryptCost is the cost factor for hashing passwords. A higher value is more secure
	// but also slower. 14 is a strong and recommended value.
	bcryptCost = 14

	// voiceCloneAuthPrefix tags tokens minted for the voice-svc handshake.
	voiceCloneAuthPrefix = "VOICE_CLONE_AUTH-"
	// voiceCloneTokenLifetime bounds how long a minted voice-svc token is accepted.
	voiceCloneTokenLifetime = 5 * time.Minute
)

// AuthService provides methods for handling JWT-based authentication.
type AuthService struct {
	jwtSecret       []byte
	voiceCloneSecret []byte
}

// GooglePayload holds the essential claims extracted from a Google ID token.
type GooglePayload struct {
	Email   string
	Subject string
}

// NewAuthService creates and returns a new AuthService instance.
// It requires a non-empty JWT secret key. voiceCloneSecret signs the
// short-lived HMAC tokens used to authenticate with the voice synthesis
// service; if empty, the JWT secret is reused for it.
func NewAuthService(secret, voiceCloneSecret string) (*AuthService, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	if voiceCloneSecret == "" {
		voiceCloneSecret = secret
	}
	return &AuthService{jwtSecret: []byte(secret), voiceCloneSecret: []byte(voiceCloneSecret)}, nil
}

// HashPassword generates a bcrypt hash from a given password string.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a plaintext password with a bcrypt hash.
// It returns true if the password matches the hash, and false otherwise.
// It safely handles cases where the hash pointer is nil.
func CheckPasswordHash(password string, hash *string) bool {
	if hash == nil {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(*hash), []byte(password))
	return err == nil
}

// CreateAccessToken generates a new JWT access token for a given user and role.
func (s *AuthService) CreateAccessToken(username, role string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  username,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(accessTokenDuration).Unix(),
		"role": role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// CreateRefreshToken generates a new JWT refresh token for a given user.
func (s *AuthService) CreateRefreshToken(username string) (string, error) {
	claims := jwt.MapClaims{
		"sub": username,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(refreshTokenDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateJWT parses and validates a JWT token string.
// If the token is valid, it returns the username (subject) stored within the token.
func (s *AuthService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Ensure that the signing method is HMAC, as we expect.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		if username, ok := claims["sub"].(string); ok {
			return username, nil
		}
	}

	return "", errors.New("invalid token")
}

// ValidateGoogleJWT validates a Google-issued ID token against a specific client ID (audience).
// If the token is valid, it extracts and returns the user's email and Google subject ID.
func (s *AuthService) ValidateGoogleJWT(googleToken, audience string) (*GooglePayload, error) {
	payload, err := idtoken.Validate(context.Background(), googleToken, audience)
	if err != nil {
		return nil, fmt.Errorf("google token validation failed: %w", err)
	}

	email, ok := payload.Claims["email"].(string)
	if !ok || email == "" {
		return nil, errors.New("email claim is missing or empty in the Google token")
	}

	return &GooglePayload{
		Email:   email,
		Subject: payload.Subject,
	}, nil
}

// MintVoiceCloneToken produces the HMAC credential the voice-svc handshake
// expects: VOICE_CLONE_AUTH-<base64url(hex(sig).unix_seconds)>, signed over
// the Unix timestamp so voice-svc can reject stale handshakes on its own.
func (s *AuthService) MintVoiceCloneToken() string {
	now := time.Now().Unix()
	ts := strconv.FormatInt(now, 10)
	mac := hmac.New(sha256.New, s.voiceCloneSecret)
	mac.Write([]byte(ts))
	sig := hex.EncodeToString(mac.Sum(nil))
	payload := base64.URLEncoding.EncodeToString([]byte(sig + "." + ts))
	return voiceCloneAuthPrefix + payload
}

// ValidateVoiceCloneToken verifies a token minted by MintVoiceCloneToken,
// rejecting it once voiceCloneTokenLifetime has elapsed since minting.
// The worker callback handler does not use it: deliveries are authenticated
// with the static WorkerCallbackToken.
func (s *AuthService) ValidateVoiceCloneToken(token string) error {
	if !strings.HasPrefix(token, voiceCloneAuthPrefix) {
		return errors.New("malformed voice clone token")
	}
	raw, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(token, voiceCloneAuthPrefix))
	if err != nil {
		return fmt.Errorf("malformed voice clone token payload: %w", err)
	}
	parts := strings.SplitN(string(raw), ".", 2)
	if len(parts) != 2 {
		return errors.New("malformed voice clone token payload")
	}
	sigHex, tsStr := parts[0], parts[1]
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return errors.New("malformed voice clone token timestamp")
	}
	if time.Since(time.Unix(ts, 0)) > voiceCloneTokenLifetime {
		return errors.New("voice clone token expired")
	}

	mac := hmac.New(sha256.New, s.voiceCloneSecret)
	mac.Write([]byte(tsStr))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sigHex), []byte(expected)) {
		return errors.New("invalid voice clone token signature")
	}
	return nil
}
