package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/octobees/lead-capture/internal/auth"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Session is an issued admin session.
type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// AuthService validates the single admin account and issues session tokens.
type AuthService struct {
	username     string
	passwordHash []byte
	sessions     *auth.SessionManager
	logger       logrus.FieldLogger
}

// NewAuthService constructs a new AuthService. An empty passwordHash disables login.
func NewAuthService(username, passwordHash string, sessions *auth.SessionManager, logger logrus.FieldLogger) *AuthService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuthService{
		username:     strings.TrimSpace(username),
		passwordHash: []byte(strings.TrimSpace(passwordHash)),
		sessions:     sessions,
		logger:       logger,
	}
}

// Login validates credentials and returns a session.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password must not be empty")
	}
	if len(s.passwordHash) == 0 {
		s.logger.Warn("admin login attempted but ADMIN_PASSWORD_HASH is not set")
		return nil, ErrInvalidCredentials
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil || !userOK {
		s.logger.WithField("username", username).Warn("admin login rejected")
		return nil, ErrInvalidCredentials
	}

	token, expires, err := s.sessions.Issue(s.username, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}

	return &Session{Token: token, Username: s.username, ExpiresAt: expires}, nil
}
