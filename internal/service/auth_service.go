package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/repository"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
	"github.com/noah-isme/dicampus-admin/pkg/notify"
)

const (
	msgSignedIn      = "Se ha iniciado sesión correctamente"
	msgInvalidSignIn = "Usuario o contraseña incorrectos"
)

type credentialRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// AuthConfig defines configuration for session tokens.
type AuthConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// AuthService is the identity provider: it signs operators in and out and
// exposes the current principal as a continuously updated value.
type AuthService struct {
	repo      credentialRepository
	validator *validator.Validate
	logger    *zap.Logger
	notifier  notify.Sink
	config    AuthConfig
	now       func() time.Time

	mu          sync.RWMutex
	current     *models.Principal
	revoked     map[string]time.Time
	watchers    map[int]func(*models.Principal)
	nextWatcher int
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo credentialRepository, validate *validator.Validate, logger *zap.Logger, notifier notify.Sink, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if config.Expiry <= 0 {
		config.Expiry = 12 * time.Hour
	}
	return &AuthService{
		repo:      repo,
		validator: validate,
		logger:    logger,
		notifier:  notifier,
		config:    config,
		now:       time.Now,
		revoked:   make(map[string]time.Time),
		watchers:  make(map[int]func(*models.Principal)),
	}
}

// SignIn checks the credential and issues a session token.
func (s *AuthService) SignIn(ctx context.Context, cred models.Credential) (*models.Session, error) {
	if err := s.validator.Struct(cred); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sign-in payload")
	}

	user, err := s.repo.FindByEmail(ctx, cred.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, s.rejectSignIn()
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if !user.Active {
		return nil, s.rejectSignIn()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cred.Password)); err != nil {
		return nil, s.rejectSignIn()
	}

	issuedAt := s.now().UTC()
	principal := models.Principal{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.FullName,
		SessionID: uuid.NewString(),
		ExpiresAt: issuedAt.Add(s.config.Expiry),
	}
	token, err := s.signToken(principal, issuedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session token")
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, issuedAt); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.setCurrent(&principal)
	s.logger.Info("operator signed in", zap.String("user_id", user.ID))
	s.notifier.Notify(msgSignedIn, notify.SeveritySuccess, 0)

	return &models.Session{
		AccessToken: token,
		ExpiresIn:   int64(s.config.Expiry.Seconds()),
		IssuedAt:    issuedAt,
		User:        principal,
	}, nil
}

func (s *AuthService) rejectSignIn() error {
	s.notifier.Notify(msgInvalidSignIn, notify.SeverityError, 0)
	return appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
}

// SignOut revokes the session behind token.
func (s *AuthService) SignOut(_ context.Context, token string) error {
	principal, err := s.Authenticate(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	now := s.now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[principal.SessionID] = principal.ExpiresAt
	clearCurrent := s.current != nil && s.current.SessionID == principal.SessionID
	s.mu.Unlock()

	if clearCurrent {
		s.setCurrent(nil)
	}
	s.logger.Info("operator signed out", zap.String("user_id", principal.UserID))
	return nil
}

// Authenticate validates a session token and returns its principal.
func (s *AuthService) Authenticate(token string) (*models.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &models.JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid session")
	}
	claims, ok := parsed.Claims.(*models.JWTClaims)
	if !ok || !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid session claims")
	}

	s.mu.RLock()
	_, revoked := s.revoked[claims.ID]
	s.mu.RUnlock()
	if revoked {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session has been signed out")
	}

	principal := &models.Principal{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Name:      claims.Name,
		SessionID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}
	return principal, nil
}

// Current returns the most recently signed-in principal, or nil.
func (s *AuthService) Current() *models.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// Watch calls fn with the current principal now and on every change.
func (s *AuthService) Watch(fn func(*models.Principal)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextWatcher++
	id := s.nextWatcher
	s.watchers[id] = fn
	s.mu.Unlock()

	fn(s.Current())
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *AuthService) setCurrent(p *models.Principal) {
	s.mu.Lock()
	s.current = p
	watchers := make([]func(*models.Principal), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(s.Current())
	}
}

func (s *AuthService) signToken(p models.Principal, issuedAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		UserID: p.UserID,
		Email:  p.Email,
		Name:   p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        p.SessionID,
			Issuer:    s.config.Issuer,
			Subject:   p.UserID,
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}
