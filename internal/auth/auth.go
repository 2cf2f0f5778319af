package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when signing up with an email already in use.
	ErrEmailTaken = errors.New("email is already registered")

	// ErrInvalidToken is returned for tokens that fail verification,
	// including expired ones.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// User is a registered account. PasswordHash is a bcrypt hash and must never
// be written to an API response.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists user accounts.
type Store interface {
	// SaveUser saves a user account
	SaveUser(user *User) error

	// GetUserByEmail retrieves a user by email address
	GetUserByEmail(email string) (*User, error)

	// GetUser retrieves a user by ID
	GetUser(id string) (*User, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time { return time.Now() }

// Service answers the one question the ledger core asks — "who is the
// current authenticated actor" — by issuing and verifying signed tokens.
type Service struct {
	store      Store
	secret     []byte
	tokenTTL   time.Duration
	timeSource TimeSource
}

// NewService creates a new auth Service
func NewService(store Store, secret []byte, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		store:      store,
		secret:     secret,
		tokenTTL:   tokenTTL,
		timeSource: &defaultTimeSource{},
	}
}

// NewServiceWithTimeSource creates a Service with a custom clock for testing
func NewServiceWithTimeSource(store Store, secret []byte, tokenTTL time.Duration, ts TimeSource) *Service {
	s := NewService(store, secret, tokenTTL)
	s.timeSource = ts
	return s
}

// SignUp registers a new account with a bcrypt-hashed password.
func (s *Service) SignUp(email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email address is required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}

	if existing, err := s.store.GetUserByEmail(email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.timeSource.Now(),
	}
	if err := s.store.SaveUser(user); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}
	return user, nil
}

// LogIn verifies the credentials and returns a signed bearer token.
func (s *Service) LogIn(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetUserByEmail(email)
	if err != nil || user == nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := s.timeSource.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		Issuer:    "billguard",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// Verify checks a bearer token and returns the user ID it identifies.
func (s *Service) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(s.timeSource.Now),
	)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
