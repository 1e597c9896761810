package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispute-reconciliation-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrUserNotFound is returned by Repository implementations for unknown emails.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrInvalidToken signals a bad or expired bearer token.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Repository is the persistence surface the auth service needs.
type Repository interface {
	CreateStaffUser(ctx context.Context, user *models.StaffUser) error
	GetStaffUserByEmail(ctx context.Context, email string) (*models.StaffUser, error)
}

// Service handles staff authentication.
type Service struct {
	repo      Repository
	jwtSecret []byte
}

func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{repo: repo, jwtSecret: []byte(jwtSecret)}
}

// Identity is what the middleware exposes to handlers; Apply records Email
// as the reviewer.
type Identity struct {
	UserID   uuid.UUID
	Email    string
	FullName string
}

// Register creates a staff account.
func (s *Service) Register(ctx context.Context, email, fullName, password string) (*models.StaffUser, error) {
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}
	if email == "" || fullName == "" {
		return nil, fmt.Errorf("auth: email and full_name are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user := &models.StaffUser{
		ID:           uuid.New(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.repo.CreateStaffUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates a staff member and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.StaffUser, error) {
	user, err := s.repo.GetStaffUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return token, user, nil
}

// ParseToken validates a bearer token and returns the identity it carries.
func (s *Service) ParseToken(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return &Identity{UserID: userID, Email: email, FullName: name}, nil
}

func (s *Service) generateToken(user *models.StaffUser) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"name":  user.FullName,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}
