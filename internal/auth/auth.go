package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/p2pex/internal/apperr"
	"github.com/xtrntr/p2pex/internal/models"
)

// UserStore is the persistence surface for accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, id int) (models.User, error)
}

// Service handles registration, login and token verification. Tokens carry
// the principal {userId, role} the core authorizes every call against.
type Service struct {
	store    UserStore
	secret   []byte
	tokenTTL time.Duration
}

func NewService(store UserStore, secret []byte) *Service {
	return &Service{store: store, secret: secret, tokenTTL: 24 * time.Hour}
}

type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// Register creates a new user with a hashed password. Only customer and
// agent accounts self-register; admins are provisioned out of band.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return models.User{}, apperr.New(apperr.KindInvalidInput, "valid email required")
	}
	if in.Username == "" {
		return models.User{}, apperr.New(apperr.KindInvalidInput, "username cannot be empty")
	}
	if len(in.Username) > 50 {
		return models.User{}, apperr.New(apperr.KindInvalidInput, "username too long (max 50 characters)")
	}
	if in.Password == "" {
		return models.User{}, apperr.New(apperr.KindInvalidInput, "password cannot be empty")
	}
	if len(in.Password) > 100 {
		return models.User{}, apperr.New(apperr.KindInvalidInput, "password too long (max 100 characters)")
	}
	role := in.Role
	if role == "" {
		role = models.RoleCustomer
	}
	if role != models.RoleCustomer && role != models.RoleAgent {
		return models.User{}, apperr.New(apperr.KindInvalidInput, "role must be customer or agent")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.store.CreateUser(ctx, &models.User{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: string(hashed),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Login verifies credentials and generates a JWT.
func (s *Service) Login(ctx context.Context, email, password string) (string, models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", models.User{}, apperr.New(apperr.KindInvalidInput, "invalid credentials")
	}
	if !user.IsActive {
		return "", models.User{}, apperr.New(apperr.KindPolicyViolation, "account disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.User{}, apperr.New(apperr.KindInvalidInput, "invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"role":    user.Role,
		"exp":     time.Now().Add(s.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", models.User{}, err
	}
	return signed, user, nil
}

// PrincipalFromToken extracts the authenticated principal from a JWT.
func (s *Service) PrincipalFromToken(tokenString string) (models.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return models.Principal{}, apperr.New(apperr.KindInvalidInput, "invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Principal{}, apperr.New(apperr.KindInvalidInput, "invalid token claims")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return models.Principal{}, apperr.New(apperr.KindInvalidInput, "token missing user_id")
	}
	role, ok := claims["role"].(string)
	if !ok {
		return models.Principal{}, apperr.New(apperr.KindInvalidInput, "token missing role")
	}
	return models.Principal{UserID: int(userID), Role: role}, nil
}
