package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/service"
	"vendepos/backend/internal/store"
)

const (
	tokenIssuer       = "vendepos"
	minUsernameLength = 3
	minPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrAccountInactive    = errors.New("account is inactive")
)

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    store.UserStore
	logger   *zap.Logger
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Username string      `json:"username"`
	Name     string      `json:"name"`
	Role     domain.Role `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users store.UserStore, logger *zap.Logger) (*AuthManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth secret is required")
	}
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		logger:   logger,
	}, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.users.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, fmt.Errorf("load user: %w", err)
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !user.Active {
		return domain.LoginResponse{}, ErrAccountInactive
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(*user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	a.logger.Info("login", zap.String("user", user.Username), zap.String("role", string(user.Role)))
	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		DisplayName: user.DisplayName,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Principal, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Principal{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || !claims.Role.Valid() {
		return domain.Principal{}, ErrInvalidToken
	}
	return domain.Principal{
		ID:          sub,
		Username:    claims.Username,
		DisplayName: claims.Name,
		Role:        claims.Role,
	}, nil
}

func (a *AuthManager) sign(user domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Username: user.Username,
		Name:     user.DisplayName,
		Role:     user.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserView, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < minUsernameLength {
		return domain.UserView{}, &service.ValidationError{Reason: fmt.Sprintf("username must be at least %d characters", minUsernameLength)}
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.UserView{}, &service.ValidationError{Reason: "username must not contain spaces"}
	}
	if len(req.Password) < minPasswordLength {
		return domain.UserView{}, &service.ValidationError{Reason: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}
	if req.Role == "" {
		req.Role = domain.RoleSeller
	}
	if !req.Role.Valid() {
		return domain.UserView{}, &service.ValidationError{Reason: fmt.Sprintf("unknown role %q", req.Role)}
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserView{}, fmt.Errorf("hash password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}
	account := domain.UserAccount{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Role:         req.Role,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.users.CreateUser(ctx, account); err != nil {
		return domain.UserView{}, err
	}

	created, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		return domain.UserView{}, err
	}
	a.logger.Info("user created", zap.String("user", created.Username), zap.String("role", string(created.Role)))
	return toUserView(*created), nil
}

func (a *AuthManager) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	accounts, err := a.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, toUserView(account))
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].Username < views[j].Username
	})
	return views, nil
}

// EnsureAdmin creates an "admin" account when the user store is empty and a
// password was provided. It reports whether an account was created.
func (a *AuthManager) EnsureAdmin(ctx context.Context, password string) (bool, error) {
	if strings.TrimSpace(password) == "" {
		return false, nil
	}
	accounts, err := a.users.ListUsers(ctx)
	if err != nil {
		return false, err
	}
	if len(accounts) > 0 {
		return false, nil
	}
	if _, err := a.CreateUser(ctx, domain.UserCreateRequest{
		Username:    "admin",
		DisplayName: "Administrador",
		Password:    password,
		Role:        domain.RoleAdmin,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func toUserView(account domain.UserAccount) domain.UserView {
	return domain.UserView{
		ID:          account.ID,
		Username:    account.Username,
		DisplayName: account.DisplayName,
		Role:        account.Role,
		Active:      account.Active,
		CreatedAt:   account.CreatedAt,
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
