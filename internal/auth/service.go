package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sharath018/school-management-backend/config"
	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ImpersonationTTL bounds how long a platform admin may act as a school.
const ImpersonationTTL = 2 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrInactive           = errors.New("your account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrEmailTaken         = errors.New("email already registered")
	ErrEmailNotSent       = errors.New("failed to send email")
	ErrNoSchoolAdmin      = errors.New("school has no active administrator")
	ErrNotPlatformAdmin   = errors.New("only platform admins can impersonate")
	ErrInvalidRole        = errors.New("invalid role")
)

type Service interface {
	Login(ctx context.Context, in LoginInput) (*TokenPair, *User, error)
	Refresh(refreshToken string) (string, error)
	GetUserByID(userID uint) (User, error)
	ParseAccessToken(token string) (jwt.MapClaims, error)
	CreateUser(ctx context.Context, in CreateUserInput, actorID uint, ip string) (*User, error)

	// Password reset methods
	RequestPasswordReset(email string) error
	ResetPassword(token string, newPassword string) error
	Logout() error

	IssueImpersonation(ctx context.Context, adminID, schoolID uint) (*Grant, error)
	Seed(adminEmail, adminPassword string) error
}

// TokenStore keeps short-lived reset tokens.
type TokenStore interface {
	Set(key, value string, ttl time.Duration) error
	Get(key string) (string, error)
	Delete(key string) error
}

type redisTokens struct{}

func (redisTokens) Set(key, value string, ttl time.Duration) error { return utils.SetToken(key, value, ttl) }
func (redisTokens) Get(key string) (string, error)                 { return utils.GetToken(key) }
func (redisTokens) Delete(key string) error                        { return utils.DeleteToken(key) }

type service struct {
	repo          Repository
	auditSvc      auditlog.Service
	tokens        TokenStore
	sendResetLink func(email, token string) error
	accessSecret  string
	refreshSecret string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewService(r Repository, auditSvc auditlog.Service, cfg *config.Config) Service {
	return &service{
		repo:          r,
		auditSvc:      auditSvc,
		tokens:        redisTokens{},
		sendResetLink: utils.SendResetLink,
		accessSecret:  cfg.JWTAccessSecret,
		refreshSecret: cfg.JWTRefreshSecret,
		accessTTL:     time.Duration(cfg.JWTAccessTTLHours) * time.Hour,
		refreshTTL:    time.Duration(cfg.JWTRefreshTTLHours) * time.Hour,
	}
}

// =============================
// Login
// =============================

func (s *service) Login(ctx context.Context, in LoginInput) (*TokenPair, *User, error) {
	user, err := s.repo.FindByEmail(in.Email)
	if err != nil {
		s.auditLogin(ctx, nil, in, false, "unknown email")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		s.auditLogin(ctx, &user.ID, in, false, "wrong password")
		return nil, nil, ErrInvalidCredentials
	}
	if user.Status != StatusActive {
		s.auditLogin(ctx, &user.ID, in, false, "account "+user.Status)
		return nil, nil, ErrInactive
	}

	accessToken, err := s.generateAccessToken(user, nil, s.accessTTL)
	if err != nil {
		return nil, nil, err
	}
	refreshToken, err := s.generateRefreshToken(user)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	if err := s.repo.TouchLastLogin(user.ID, now); err != nil {
		log.Printf("⚠️ update last login for user %d: %v", user.ID, err)
	}
	user.LastLoginAt = &now
	s.auditLogin(ctx, &user.ID, in, true, "")

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, user, nil
}

func (s *service) auditLogin(ctx context.Context, userID *uint, in LoginInput, success bool, reason string) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.LogLogin(ctx, userID, in.Email, in.IP, in.UserAgent, success, reason); err != nil {
		log.Printf("⚠️ login audit for %s: %v", in.Email, err)
	}
}

// generateAccessToken signs the claims AuthMiddleware reads. impersonator is
// set only on tokens issued through IssueImpersonation.
func (s *service) generateAccessToken(user *User, impersonator *uint, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role_id": user.RoleID,
		"role":    user.Role.RoleName,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	if user.SchoolID != nil {
		claims["school_id"] = *user.SchoolID
	}
	if user.OrganizationID != nil {
		claims["organization_id"] = *user.OrganizationID
	}
	if impersonator != nil {
		claims["impersonator_id"] = *impersonator
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.accessSecret))
}

func (s *service) generateRefreshToken(user *User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role_id": user.RoleID,
		"exp":     time.Now().Add(s.refreshTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.refreshSecret))
}

func parse(tokenStr, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if _, ok := claims["user_id"].(float64); !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *service) ParseAccessToken(token string) (jwt.MapClaims, error) {
	return parse(token, s.accessSecret)
}

// =============================
// Refresh
// =============================

func (s *service) Refresh(refreshToken string) (string, error) {
	claims, err := parse(refreshToken, s.refreshSecret)
	if err != nil {
		return "", errors.New("invalid refresh token")
	}

	userID := uint(claims["user_id"].(float64))
	user, err := s.repo.FindByID(userID)
	if err != nil {
		return "", ErrUserNotFound
	}
	if user.Status != StatusActive {
		return "", ErrInactive
	}
	return s.generateAccessToken(&user, nil, s.accessTTL)
}

// =============================
// Users
// =============================

func (s *service) CreateUser(ctx context.Context, in CreateUserInput, actorID uint, ip string) (*User, error) {
	role, err := s.repo.FindRoleByName(strings.ToLower(in.Role))
	if err != nil || role.RoleName == RolePlatformAdmin {
		return nil, ErrInvalidRole
	}
	if _, err := s.repo.FindByEmail(in.Email); err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &User{
		FullName:       strings.TrimSpace(in.FullName),
		Email:          strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash:   string(hash),
		Phone:          in.Phone,
		RoleID:         role.ID,
		Role:           *role,
		SchoolID:       in.SchoolID,
		OrganizationID: in.OrganizationID,
		Status:         StatusActive,
		CreatedBy:      &actorID,
	}
	if err := s.repo.Create(user); err != nil {
		s.audit(ctx, actorID, in.SchoolID, "USER_CREATE_FAILED", map[string]interface{}{"email": in.Email, "error": err.Error()}, ip, auditlog.StatusFailure)
		return nil, err
	}
	s.audit(ctx, actorID, in.SchoolID, "USER_CREATED", map[string]interface{}{"user_id": user.ID, "email": user.Email, "role": role.RoleName}, ip, auditlog.StatusSuccess)
	return user, nil
}

func (s *service) audit(ctx context.Context, actorID uint, schoolID *uint, action string, details map[string]interface{}, ip, status string) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.LogAction(ctx, &actorID, schoolID, action, details, ip, status); err != nil {
		log.Printf("⚠️ audit %s: %v", action, err)
	}
}

// =============================
// Forgot Password
// =============================

func (s *service) RequestPasswordReset(email string) error {
	user, err := s.repo.FindByEmail(email)
	if err != nil {
		return ErrUserNotFound
	}

	resetToken := generateSecureToken()
	key := fmt.Sprintf("reset_token:%s", resetToken)
	if err := s.tokens.Set(key, fmt.Sprint(user.ID), 15*time.Minute); err != nil {
		return errors.New("could not save reset token")
	}

	if err := s.sendResetLink(user.Email, resetToken); err != nil {
		return ErrEmailNotSent
	}
	return nil
}

func (s *service) ResetPassword(token string, newPassword string) error {
	key := fmt.Sprintf("reset_token:%s", token)
	val, err := s.tokens.Get(key)
	if err != nil {
		return ErrInvalidToken
	}

	var userID uint
	if _, err := fmt.Sscan(val, &userID); err != nil {
		return ErrInvalidToken
	}
	user, err := s.repo.FindByID(userID)
	if err != nil {
		return ErrUserNotFound
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	if err := s.repo.Update(&user); err != nil {
		return errors.New("failed to update password")
	}

	_ = s.tokens.Delete(key)
	return nil
}

func (s *service) Logout() error {
	// JWT is stateless; the client drops its tokens
	return nil
}

func (s *service) GetUserByID(userID uint) (User, error) {
	return s.repo.FindByID(userID)
}

// =============================
// Impersonation
// =============================

func (s *service) IssueImpersonation(ctx context.Context, adminID, schoolID uint) (*Grant, error) {
	admin, err := s.repo.FindByID(adminID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if admin.Role.RoleName != RolePlatformAdmin {
		return nil, ErrNotPlatformAdmin
	}

	target, err := s.repo.FindSchoolAdmin(schoolID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSchoolAdmin
		}
		return nil, err
	}

	token, err := s.generateAccessToken(target, &adminID, ImpersonationTTL)
	if err != nil {
		return nil, err
	}
	return &Grant{
		AccessToken:    token,
		User:           *target,
		SchoolID:       schoolID,
		ImpersonatorID: adminID,
		ExpiresAt:      time.Now().Add(ImpersonationTTL),
	}, nil
}

// =============================
// Seed
// =============================

// Seed creates the fixed roles and, when a password is configured, the
// platform administrator account.
func (s *service) Seed(adminEmail, adminPassword string) error {
	roles := map[string]string{
		RolePlatformAdmin: "Manages organizations, subscriptions and schools",
		RoleSchoolAdmin:   "Full access to one school",
		RoleStaff:         "Day-to-day school operations",
		RoleViewer:        "Read-only access to one school",
	}
	var platformRole *UserRole
	for name, desc := range roles {
		role, err := s.repo.EnsureRole(name, desc)
		if err != nil {
			return err
		}
		if name == RolePlatformAdmin {
			platformRole = role
		}
	}

	if adminPassword == "" {
		log.Println("⚠️ PLATFORM_ADMIN_PASSWORD not set, skipping platform admin seed")
		return nil
	}
	if _, err := s.repo.FindByEmail(adminEmail); err == nil {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.Create(&User{
		FullName:     "Platform Admin",
		Email:        strings.ToLower(adminEmail),
		PasswordHash: string(hash),
		RoleID:       platformRole.ID,
		Status:       StatusActive,
	}); err != nil {
		return err
	}
	log.Printf("✅ Seeded platform admin %s", adminEmail)
	return nil
}

func generateSecureToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
