package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pconnect/portal/internal/apiclient"
	"github.com/pconnect/portal/internal/models"
)

// LoginKind selects which login endpoint to use.
type LoginKind string

const (
	LoginUser     LoginKind = "user"
	LoginAdmin    LoginKind = "admin"
	LoginSecurity LoginKind = "security"
)

var loginPaths = map[LoginKind]string{
	LoginUser:     "/auth/login",
	LoginAdmin:    "/auth/admin/login",
	LoginSecurity: "/auth/security/login",
}

// AuthService wraps the /auth endpoints.
type AuthService struct {
	api *apiclient.Client
}

// NewAuthService creates an auth service.
func NewAuthService(api *apiclient.Client) *AuthService {
	return &AuthService{api: api}
}

// Login authenticates through the endpoint for kind. Login calls never carry
// a bearer token.
func (s *AuthService) Login(ctx context.Context, kind LoginKind, creds models.Credentials) (*models.LoginResponse, error) {
	path, ok := loginPaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown login kind %q", kind)
	}

	var resp models.LoginResponse
	err := s.api.Do(ctx, apiclient.Request{
		Method:   http.MethodPost,
		Path:     path,
		Body:     creds,
		SkipAuth: true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%s login: %w", kind, err)
	}
	return &resp, nil
}

// UserLogin signs in an employee.
func (s *AuthService) UserLogin(ctx context.Context, creds models.Credentials) (*models.LoginResponse, error) {
	return s.Login(ctx, LoginUser, creds)
}

// AdminLogin signs in an administrator.
func (s *AuthService) AdminLogin(ctx context.Context, creds models.Credentials) (*models.LoginResponse, error) {
	return s.Login(ctx, LoginAdmin, creds)
}

// SecurityLogin signs in a security officer.
func (s *AuthService) SecurityLogin(ctx context.Context, creds models.Credentials) (*models.LoginResponse, error) {
	return s.Login(ctx, LoginSecurity, creds)
}

// Me returns the user the current token belongs to.
func (s *AuthService) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := s.api.Get(ctx, "/auth/me", nil, &user); err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}
	return &user, nil
}
