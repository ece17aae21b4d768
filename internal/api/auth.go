package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"klimatik/internal/config"
	"klimatik/internal/database"
	"klimatik/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var (
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	errPermissionDenied   = errors.New("permission denied")
)

// TokenPair — пара JWT для сотрудника: короткий access и длинный refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenManager выпускает и проверяет JWT сотрудников.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenManager(cfg config.JWTConfig) *TokenManager {
	return &TokenManager{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
}

func (m *TokenManager) Issue(technicianID int64) (TokenPair, error) {
	access, err := m.sign(technicianID, "access", m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.sign(technicianID, "refresh", m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *TokenManager) sign(technicianID int64, tokenType string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"technician_id": technicianID,
		"type":          tokenType,
		"exp":           jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	return token.SignedString(m.secret)
}

// Parse проверяет подпись и тип токена, возвращает ID сотрудника.
func (m *TokenManager) Parse(tokenString, wantType string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	if tokenType, _ := claims["type"].(string); tokenType != wantType {
		return 0, ErrInvalidToken
	}
	id, ok := claims["technician_id"].(float64)
	if !ok || id <= 0 {
		return 0, ErrInvalidToken
	}
	return int64(id), nil
}

// AuthenticateTechnician проверяет логин и пароль по БД.
func AuthenticateTechnician(ctx context.Context, db *database.DB, login, password string) (*models.Technician, error) {
	tech, err := db.GetTechnicianByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !tech.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(tech.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return tech, nil
}

type contextKey string

const technicianCtxKey contextKey = "technician_id"

// technicianFromContext возвращает ID сотрудника, положенный middleware.
func technicianFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(technicianCtxKey).(int64)
	return id, ok
}

// requireTechnician пропускает запрос только с валидным access-токеном.
func (s *HTTPServer) requireTechnician(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.technicianFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), technicianCtxKey, id)
		next(w, r.WithContext(ctx))
	}
}

func (s *HTTPServer) technicianFromRequest(r *http.Request) (int64, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return 0, errors.New("authorization header is required")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return 0, errors.New("invalid token format")
	}
	return s.tokens.Parse(parts[1], "access")
}

// AdminAuth — аутентификация по административному API-ключу
// с пер-ключевым ограничением частоты.
type AdminAuth struct {
	header   string
	clients  map[string]config.APIClientKey
	rps      float64
	burst    int
	limiters sync.Map // map[string]*rate.Limiter
}

func NewAdminAuth(cfg config.APIConfig) *AdminAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.AdminKeys))
	for _, k := range cfg.Auth.AdminKeys {
		m[k.Key] = k
	}
	header := strings.TrimSpace(strings.ToLower(cfg.Auth.HeaderAPIKey))
	if header == "" {
		header = "x-api-key"
	}
	return &AdminAuth{
		header:  header,
		clients: m,
		rps:     cfg.RateLimit.RPS,
		burst:   cfg.RateLimit.Burst,
	}
}

// Check возвращает имя клиента по ключу из заголовка.
func (a *AdminAuth) Check(r *http.Request, permission string) (string, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.header))
	if apiKey == "" {
		return "", errors.New("missing api key")
	}

	client, ok := a.clients[apiKey]
	if !ok || subtle.ConstantTimeCompare([]byte(client.Key), []byte(apiKey)) != 1 {
		return "", errors.New("invalid api key")
	}

	if permission != "" && len(client.Permissions) > 0 {
		allowed := false
		for _, p := range client.Permissions {
			if strings.TrimSpace(p) == permission {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", errPermissionDenied
		}
	}

	return client.Name, nil
}

// Allow применяет rate limit по ключу клиента (API-ключ либо IP).
func (a *AdminAuth) Allow(r *http.Request) bool {
	if a.rps <= 0 {
		return true
	}
	return a.getLimiter(a.clientKey(r)).Allow()
}

func (a *AdminAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.header)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *AdminAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.rps), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

// requireAdmin пропускает запрос только с валидным админским ключом.
func (s *HTTPServer) requireAdmin(permission string, next func(w http.ResponseWriter, r *http.Request, client string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, err := s.admin.Check(r, permission)
		if err != nil {
			code := http.StatusUnauthorized
			if errors.Is(err, errPermissionDenied) {
				code = http.StatusForbidden
			}
			writeError(w, code, err.Error())
			return
		}
		next(w, r, client)
	}
}

// HashPassword — bcrypt-хеш для пароля сотрудника.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
