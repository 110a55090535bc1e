package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"shortlink/internal/store"
)

// UsersKey is the store key holding registered users, keyed by email.
const UsersKey = "shortlink:users"

// ErrUserExists rejects registration with an email already in use.
var ErrUserExists = errors.New("user with this email already exists")

// storedUser is the persisted account record.
type storedUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	RollNo       string `json:"rollNo"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

type tokenClaims struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	RollNo string `json:"rollNo"`
	jwt.RegisteredClaims
}

// Issuer is a local authentication boundary: bcrypt accounts persisted in
// the shared store, HS256 access tokens. It stands in for the remote
// service when none is configured and gives the tests a real boundary.
type Issuer struct {
	store    store.Store
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

// NewIssuer creates an Issuer signing tokens with secret, each valid for
// tokenTTL.
func NewIssuer(st store.Store, secret string, tokenTTL time.Duration) *Issuer {
	return &Issuer{
		store:    st,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// Register creates a new account.
func (i *Issuer) Register(ctx context.Context, creds Credentials, name, rollNo string) (*User, error) {
	users, err := i.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	if _, exists := users[creds.Email]; exists {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	users[creds.Email] = storedUser{
		ID:           uuid.New().String(),
		Email:        creds.Email,
		Name:         name,
		RollNo:       rollNo,
		PasswordHash: string(hash),
		CreatedAt:    i.now().UnixMilli(),
	}

	if err := i.saveUsers(ctx, users); err != nil {
		return nil, err
	}
	return &User{Email: creds.Email, Name: name, RollNo: rollNo}, nil
}

// Login verifies the credentials and issues a fresh access token.
func (i *Issuer) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	users, err := i.loadUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	account, exists := users[creds.Email]
	if !exists {
		return nil, fmt.Errorf("%w: invalid email or password", ErrRejected)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, fmt.Errorf("%w: invalid email or password", ErrRejected)
	}

	user := User{Email: account.Email, Name: account.Name, RollNo: account.RollNo}
	token, err := i.sign(user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &LoginResult{
		AccessToken: token,
		TokenType:   TokenType,
		ExpiresIn:   int64(i.tokenTTL.Seconds()),
		User:        user,
	}, nil
}

// Refresh exchanges a still-valid access token for a fresh one.
func (i *Issuer) Refresh(_ context.Context, accessToken string) (*RefreshResult, error) {
	claims := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrRejected)
	}

	token, err := i.sign(User{Email: claims.Email, Name: claims.Name, RollNo: claims.RollNo})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &RefreshResult{
		AccessToken: token,
		ExpiresIn:   int64(i.tokenTTL.Seconds()),
	}, nil
}

func (i *Issuer) sign(user User) (string, error) {
	now := i.now()
	claims := tokenClaims{
		Email:  user.Email,
		Name:   user.Name,
		RollNo: user.RollNo,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) loadUsers(ctx context.Context) (map[string]storedUser, error) {
	raw, err := i.store.Get(ctx, UsersKey)
	if errors.Is(err, store.ErrKeyNotFound) {
		return map[string]storedUser{}, nil
	}
	if err != nil {
		return nil, err
	}

	var users map[string]storedUser
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (i *Issuer) saveUsers(ctx context.Context, users map[string]storedUser) error {
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("failed to encode users: %w", err)
	}
	return i.store.Set(ctx, UsersKey, string(data))
}
