package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/adiga-code/SimConnect/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrUnauthorized      = errors.New("unauthorized")
)

const tokenExpiry = 72 * time.Hour

// Token layout: 4 bytes user id, 8 bytes expiry unix time, then the
// HMAC-SHA256 signature over the first 12 bytes, hex encoded.
const tokenPayloadLen = 12

type AuthService interface {
	RegisterUser(ctx context.Context, login string, pass string) (internal.Token, error)
	AuthUser(ctx context.Context, login string, pass string) (internal.Token, error)
	CheckToken(token string) (internal.UserID, error)
}

type AuthServiceImpl struct {
	Store     storage.UserStorage
	SecretKey []byte
}

var _ AuthService = (*AuthServiceImpl)(nil)

func (a *AuthServiceImpl) RegisterUser(ctx context.Context, login string, pass string) (internal.Token, error) {
	hashedPass, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("create password hash error: %w", err)
	}
	userID, err := a.Store.AddUser(ctx, login, string(hashedPass))
	if err != nil {
		return "", err
	}
	return a.CreateToken(userID)
}

func (a *AuthServiceImpl) AuthUser(ctx context.Context, login string, pass string) (internal.Token, error) {
	userID, hashedPass, err := a.Store.GetUser(ctx, login)
	if err != nil {
		return "", err
	}
	err = bcrypt.CompareHashAndPassword([]byte(hashedPass), []byte(pass))
	if err != nil {
		return "", ErrIncorrectPassword
	}
	return a.CreateToken(userID)
}

func (a *AuthServiceImpl) CreateToken(id internal.UserID) (internal.Token, error) {
	payload := binary.BigEndian.AppendUint32(nil, uint32(id))
	payload = binary.BigEndian.AppendUint64(payload, uint64(time.Now().Add(tokenExpiry).Unix()))
	return internal.Token(hex.EncodeToString(append(payload, a.sign(payload)...))), nil
}

// CheckToken reports the user a token belongs to. Any token that cannot be
// decoded or verified is unauthorized, not an internal error.
func (a *AuthServiceImpl) CheckToken(token string) (internal.UserID, error) {
	data, err := hex.DecodeString(token)
	if err != nil || len(data) < tokenPayloadLen {
		return 0, ErrUnauthorized
	}
	payload := data[:tokenPayloadLen]
	expTime := binary.BigEndian.Uint64(payload[4:])
	if time.Now().Unix() > int64(expTime) {
		return 0, ErrUnauthorized
	}
	if !hmac.Equal(a.sign(payload), data[tokenPayloadLen:]) {
		return 0, ErrUnauthorized
	}
	return internal.UserID(binary.BigEndian.Uint32(payload[:4])), nil
}

func (a *AuthServiceImpl) sign(payload []byte) []byte {
	h := hmac.New(sha256.New, a.SecretKey)
	h.Write(payload)
	return h.Sum(nil)
}
