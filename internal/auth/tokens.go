package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AccessTokenClaims carry the authenticated account id. The account id is
// the only identity fact the rest of the service consumes.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"account_id"`
}

// HashPassword hashes a registration password with bcrypt.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// TokenIssuer signs access tokens for logged-in accounts.
type TokenIssuer struct {
	Keys   *KeySet
	Issuer string
	TTL    time.Duration
}

// IssueToken mints a signed RS256 token for the given account.
func (ti *TokenIssuer) IssueToken(accountID string) (string, time.Time, error) {
	if ti.Keys == nil || ti.Keys.PrivateKey() == nil {
		return "", time.Time{}, errors.New("missing keyset")
	}

	ttl := ti.TTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	expiresAt := time.Now().Add(ttl)

	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.Issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		AccountID: accountID,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = ti.Keys.KeyID()

	signed, err := tok.SignedString(ti.Keys.PrivateKey())
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// JWTValidator verifies access tokens against the key set.
type JWTValidator struct {
	KeySet *KeySet
	Issuer string
}

func (v *JWTValidator) Validate(tokenString string) (*AccessTokenClaims, error) {
	if v.KeySet == nil || v.KeySet.PublicKey() == nil {
		return nil, errors.New("missing keyset")
	}

	claims := &AccessTokenClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return v.KeySet.PublicKey(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if v.Issuer != "" && claims.Issuer != v.Issuer {
		return nil, errors.New("invalid issuer")
	}
	if claims.AccountID == "" {
		return nil, errors.New("missing account id")
	}
	return claims, nil
}
