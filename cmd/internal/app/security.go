package app

import (
	"errors"
	"fmt"
	"strings"

	"justice/cmd/security/token"
)

const minHMACKeyBytes = 32

// ErrSecurityPolicy marks a startup refusal caused by the token hashing policy.
var ErrSecurityPolicy = errors.New("security policy")

// TokenHasher builds the session token hasher and enforces the HMAC policy.
//
// With JUSTICE_REQUIRE_TOKEN_HMAC=true a missing or short JUSTICE_TOKEN_HMAC_KEY
// refuses startup rather than falling back to plain SHA-256.
func TokenHasher(cfg Config) (token.Hasher, error) {
	if strings.TrimSpace(cfg.TokenHMACKey) == "" && !cfg.RequireTokenHMAC {
		return token.NewHasher(nil), nil
	}

	key, err := token.CheckHMACKey(cfg.TokenHMACKey, minHMACKeyBytes)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, fmt.Errorf("%w: JUSTICE_REQUIRE_TOKEN_HMAC=true but JUSTICE_TOKEN_HMAC_KEY is missing", ErrSecurityPolicy)
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, fmt.Errorf("%w: JUSTICE_TOKEN_HMAC_KEY is too short (min %d bytes)", ErrSecurityPolicy, minHMACKeyBytes)
	case err != nil:
		return token.Hasher{}, err
	}

	h := token.NewHasher(key)
	if cfg.RequireTokenHMAC && !h.HMACEnabled() {
		return token.Hasher{}, fmt.Errorf("%w: token hasher is not in HMAC mode", ErrSecurityPolicy)
	}
	return h, nil
}
