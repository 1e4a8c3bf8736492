package jwtx

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoKey                = errors.New("jwtx: signing key unavailable")
	ErrEncode               = errors.New("jwtx: malformed compact serialization")
	ErrMalformed            = errors.New("jwtx: malformed token")
	ErrBadSignature         = errors.New("jwtx: invalid signature")
	ErrUnsupportedAlgorithm = errors.New("jwtx: unsupported signing algorithm")
	ErrExpired              = errors.New("jwtx: token expired")
	ErrNotYetValid          = errors.New("jwtx: token not yet valid")
	ErrSchemaViolation      = errors.New("jwtx: claim schema violation")
	ErrBadAuthority         = errors.New("jwtx: corrupted authority")
	ErrBadPrincipal         = errors.New("jwtx: incomplete principal claims")
)

// Codec signs and verifies the compact three-segment token representation
// using a process-wide symmetric key. It is stateless and safe for concurrent
// use.
type Codec struct {
	key    []byte
	leeway time.Duration
}

// NewCodec builds a Codec. The leeway is applied symmetrically to the exp and
// nbf checks to absorb clock skew between peers.
func NewCodec(key []byte, leeway time.Duration) (*Codec, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	if leeway < 0 {
		leeway = 0
	}
	return &Codec{key: key, leeway: leeway}, nil
}

// Encode serializes and signs the claims with HS512. The output always has
// exactly three dot-separated segments; anything else is an internal
// consistency failure, not a caller error.
func (c *Codec) Encode(claims Claims) (string, error) {
	if err := ValidateForIssue(claims); err != nil {
		return "", err
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}

	if !WellFormed(token) {
		return "", ErrEncode
	}
	return token, nil
}

// Decode verifies the signature and the exp/nbf window (within leeway), then
// applies strict claim-schema validation. Claim types are never coerced: a
// non-integer userId or a non-string authority entry fails with
// ErrSchemaViolation.
func (c *Codec) Decode(token string) (Claims, error) {
	parser := jwt.NewParser(jwt.WithLeeway(c.leeway))

	raw := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(token, raw, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, t.Header["alg"])
		}
		return c.key, nil
	})
	if err != nil {
		return Claims{}, mapParseError(err)
	}
	if !parsed.Valid {
		return Claims{}, ErrBadSignature
	}

	return claimsFromMap(raw)
}

// ExtractTokenID pulls the jti claim out of a token without verifying the
// signature. The revocation check runs before full decoding, so it needs the
// id from tokens that have not been trusted yet.
func ExtractTokenID(token string) (string, bool) {
	raw := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, raw); err != nil {
		return "", false
	}
	jti, ok := raw["jti"].(string)
	return jti, ok && jti != ""
}

// WellFormed reports whether token has the compact three-segment shape with
// no empty header or payload segment. Cheap pre-check before signature
// verification.
func WellFormed(token string) bool {
	parts := strings.Split(token, ".")
	return len(parts) == 3 && parts[0] != "" && parts[1] != ""
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return fmt.Errorf("%w", ErrUnsupportedAlgorithm)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// claimsFromMap rebuilds the typed claims set from the raw payload, rejecting
// any claim whose wire type deviates from the schema.
func claimsFromMap(raw jwt.MapClaims) (Claims, error) {
	var out Claims

	var err error
	if out.Subject, err = optionalString(raw, "sub"); err != nil {
		return Claims{}, err
	}
	if out.ID, err = optionalString(raw, "jti"); err != nil {
		return Claims{}, err
	}
	if out.Issuer, err = optionalString(raw, "iss"); err != nil {
		return Claims{}, err
	}
	if out.TokenKind, err = optionalString(raw, "token_type"); err != nil {
		return Claims{}, err
	}
	if out.Fingerprint, err = optionalString(raw, "dfp"); err != nil {
		return Claims{}, err
	}

	if aud, ok := raw["aud"]; ok {
		switch v := aud.(type) {
		case string:
			out.Audience = jwt.ClaimStrings{v}
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return Claims{}, fmt.Errorf("%w: aud", ErrSchemaViolation)
				}
				out.Audience = append(out.Audience, s)
			}
		default:
			return Claims{}, fmt.Errorf("%w: aud", ErrSchemaViolation)
		}
	}

	for claim, dst := range map[string]**jwt.NumericDate{
		"iat": &out.IssuedAt,
		"nbf": &out.NotBefore,
		"exp": &out.ExpiresAt,
	} {
		v, ok := raw[claim]
		if !ok {
			continue
		}
		secs, ok := v.(float64)
		if !ok {
			return Claims{}, fmt.Errorf("%w: %s", ErrSchemaViolation, claim)
		}
		*dst = jwt.NewNumericDate(time.Unix(int64(secs), 0))
	}

	if v, ok := raw["userId"]; ok {
		n, err := integerClaim(v, "userId")
		if err != nil {
			return Claims{}, err
		}
		out.UserID = n
	}

	if v, ok := raw["userProfileId"]; ok {
		n, err := integerClaim(v, "userProfileId")
		if err != nil {
			return Claims{}, err
		}
		out.ProfileID = &n
	}

	if v, ok := raw["authorities"]; ok {
		list, ok := v.([]any)
		if !ok {
			return Claims{}, fmt.Errorf("%w: authorities", ErrSchemaViolation)
		}
		out.Authorities = make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return Claims{}, fmt.Errorf("%w: authorities", ErrSchemaViolation)
			}
			out.Authorities = append(out.Authorities, s)
		}
	}

	return out, nil
}

func optionalString(raw jwt.MapClaims, claim string) (string, error) {
	v, ok := raw[claim]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSchemaViolation, claim)
	}
	return s, nil
}

func integerClaim(v any, claim string) (int64, error) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s", ErrSchemaViolation, claim)
	}
	return int64(f), nil
}
