package identity

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/eams/pkg/rbac"
)

// ErrMissingSubject is returned when verified claims carry no subject
var ErrMissingSubject = errors.New("token has no subject")

// Claims is the decoded payload of a verified ID token
type Claims map[string]any

// Subject returns the sub claim
func (c Claims) Subject() string {
	s, _ := c["sub"].(string)
	return s
}

// Email returns the email claim
func (c Claims) Email() string {
	s, _ := c["email"].(string)
	return s
}

// FromClaims builds a canonical user from ID token claims. Cognito carries the EAMS
// attributes as custom:user_type, custom:company_id, custom:primary_company_id and
// custom:is_primary_company, which Normalize already understands.
func FromClaims(claims Claims) (*rbac.User, error) {
	if claims.Subject() == "" {
		return nil, ErrMissingSubject
	}

	record := make(map[string]any, len(claims))
	for k, v := range claims {
		record[k] = v
	}
	// the token subject always wins over any id-like attribute
	record["UserID"] = claims.Subject()

	u, err := Normalize(record)
	if err != nil {
		return nil, fmt.Errorf("failed to map claims for %s: %w", claims.Subject(), err)
	}
	return u, nil
}
