package dataone

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrCredentials is returned when a DataONE token does not tell who the user is.
var ErrCredentials = errors.New(
	"Failed to process your DataONE credentials. Please ensure you are logged into DataONE.",
)

// Claims is the user described in a DataONE token.
type Claims struct {
	UserID   string
	FullName string
}

// ParseClaims reads claims "userId" and "fullName" from a DataONE token.
//
// The signature is not verified; the member node does that.
func ParseClaims(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, errors.Join(ErrCredentials, err)
	}

	userId, _ := claims["userId"].(string)
	fullName, _ := claims["fullName"].(string)
	if userId == "" || fullName == "" {
		return Claims{}, ErrCredentials
	}
	return Claims{UserID: userId, FullName: fullName}, nil
}
