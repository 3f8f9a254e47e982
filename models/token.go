package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims is the payload of the access tokens issued by the cabinet
// back-office. The subject (RegisteredClaims.Subject) is the user id.
type TokenClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}
