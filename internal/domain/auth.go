package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Роли участников. Ровно две: запросивший (создает заявки) и
// одобряющий (решает и отправляет деньги). Принадлежность к роли
// определяется записью в users — ядро доверяет claim'у из токена.
type Role string

const (
	RoleRequester Role = "requester"
	RoleApprover  Role = "approver"
)

type CustomClaims struct {
	UserID int64 `json:"user_id"` // Telegram ID участника
	Role   Role  `json:"role"`
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           int64     `json:"id"` // Совпадает с Telegram ID
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Никогда не отдаем наружу
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
