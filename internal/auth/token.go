// Package auth 簽發與驗證玩家憑證。
//
// 玩家建立或加入房間時拿到一張 HS256 JWT，之後所有 HTTP 與 WebSocket 請求都靠它辨識身分；
// 伺服器不信任客戶端自報的 player_id。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
)

var (
	// ErrInvalidToken 簽章錯誤、格式錯誤或缺少必要欄位
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired 憑證已過期
	ErrTokenExpired = errors.New("token expired")
)

// DefaultTTL 憑證有效時間
const DefaultTTL = 12 * time.Hour

// Claims 玩家憑證內容（sub 為 player_id）
type Claims struct {
	RoomCode   string `json:"room"`
	PlayerName string `json:"name"`
	jwt.StandardClaims
}

// PlayerID 憑證對應的玩家
func (c *Claims) PlayerID() string {
	return c.Subject
}

// Issuer 憑證簽發器
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer 創建簽發器（ttl 為 0 時使用預設 12 小時）
func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue 簽發玩家憑證
func (i *Issuer) Issue(roomCode, playerID, playerName string) (string, error) {
	if roomCode == "" || playerID == "" {
		return "", fmt.Errorf("%w: room code and player id are required", ErrInvalidToken)
	}

	now := i.now()
	claims := &Claims{
		RoomCode:   roomCode,
		PlayerName: playerName,
		StandardClaims: jwt.StandardClaims{
			Subject:   playerID,
			Issuer:    i.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(i.ttl).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse 驗證並解析憑證
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" || claims.RoomCode == "" {
		return nil, ErrInvalidToken
	}
	if i.issuer != "" && claims.Issuer != i.issuer {
		return nil, fmt.Errorf("%w: issuer %q", ErrInvalidToken, claims.Issuer)
	}
	return claims, nil
}
