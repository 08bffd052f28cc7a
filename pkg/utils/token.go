package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// GenerateURLToken 生成 URL-safe 的随机 token，长度约为 4/3*n 字符
// n 为原始随机字节数，推荐 24 或 32
func GenerateURLToken(n int) (string, error) {
	if n <= 0 {
		n = 24
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SignState 生成 OAuth state：随机串加 HMAC 签名，回调时无需服务端存储即可校验
func SignState(secret string) (string, error) {
	nonce, err := GenerateURLToken(24)
	if err != nil {
		return "", err
	}
	return nonce + "." + stateMAC(secret, nonce), nil
}

// VerifyState 校验 SignState 生成的 state
func VerifyState(secret, state string) bool {
	nonce, mac, ok := strings.Cut(state, ".")
	if !ok || nonce == "" {
		return false
	}
	return hmac.Equal([]byte(mac), []byte(stateMAC(secret, nonce)))
}

func stateMAC(secret, nonce string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
