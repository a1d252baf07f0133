package clob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Creds L2 API 凭证
type Creds struct {
	Key        string `yaml:"key" json:"key"`
	Secret     string `yaml:"secret" json:"secret"`
	Passphrase string `yaml:"passphrase" json:"passphrase"`
}

// Empty 未配置凭证
func (c Creds) Empty() bool { return c.Key == "" || c.Secret == "" }

// secretEncodings 依次尝试的 secret 编码，交易所下发的是 base64url
var secretEncodings = []*base64.Encoding{
	base64.URLEncoding,
	base64.RawURLEncoding,
	base64.StdEncoding,
	base64.RawStdEncoding,
}

// decodeSecret 解码 API secret，解不出或解出空 key 都是错误
func decodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("API secret 为空")
	}
	for _, enc := range secretEncodings {
		if key, err := enc.DecodeString(secret); err == nil && len(key) > 0 {
			return key, nil
		}
	}
	return nil, fmt.Errorf("API secret 不是有效的 base64: %q", maskSecret(secret))
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

// buildHMAC L2 请求签名：HMAC-SHA256(timestamp+method+path+body)，输出 base64url（带 = 填充）
func buildHMAC(secret string, timestamp int64, method, requestPath, body string) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte(method))
	mac.Write([]byte(requestPath))
	mac.Write([]byte(body))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// l2Headers 构造 L2 认证头
func l2Headers(address string, creds Creds, timestamp int64, method, requestPath, body string) (map[string]string, error) {
	sig, err := buildHMAC(creds.Secret, timestamp, method, requestPath, body)
	if err != nil {
		return nil, fmt.Errorf("构建 HMAC 签名失败: %w", err)
	}
	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  strconv.FormatInt(timestamp, 10),
		"POLY_API_KEY":    creds.Key,
		"POLY_PASSPHRASE": creds.Passphrase,
	}, nil
}
