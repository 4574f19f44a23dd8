// Package signature проверяет подлинность вебхуков платёжного провайдера:
// HMAC-SHA512 от сырых байт тела запроса в hex-кодировке.
package signature

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// Verifier хранит серверный секрет подписи.
type Verifier struct {
	secret []byte
}

// New создаёт Verifier. Пустой секрет допустим, но тогда любая проверка отклоняется.
func New(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

// Verify сравнивает заявленную подпись с HMAC тела за постоянное время.
// Тело должно быть прочитано до разбора JSON: повторная сериализация даёт другие байты.
func (v *Verifier) Verify(body []byte, signature string) bool {
	sig := strings.TrimSpace(signature)
	if sig == "" || len(v.secret) == 0 {
		return false
	}

	claimed, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	return hmac.Equal(v.mac(body), claimed)
}

// Sign возвращает подпись тела в том виде, в каком её шлёт провайдер.
func (v *Verifier) Sign(body []byte) string {
	return hex.EncodeToString(v.mac(body))
}

func (v *Verifier) mac(body []byte) []byte {
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(body)
	return mac.Sum(nil)
}
