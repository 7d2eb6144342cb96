package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных консоли в Redis
	RedisNamespace = "presence"
)

// Ключи (состояние)
const (
	// RedisKeySessionPrefix + session_id -> user_id, TTL = время жизни токена
	RedisKeySessionPrefix = RedisNamespace + ":sessions:"
	// RedisKeyVerification: флаг системной проверки ("1"/"0")
	RedisKeyVerification = RedisNamespace + ":system:verification_flag"
	// RedisKeyJustificationPrefix + user -> последнее объяснение (JSON)
	RedisKeyJustificationPrefix = "justification_inactivity:"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanSessionRevoked: "session_id:true" при выходе, все инстансы гасят трекер.
	RedisChanSessionRevoked = RedisNamespace + ":sessions:revoked"
	// RedisChanVerification: "system:on|off"
	RedisChanVerification = RedisNamespace + ":system:verification"
)

func SessionKey(sessionID string) string {
	return RedisKeySessionPrefix + sessionID
}

func JustificationKey(user string) string {
	return RedisKeyJustificationPrefix + user
}
