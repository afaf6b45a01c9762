package util

// 本地持久化 key，与移动端保持一致
const (
	KeyUserID       = "USER_ID"
	KeyAuthToken    = "AUTH_TOKEN"
	KeyRefreshToken = "REFRESH_TOKEN"
	KeyTimerPrefix  = "TIMER_END_TIME_"
)

const (
	StorageSQLite = "sqlite"
	StorageMySQL  = "mysql"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// TimerKey 返回某次考试截止时间的存储 key
func TimerKey(testID string) string {
	if testID == "" {
		testID = "default"
	}
	return KeyTimerPrefix + testID
}
