package config

import "fmt"

type CacheKeyStruct struct{}

// UserSessionKey returns the cache key holding a user's active session JTI.
func (r *CacheKeyStruct) UserSessionKey(userID string) string {
	return fmt.Sprintf("login:%s", userID)
}

var CacheKey = &CacheKeyStruct{}
