package rediskey

import "fmt"

// Key prefixes shared by every binary.
const (
	SequencePrefix     = "seq"
	ReferralCodePrefix = "referral:code"
	RateCachePrefix    = "rate"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildSequenceKey returns "seq:{name}"
func BuildSequenceKey(name string) string {
	return NamespaceKey(SequencePrefix, name)
}

// BuildReferralCodeKey returns "referral:code:{code}"
func BuildReferralCodeKey(code string) string {
	return NamespaceKey(ReferralCodePrefix, code)
}
