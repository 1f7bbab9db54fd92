package providers

import (
	"runtime"
	"strconv"
	"strings"
)

// ThreadIDProvider supplies a positive 32-bit identity for the calling
// goroutine. The id ends up in serialized beacon records and web request
// tags, so it only has to be stable per goroutine, not globally dense.
type ThreadIDProvider interface {
	ThreadID() int32
}

type defaultThreadIDProvider struct{}

// NewThreadIDProvider returns the goroutine-based thread id provider.
func NewThreadIDProvider() ThreadIDProvider {
	return defaultThreadIDProvider{}
}

func (defaultThreadIDProvider) ThreadID() int32 {
	return convertNativeThreadIDToPositiveInteger(goroutineID())
}

// goroutineID extracts the current goroutine's id from the runtime stack
// header ("goroutine 123 [running]:"). There is no supported API for this;
// the header format has been stable since Go 1.0.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 1
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 1
	}
	return id
}

// convertNativeThreadIDToPositiveInteger folds a 64-bit id into a positive
// 32-bit integer by XORing the halves and masking the sign bit.
func convertNativeThreadIDToPositiveInteger(id int64) int32 {
	return int32((id ^ (id >> 32)) & 0x7fffffff)
}
