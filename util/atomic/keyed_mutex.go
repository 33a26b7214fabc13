package atomic

import (
	"sync"

	"github.com/zhangyunhao116/skipmap"
)

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// KeyedMutex holds one mutex per key, created on first use.
type KeyedMutex struct {
	noCopy
	mutexes *skipmap.StringMap[*sync.Mutex]
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		mutexes: skipmap.NewString[*sync.Mutex](),
	}
}

func (m *KeyedMutex) obtain(key string) *sync.Mutex {
	value, _ := m.mutexes.LoadOrStoreLazy(key, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	return value
}

// Lock locks the mutex of key and returns its unlock function.
func (m *KeyedMutex) Lock(key string) func() {
	mu := m.obtain(key)
	mu.Lock()

	return mu.Unlock
}

// Len reports how many keys have been locked at least once.
func (m *KeyedMutex) Len() int {
	return m.mutexes.Len()
}
