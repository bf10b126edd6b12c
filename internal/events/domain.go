package events

import (
	"sync"

	"github.com/strand-chat/strand/internal/chat"
	"go.uber.org/zap"
)

// DomainEmitter fans in-process domain events out to registered observers.
// Observers run synchronously on the emitting goroutine and must not block.
type DomainEmitter struct {
	mu        sync.RWMutex
	observers []func(chat.DomainEvent)
	logger    *zap.Logger
}

func NewDomainEmitter(logger *zap.Logger) *DomainEmitter {
	return &DomainEmitter{logger: logger}
}

func (e *DomainEmitter) Observe(fn func(chat.DomainEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

func (e *DomainEmitter) Emit(event chat.DomainEvent) {
	e.mu.RLock()
	observers := e.observers
	e.mu.RUnlock()

	e.logger.Debug("domain event",
		zap.String("name", event.Name),
	)
	for _, fn := range observers {
		fn(event)
	}
}
